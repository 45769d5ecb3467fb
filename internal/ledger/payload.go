// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package ledger

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Payload is the per-type variant carried by an InteractionRecord.
// Each interaction type has its own typed shape instead of a free-form map,
// so consumers type-switch rather than probing duck-typed fields.
type Payload interface {
	// Kind returns the wire discriminator for the payload variant.
	Kind() string
}

// ContentPayload accompanies content and exercise interactions.
type ContentPayload struct {
	// Completed marks the content as finished rather than abandoned.
	Completed bool `json:"completed"`

	// UserRating is an explicit 1-5 rating; zero means unrated.
	UserRating int `json:"user_rating,omitempty"`

	// EffectivenessScore is a self-reported helpfulness signal in [0,1].
	// Negative means not reported.
	EffectivenessScore float64 `json:"effectiveness_score,omitempty"`

	// Duration is how long the user spent on the content.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

// Kind implements Payload.
func (ContentPayload) Kind() string { return "content" }

// RecommendationPayload accompanies accept/dismiss interactions.
type RecommendationPayload struct {
	// RecommendationID identifies the recommendation acted on.
	RecommendationID string `json:"recommendation_id"`

	// Category is the recommendation category (content, peers, exercises, activities).
	Category string `json:"category,omitempty"`

	// TimeToActionMs is the delay between impression and action.
	TimeToActionMs int64 `json:"time_to_action_ms,omitempty"`

	// Rating is optional explicit feedback (1-5), zero when absent.
	Rating int `json:"rating,omitempty"`
}

// Kind implements Payload.
func (RecommendationPayload) Kind() string { return "recommendation" }

// MoodPayload accompanies mood log interactions.
type MoodPayload struct {
	// Emotion is the raw free-text label the user chose.
	Emotion string `json:"emotion"`

	// Intensity is the reported intensity on a 0-10 scale.
	Intensity int `json:"intensity,omitempty"`
}

// Kind implements Payload.
func (MoodPayload) Kind() string { return "mood" }

// SocialPayload accompanies peer interactions.
type SocialPayload struct {
	// PeerID identifies the other participant.
	PeerID string `json:"peer_id"`

	// MessageLength is the character count for message interactions.
	MessageLength int `json:"message_length,omitempty"`
}

// Kind implements Payload.
func (SocialPayload) Kind() string { return "social" }

// payloadEnvelope is the wire form of a Payload: discriminator plus data.
type payloadEnvelope struct {
	Kind string          `json:"kind,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the record with its payload in an envelope, preserving
// the variant across persistence round trips.
func (r InteractionRecord) MarshalJSON() ([]byte, error) {
	type plain InteractionRecord

	env := payloadEnvelope{}
	if r.Payload != nil {
		data, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		env.Kind = r.Payload.Kind()
		env.Data = data
	}

	return json.Marshal(struct {
		plain
		Payload payloadEnvelope `json:"payload"`
	}{plain(r), env})
}

// UnmarshalJSON decodes the envelope form produced by MarshalJSON.
// An unknown payload kind yields a nil payload rather than an error, so
// records written by newer versions still load.
func (r *InteractionRecord) UnmarshalJSON(data []byte) error {
	type plain InteractionRecord

	var wire struct {
		plain
		Payload payloadEnvelope `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = InteractionRecord(wire.plain)

	if wire.Payload.Kind == "" || len(wire.Payload.Data) == 0 {
		return nil
	}

	payload, err := decodePayload(wire.Payload.Kind, wire.Payload.Data)
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

// DecodePayload decodes a wire payload by its kind discriminator. Unknown
// kinds yield a nil payload without error.
func DecodePayload(kind string, data []byte) (Payload, error) {
	return decodePayload(kind, data)
}

func decodePayload(kind string, data []byte) (Payload, error) {
	switch kind {
	case "content":
		var p ContentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode content payload: %w", err)
		}
		return p, nil
	case "recommendation":
		var p RecommendationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode recommendation payload: %w", err)
		}
		return p, nil
	case "mood":
		var p MoodPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode mood payload: %w", err)
		}
		return p, nil
	case "social":
		var p SocialPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode social payload: %w", err)
		}
		return p, nil
	default:
		return nil, nil
	}
}
