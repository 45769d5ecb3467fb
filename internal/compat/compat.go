// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package compat scores peer-support compatibility between two users.
//
// The score is a convex combination of bounded sub-scores, so it is always
// in [0,1] and symmetric in its arguments. Dimensions with no data on either
// side drop out of the weighted average with renormalization instead of
// contributing zero; sparse histories are never penalized. When behavioral
// data is missing entirely, renormalization reduces the default weights to
// the profile-only 40/35/15/10 split.
package compat

import (
	"math"
	"sort"
	"strings"

	"github.com/tomtom215/attune/internal/ledger"
	"github.com/tomtom215/attune/internal/patterns"
)

// AgeRange is a closed interval of ages.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Valid reports whether the range carries data.
func (a AgeRange) Valid() bool {
	return a.Min > 0 && a.Max >= a.Min
}

// Overlaps reports whether two closed intervals intersect.
func (a AgeRange) Overlaps(b AgeRange) bool {
	return a.Min <= b.Max && b.Min <= a.Max
}

// Profile is the static matching profile fetched from persistence.
type Profile struct {
	UserID             string   `json:"user_id"`
	Interests          []string `json:"interests"`
	Experiences        []string `json:"experiences"`
	AgeRange           AgeRange `json:"age_range"`
	CommunicationStyle string   `json:"communication_style"`
}

// Result is a computed compatibility score. It is derived on demand and
// never persisted.
type Result struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`

	// Score is the overall compatibility in [0,1].
	Score float64 `json:"score"`

	// SharedInterests and SharedExperiences list the overlap, sorted.
	SharedInterests   []string `json:"shared_interests"`
	SharedExperiences []string `json:"shared_experiences"`

	// BehavioralSimilarity is the behavior sub-score in [0,1];
	// meaningful only when HasBehavioralData is true.
	BehavioralSimilarity float64 `json:"behavioral_similarity"`
	HasBehavioralData    bool    `json:"has_behavioral_data"`

	// Confidence is "low" when most dimensions had no data.
	Confidence string `json:"confidence"`
}

// Weights defines the contribution of each dimension. Dimensions without
// data are dropped and the remaining weights renormalized, so Weights need
// not anticipate sparse input.
type Weights struct {
	Interests     float64 `json:"interests"`
	Experiences   float64 `json:"experiences"`
	AgeRange      float64 `json:"age_range"`
	Communication float64 `json:"communication"`
	Behavioral    float64 `json:"behavioral"`
}

// DefaultWeights returns the canonical weighting. The profile dimensions
// keep the 40/35/15/10 ratio among themselves; behavioral similarity takes
// 0.4 of the total when present.
func DefaultWeights() Weights {
	return Weights{
		Interests:     0.24,
		Experiences:   0.21,
		AgeRange:      0.09,
		Communication: 0.06,
		Behavioral:    0.40,
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Interests + w.Experiences + w.AgeRange + w.Communication + w.Behavioral
}

// Scorer computes compatibility results.
type Scorer struct {
	weights Weights
}

// New creates a scorer. Non-positive weight sums fall back to defaults.
func New(weights Weights) *Scorer {
	if weights.Sum() <= 0 {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Score computes the compatibility of two users from their matching
// profiles and learned behavior. Either behavior profile may be empty.
// Score(a,b,pa,pb) == Score(b,a,pb,pa) up to the user field order.
func (s *Scorer) Score(profileA, profileB Profile, behaviorA, behaviorB patterns.BehaviorProfile) Result {
	result := Result{
		UserA:             profileA.UserID,
		UserB:             profileB.UserID,
		SharedInterests:   intersect(profileA.Interests, profileB.Interests),
		SharedExperiences: intersect(profileA.Experiences, profileB.Experiences),
	}

	var weighted, available float64

	if len(profileA.Interests) > 0 && len(profileB.Interests) > 0 {
		sub := overlapRatio(len(result.SharedInterests), len(profileA.Interests), len(profileB.Interests))
		weighted += s.weights.Interests * sub
		available += s.weights.Interests
	}

	if len(profileA.Experiences) > 0 && len(profileB.Experiences) > 0 {
		sub := overlapRatio(len(result.SharedExperiences), len(profileA.Experiences), len(profileB.Experiences))
		weighted += s.weights.Experiences * sub
		available += s.weights.Experiences
	}

	if profileA.AgeRange.Valid() && profileB.AgeRange.Valid() {
		if profileA.AgeRange.Overlaps(profileB.AgeRange) {
			weighted += s.weights.AgeRange
		}
		available += s.weights.AgeRange
	}

	if profileA.CommunicationStyle != "" && profileB.CommunicationStyle != "" {
		if strings.EqualFold(profileA.CommunicationStyle, profileB.CommunicationStyle) {
			weighted += s.weights.Communication
		}
		available += s.weights.Communication
	}

	if !behaviorA.Empty() && !behaviorB.Empty() {
		if sim, ok := behavioralSimilarity(behaviorA, behaviorB); ok {
			result.BehavioralSimilarity = sim
			result.HasBehavioralData = true
			weighted += s.weights.Behavioral * sim
			available += s.weights.Behavioral
		}
	}

	if available == 0 {
		// Entirely empty input: neutral score rather than a hard zero.
		result.Score = 0.5
		result.Confidence = "low"
		return result
	}

	result.Score = clamp01(weighted / available)
	if available < s.weights.Sum()/2 {
		result.Confidence = "low"
	} else {
		result.Confidence = "normal"
	}
	return result
}

// behavioralSimilarity averages up to three sub-terms: activity-set overlap,
// time-of-day distribution similarity, and mood distribution similarity.
// Sub-terms with no data on either side are excluded from the average.
func behavioralSimilarity(a, b patterns.BehaviorProfile) (float64, bool) {
	var total float64
	var terms int

	setA, setB := a.ActivitySet(), b.ActivitySet()
	if len(setA) > 0 || len(setB) > 0 {
		total += jaccard(setA, setB)
		terms++
	}

	if sim, ok := distributionSimilarity(timeDistribution(a), timeDistribution(b)); ok {
		total += sim
		terms++
	}

	if sim, ok := distributionSimilarity(moodDistribution(a), moodDistribution(b)); ok {
		total += sim
		terms++
	}

	if terms == 0 {
		return 0, false
	}
	return clamp01(total / float64(terms)), true
}

// jaccard computes |A∩B| / |A∪B| over type sets.
func jaccard(a, b map[ledger.Type]bool) float64 {
	union := make(map[ledger.Type]bool, len(a)+len(b))
	shared := 0
	for t := range a {
		union[t] = true
		if b[t] {
			shared++
		}
	}
	for t := range b {
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(shared) / float64(len(union))
}

// distributionSimilarity averages 1−|pA−pB| over buckets with nonzero
// signal in either distribution. ok is false when both are empty.
func distributionSimilarity(a, b map[string]float64) (float64, bool) {
	buckets := make(map[string]bool, len(a)+len(b))
	for k, v := range a {
		if v > 0 {
			buckets[k] = true
		}
	}
	for k, v := range b {
		if v > 0 {
			buckets[k] = true
		}
	}
	if len(buckets) == 0 {
		return 0, false
	}

	var total float64
	for k := range buckets {
		total += 1 - math.Abs(a[k]-b[k])
	}
	return clamp01(total / float64(len(buckets))), true
}

// timeDistribution normalizes time-of-day interaction totals.
func timeDistribution(p patterns.BehaviorProfile) map[string]float64 {
	totals := p.TimeOfDayTotals()
	sum := 0
	for _, n := range totals {
		sum += n
	}
	dist := make(map[string]float64, len(totals))
	if sum == 0 {
		return dist
	}
	for bucket, n := range totals {
		dist[string(bucket)] = float64(n) / float64(sum)
	}
	return dist
}

// moodDistribution normalizes canonical mood counts.
func moodDistribution(p patterns.BehaviorProfile) map[string]float64 {
	sum := 0
	for _, n := range p.MoodCounts {
		sum += n
	}
	dist := make(map[string]float64, len(p.MoodCounts))
	if sum == 0 {
		return dist
	}
	for mood, n := range p.MoodCounts {
		dist[string(mood)] = float64(n) / float64(sum)
	}
	return dist
}

// overlapRatio is |∩| / max(|A|,|B|).
func overlapRatio(shared, lenA, lenB int) float64 {
	denom := lenA
	if lenB > denom {
		denom = lenB
	}
	if denom == 0 {
		return 0
	}
	return float64(shared) / float64(denom)
}

// intersect returns the sorted case-insensitive intersection of two lists.
func intersect(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[strings.ToLower(strings.TrimSpace(v))] = true
	}

	var out []string
	added := make(map[string]bool)
	for _, v := range b {
		key := strings.ToLower(strings.TrimSpace(v))
		if seen[key] && !added[key] {
			out = append(out, key)
			added[key] = true
		}
	}
	sort.Strings(out)
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
