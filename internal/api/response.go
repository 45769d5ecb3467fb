// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package api exposes the personalization engine over HTTP with a
// standardized JSON response envelope.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/attune/internal/logging"
)

// Response is the wrapper for every API response.
type Response struct {
	Success bool `json:"success"`

	// Data is the payload, null on error.
	Data interface{} `json:"data,omitempty"`

	// Error holds failure details, null on success.
	Error *Error `json:"error,omitempty"`

	Meta *Meta `json:"meta,omitempty"`
}

// Error is the machine-readable failure shape.
type Error struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Meta carries response metadata.
type Meta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeTooManyRequests  = "TOO_MANY_REQUESTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// responseWriter writes enveloped responses for one request.
type responseWriter struct {
	w         http.ResponseWriter
	r         *http.Request
	startTime time.Time
}

func newResponseWriter(w http.ResponseWriter, r *http.Request) *responseWriter {
	return &responseWriter{w: w, r: r, startTime: time.Now()}
}

func (rw *responseWriter) meta() *Meta {
	return &Meta{
		RequestID:  requestIDFromContext(rw.r.Context()),
		Timestamp:  time.Now(),
		DurationMs: time.Since(rw.startTime).Milliseconds(),
	}
}

// Success writes a 200 response with data.
func (rw *responseWriter) Success(data interface{}) {
	rw.writeJSON(http.StatusOK, Response{Success: true, Data: data, Meta: rw.meta()})
}

// Created writes a 201 response with data.
func (rw *responseWriter) Created(data interface{}) {
	rw.writeJSON(http.StatusCreated, Response{Success: true, Data: data, Meta: rw.meta()})
}

// Accepted writes a 202 response with data.
func (rw *responseWriter) Accepted(data interface{}) {
	rw.writeJSON(http.StatusAccepted, Response{Success: true, Data: data, Meta: rw.meta()})
}

// NoContent writes a bare 204.
func (rw *responseWriter) NoContent() {
	rw.w.WriteHeader(http.StatusNoContent)
}

func (rw *responseWriter) errorResponse(statusCode int, code, message string, details interface{}) {
	requestID := requestIDFromContext(rw.r.Context())
	rw.writeJSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
		Meta: rw.meta(),
	})
}

// BadRequest writes a 400 error.
func (rw *responseWriter) BadRequest(message string) {
	rw.errorResponse(http.StatusBadRequest, ErrCodeBadRequest, message, nil)
}

// ValidationError writes a 400 error with field details.
func (rw *responseWriter) ValidationError(message string, details interface{}) {
	rw.errorResponse(http.StatusBadRequest, ErrCodeValidationFailed, message, details)
}

// NotFound writes a 404 error.
func (rw *responseWriter) NotFound(message string) {
	rw.errorResponse(http.StatusNotFound, ErrCodeNotFound, message, nil)
}

// InternalError writes a 500 error.
func (rw *responseWriter) InternalError(message string) {
	rw.errorResponse(http.StatusInternalServerError, ErrCodeInternalError, message, nil)
}

func (rw *responseWriter) ServiceUnavailable(message string) {
	rw.errorResponse(http.StatusServiceUnavailable, ErrCodeUnavailable, message, nil)
}

func (rw *responseWriter) writeJSON(statusCode int, data interface{}) {
	rw.w.Header().Set("Content-Type", "application/json")
	rw.w.WriteHeader(statusCode)
	if err := json.NewEncoder(rw.w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}
