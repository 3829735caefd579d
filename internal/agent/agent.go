// Package agent talks to the free-form AI endpoint that answers questions
// the scripted dialogue does not cover.
package agent

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited is returned when a user has exhausted their request
	// budget for the current window.
	ErrRateLimited = errors.New("ai rate limit exceeded")
	// ErrUnavailable is returned when the backend cannot produce an answer.
	ErrUnavailable = errors.New("ai endpoint unavailable")
)

// Request is one question for the AI endpoint.
type Request struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	UserID  string         `json:"-"`
}

// Response is the endpoint's answer.
type Response struct {
	Response string `json:"response"`
}

// Responder answers free-form requests.
type Responder interface {
	Respond(ctx context.Context, req Request) (Response, error)
}

// Backend is a Responder that holds resources.
type Backend interface {
	Responder
	Close()
}

// None is a Backend that always fails, so callers fall back to canned text.
type None struct{}

// Respond implements Responder.
func (None) Respond(context.Context, Request) (Response, error) {
	return Response{}, ErrUnavailable
}

// Close implements Backend.
func (None) Close() {}

var (
	_ Backend = None{}
	_ Backend = (*HTTPClient)(nil)
	_ Backend = (*GrpcClient)(nil)
	_ Backend = (*OpenAIClient)(nil)

	_ Responder = (*Service)(nil)
)
