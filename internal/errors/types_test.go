package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("boom"), ""), true},
		{"explicit permanent", NewPermanentError(errors.New("boom"), ""), false},
		{"tool not found sentinel", ErrToolNotFound, false},
		{"invalid arguments sentinel", ErrInvalidArguments, false},
		{"wrapped tool not found", fmt.Errorf("invoke: %w", ErrToolNotFound), false},
		{"429 status", NewTransientHTTPError(errors.New("rate limited"), 429), true},
		{"503 in message", errors.New("upstream returned status 503"), true},
		{"401 in message", errors.New("upstream returned status 401"), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"malformed response", &MalformedResponseError{Endpoint: "agent", Err: errors.New("bad json")}, false},
		{"plain error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(NewPermanentError(errors.New("auth"), "")))
	assert.True(t, IsPermanent(ErrInvalidArguments))
	assert.True(t, IsPermanent(&MalformedResponseError{Endpoint: "tool", Err: errors.New("schema")}))
	assert.True(t, IsPermanent(errors.New("401 unauthorized")))
	assert.False(t, IsPermanent(NewTransientError(errors.New("flaky"), "")))
	assert.False(t, IsPermanent(nil))
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeTransient, GetErrorType(NewTransientError(errors.New("x"), "")))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(NewPermanentError(errors.New("x"), "")))
	assert.Equal(t, ErrorTypeDegraded, GetErrorType(NewDegradedError(errors.New("x"), "", "")))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(nil))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"tool not found", fmt.Errorf("registry: %w", ErrToolNotFound), KindToolNotFound},
		{"invalid arguments", fmt.Errorf("schema: %w", ErrInvalidArguments), KindInvalidArguments},
		{"scoring", &ScoringError{CaseID: "c1", Reason: "no rubric"}, KindScoring},
		{"malformed", &MalformedResponseError{Endpoint: "agent", Err: errors.New("x")}, KindMalformedResponse},
		{"circuit open", NewDegradedError(errors.New("open"), "circuit breaker open", ""), KindCircuitOpen},
		{"timeout", errors.New("context deadline exceeded"), KindTimeout},
		{"transient", NewTransientHTTPError(errors.New("status 503"), 503), KindTransientNetwork},
		{"permanent", NewPermanentHTTPError(errors.New("status 403"), 403), KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	err := FromHTTPStatus("sec-api", 429)
	assert.True(t, IsTransient(err))

	err = FromHTTPStatus("sec-api", 401)
	assert.True(t, IsPermanent(err))
	assert.False(t, IsTransient(err))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")

	assert.ErrorIs(t, NewTransientError(inner, "msg"), inner)
	assert.ErrorIs(t, NewPermanentError(inner, "msg"), inner)
	assert.ErrorIs(t, &MalformedResponseError{Endpoint: "x", Err: inner}, inner)
}
