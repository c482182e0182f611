package resilience

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(eris.New("x"), 503), true},
		{"wrapped transient", fmt.Errorf("outer: %w", NewTransientError(eris.New("x"), 429)), true},
		{"explicit permanent", NewPermanentError(eris.New("x"), 404), false},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"timeout string", eris.New("dial tcp: i/o timeout"), true},
		{"dns string", eris.New("lookup api.example.com: no such host"), true},
		{"plain error", eris.New("something else"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"empty", ErrEmptyResultSet, "empty_result_set"},
		{"wrapped empty", fmt.Errorf("fetch: %w", ErrEmptyResultSet), "empty_result_set"},
		{"rate limited", ErrRateLimited, "rate_limited"},
		{"permanent", NewPermanentError(eris.New("x"), 404), "permanent_upstream"},
		{"transient", NewTransientError(eris.New("x"), 502), "transient_upstream"},
		{"other", eris.New("x"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestRetryAfterOf(t *testing.T) {
	te := NewTransientError(eris.New("throttled"), 429)
	te.RetryAfter = 42
	assert.EqualValues(t, 42, RetryAfterOf(fmt.Errorf("outer: %w", te)))
	assert.EqualValues(t, 0, RetryAfterOf(eris.New("plain")))
}
