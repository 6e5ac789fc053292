package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs_MatchesByType(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target *Error
		want   bool
	}{
		{"config", ConfigError("missing client id"), ErrConfig, true},
		{"config vs api", ConfigError("missing client id"), ErrAPI, false},
		{"transport", TransportError(fmt.Errorf("dial tcp: refused"), "/users"), ErrTransport, true},
		{"api", APIError("/users", 500, "", "boom"), ErrAPI, true},
		{"authorization", AuthorizationError("/organization", 403, "", "forbidden"), ErrAuthorization, true},
		{"wrapped by fmt", fmt.Errorf("run: %w", APIError("/", 502, "", "bad gateway")), ErrAPI, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stderrors.Is(tt.err, tt.target))
		})
	}
}

func TestWrapValidation_KeepsCauseCategory(t *testing.T) {
	cause := AuthorizationError("/organization", 0, "MISSING_API_PERMISSION", "missing permission")
	err := WrapValidation(cause, "directory permission check failed")

	assert.True(t, stderrors.Is(err, ErrValidation))
	assert.True(t, stderrors.Is(err, ErrAuthorization))
	assert.Equal(t, ErrorTypeValidation, GetType(err))
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("fetch messages: %w", APIError("/users/u/messages", 503, "", "unavailable"))
	assert.Equal(t, 503, StatusCode(err))
	assert.Equal(t, 0, StatusCode(fmt.Errorf("plain")))
	assert.Equal(t, 0, StatusCode(nil))
}

func TestError_MessageIncludesEndpointAndStatus(t *testing.T) {
	err := APIError("/users/u/messages", 500, "InternalServerError", "server exploded")
	assert.Contains(t, err.Error(), "server exploded")
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "/users/u/messages")

	detailed := err.WithContext("attempts", 3).DetailedString()
	assert.Contains(t, detailed, "[CRITICAL] [API]")
	assert.Contains(t, detailed, "attempts: 3")
}

func TestWrap_NilCause(t *testing.T) {
	require.Nil(t, Wrap(nil, ErrorTypeDatabase, SeverityCritical, "nothing"))
	require.Nil(t, TransportError(nil, "/"))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ConfigError("x")))
	assert.False(t, IsFatal(TransportError(fmt.Errorf("reset"), "/")))
	assert.False(t, IsFatal(fmt.Errorf("plain")))
	assert.Equal(t, SeverityMedium, GetSeverity(fmt.Errorf("plain")))
	assert.Equal(t, SeverityLow, GetSeverity(nil))
}
