package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"typed", Invalid("bad domain %q", "x"), InputInvalid},
		{"wrapped typed", fmt.Errorf("outer: %w", New(RecordAbsent, "empty")), RecordAbsent},
		{"deadline", fmt.Errorf("lookup: %w", context.DeadlineExceeded), UpstreamTimeout},
		{"net timeout", timeoutErr{}, UpstreamTimeout},
		{"plain", errors.New("boom"), Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("handler: %w", Invalid("missing email"))
	assert.True(t, errors.Is(err, New(InputInvalid, "")))
	assert.False(t, errors.Is(err, New(UpstreamTimeout, "")))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Status(InputInvalid))
	assert.Equal(t, http.StatusNotFound, Status(RecordNotFound))
	assert.Equal(t, http.StatusGatewayTimeout, Status(UpstreamTimeout))
	assert.Equal(t, http.StatusBadGateway, Status(UpstreamUnavailable))
	assert.Equal(t, http.StatusInternalServerError, Status(Internal))
}
