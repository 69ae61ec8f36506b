package kind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, New(RateLimit, "", "throttled").Retryable())
	assert.True(t, New(TransientNetwork, "", "timeout").Retryable())
	assert.False(t, New(Authentication, "", "expired").Retryable())
	assert.False(t, New(PermanentAPI, "", "rejected").Retryable())
	assert.False(t, New(MediaPreparation, "", "bad crop").Retryable())
}

func TestOfUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("posting: %w", New(Authentication, "bluesky", "bad password"))
	assert.Equal(t, Authentication, Of(wrapped))
	assert.True(t, IsAuthentication(wrapped))

	assert.Equal(t, PermanentAPI, Of(errors.New("plain")))
	assert.False(t, IsAuthentication(errors.New("plain")))
}

func TestErrorStringIncludesPlatform(t *testing.T) {
	assert.Equal(t, "bluesky: bad password", New(Authentication, "bluesky", "bad password").Error())
	assert.Equal(t, "bad password", New(Authentication, "", "bad password").Error())
}
