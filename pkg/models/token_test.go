package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToken_ExpiryBuffer(t *testing.T) {
	fresh := Token{ExpiresIn: 3600, ObtainedAt: time.Now().UTC()}
	assert.False(t, fresh.IsExpired())

	// Inside the 300s safety buffer counts as expired.
	nearEdge := Token{ExpiresIn: 3600, ObtainedAt: time.Now().UTC().Add(-3301 * time.Second)}
	assert.True(t, nearEdge.IsExpired())

	outsideBuffer := Token{ExpiresIn: 3600, ObtainedAt: time.Now().UTC().Add(-3200 * time.Second)}
	assert.False(t, outsideBuffer.IsExpired())

	stale := Token{ExpiresIn: 3600, ObtainedAt: time.Now().UTC().Add(-2 * time.Hour)}
	assert.True(t, stale.IsExpired())
}
