package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlacklistToken(t *testing.T) {
	assert.False(t, IsTokenBlacklisted("never-seen"))

	BlacklistToken("revoked-token", time.Now().Add(time.Hour))
	assert.True(t, IsTokenBlacklisted("revoked-token"))
	assert.False(t, IsTokenBlacklisted("other-token"))
}

func TestBlacklistTokenExpiresNaturally(t *testing.T) {
	BlacklistToken("short-lived", time.Now().Add(10*time.Millisecond))
	assert.True(t, IsTokenBlacklisted("short-lived"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, IsTokenBlacklisted("short-lived"))
}

func TestBlacklistTokenIgnoresAlreadyExpired(t *testing.T) {
	BlacklistToken("stale", time.Now().Add(-time.Minute))
	assert.False(t, IsTokenBlacklisted("stale"))
}
