package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()

	e := &CacheEntry{}
	assert.False(t, e.Expired(now), "no TTL never expires")

	future := now.Add(time.Minute)
	e.ExpiresAt = &future
	assert.False(t, e.Expired(now))

	// The boundary instant counts as expired.
	assert.True(t, e.Expired(future))
	assert.True(t, e.Expired(future.Add(time.Second)))
}
