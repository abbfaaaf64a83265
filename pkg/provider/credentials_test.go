package provider_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-script/pkg/provider"
)

func TestCredentialPoolRotation(t *testing.T) {
	pool := provider.NewCredentialPool("test", []string{"k1", "k2", "k3"})
	require.Equal(t, 3, pool.Size())

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		key, err := pool.Acquire()
		require.NoError(t, err)
		seen[key]++
	}
	assert.Equal(t, map[string]int{"k1": 2, "k2": 2, "k3": 2}, seen)
}

func TestCredentialPoolSkipsEmptyKeys(t *testing.T) {
	pool := provider.NewCredentialPool("test", []string{"", "k1", ""})
	assert.Equal(t, 1, pool.Size())
}

func TestCredentialPoolSkipsRateLimited(t *testing.T) {
	pool := provider.NewCredentialPool("test", []string{"k1", "k2"})
	pool.MarkRateLimited("k1", time.Hour)

	for i := 0; i < 4; i++ {
		key, err := pool.Acquire()
		require.NoError(t, err)
		assert.Equal(t, "k2", key)
	}
}

func TestCredentialPoolExhaustion(t *testing.T) {
	pool := provider.NewCredentialPool("test", []string{"k1", "k2"})
	pool.MarkRateLimited("k1", time.Hour)
	pool.MarkRateLimited("k2", 2*time.Hour)

	_, err := pool.Acquire()
	var exhausted *provider.ErrCredentialsExhausted
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "test", exhausted.Provider)
	// The earliest key recovers in about an hour.
	assert.Greater(t, exhausted.RetryAfter, 59*time.Minute)
	assert.LessOrEqual(t, exhausted.RetryAfter, time.Hour)
}

func TestCredentialPoolEmpty(t *testing.T) {
	pool := provider.NewCredentialPool("test", nil)
	_, err := pool.Acquire()
	var exhausted *provider.ErrCredentialsExhausted
	assert.True(t, errors.As(err, &exhausted))
}

func TestCredentialPoolConcurrentAccess(t *testing.T) {
	pool := provider.NewCredentialPool("test", []string{"k1", "k2", "k3"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key, err := pool.Acquire()
				if err != nil {
					continue
				}
				if n%4 == 0 {
					pool.MarkRateLimited(key, time.Millisecond)
				}
			}
		}(i)
	}
	wg.Wait()
}
