package provider

import (
	"sync"
	"time"
)

type credential struct {
	key            string
	exhaustedUntil time.Time
}

// CredentialPool rotates API keys for one backend and tracks which are
// rate-limited. Pools are shared across concurrent invocations, so every
// read and mark goes through the mutex; no lock is held across network
// calls.
type CredentialPool struct {
	provider string

	mu    sync.Mutex
	creds []*credential
	next  int
}

// NewCredentialPool creates a pool over the given keys.
func NewCredentialPool(provider string, keys []string) *CredentialPool {
	p := &CredentialPool{provider: provider}
	for _, key := range keys {
		if key != "" {
			p.creds = append(p.creds, &credential{key: key})
		}
	}
	return p
}

// Size returns the number of keys in the pool.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Acquire returns the next usable key in rotation. When every key is
// marked rate-limited it returns ErrCredentialsExhausted carrying the
// earliest recovery time.
func (p *CredentialPool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return "", &ErrCredentialsExhausted{Provider: p.provider}
	}

	now := time.Now()
	var earliest time.Time
	for i := 0; i < len(p.creds); i++ {
		cred := p.creds[(p.next+i)%len(p.creds)]
		if cred.exhaustedUntil.Before(now) {
			p.next = (p.next + i + 1) % len(p.creds)
			return cred.key, nil
		}
		if earliest.IsZero() || cred.exhaustedUntil.Before(earliest) {
			earliest = cred.exhaustedUntil
		}
	}
	return "", &ErrCredentialsExhausted{
		Provider:   p.provider,
		RetryAfter: time.Until(earliest),
	}
}

// MarkRateLimited sidelines a key for the given backoff.
func (p *CredentialPool) MarkRateLimited(key string, backoff time.Duration) {
	if backoff <= 0 {
		backoff = time.Minute
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cred := range p.creds {
		if cred.key == key {
			cred.exhaustedUntil = time.Now().Add(backoff)
			return
		}
	}
}
