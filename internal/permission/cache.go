package permission

import (
	"errors"
	"sync"

	"github.com/bryanchriswhite/SnipClip/internal/logger"
)

var (
	// ErrDenied means the user declined the consent dialog
	ErrDenied = errors.New("screen capture consent denied")
	// ErrUnavailable means the platform consent mechanism is missing
	ErrUnavailable = errors.New("screen capture consent unavailable")
)

// Token is a screen-capture authorization artifact: the consent result code
// plus the opaque payload issued by the platform. Immutable once stored.
type Token struct {
	ResultCode int
	Payload    []byte
}

// Clone returns a deep copy of the token
func (t Token) Clone() Token {
	payload := make([]byte, len(t.Payload))
	copy(payload, t.Payload)
	return Token{ResultCode: t.ResultCode, Payload: payload}
}

// Cache holds the most recent capture consent token so it can be reused
// across capture attempts without re-prompting the user. It holds at most
// one token; a new Store overwrites the previous entry.
//
// The cache is constructed once at process start and passed by reference to
// the orchestrator and the consent flow. Reads from the status API and
// writes from the post-consent path can interleave, so every access is
// serialized internally.
type Cache struct {
	mu          sync.Mutex
	token       *Token
	justGranted bool
}

// NewCache creates an empty consent token cache
func NewCache() *Cache {
	return &Cache{}
}

// Store deep-copies the payload and overwrites any prior entry, marking the
// one-shot just-granted flag.
func (c *Cache) Store(resultCode int, payload []byte) {
	t := Token{ResultCode: resultCode, Payload: payload}.Clone()

	c.mu.Lock()
	c.token = &t
	c.justGranted = true
	c.mu.Unlock()

	logger.WithComponent("permission").Debug().
		Int("result_code", resultCode).
		Int("payload_bytes", len(payload)).
		Msg("Consent token stored")
}

// Read returns a deep copy of the cached token, never the live reference.
func (c *Cache) Read() (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return Token{}, false
	}
	return c.token.Clone(), true
}

// Clear discards the entry and resets the just-granted flag. Called by the
// orchestrator when a capture attempt fails with an authorization error so
// the next attempt re-prompts.
func (c *Cache) Clear() {
	c.mu.Lock()
	cleared := c.token != nil
	c.token = nil
	c.justGranted = false
	c.mu.Unlock()

	if cleared {
		logger.WithComponent("permission").Debug().Msg("Consent token cleared")
	}
}

// HasPermission reports whether a consent token is cached
func (c *Cache) HasPermission() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil
}

// ConsumeJustGranted returns true exactly once after a Store. Callers use it
// to insert a settle delay after the consent dialog dismisses, so the
// dialog's own dismiss animation is not captured.
func (c *Cache) ConsumeJustGranted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	granted := c.justGranted
	c.justGranted = false
	return granted
}
