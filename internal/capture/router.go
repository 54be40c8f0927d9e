package capture

import (
	"fmt"

	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/bryanchriswhite/SnipClip/internal/permission"
)

// Router picks the first available backend per capture call. Preference
// "x11" or "fallback" pins one backend; "auto" tries X11 first.
type Router struct {
	preference string
	backends   []Backend
}

// NewRouter creates a backend router with the given preference
func NewRouter(preference string) *Router {
	return &Router{
		preference: preference,
		backends: []Backend{
			NewX11Backend(),
			NewFallbackBackend(),
		},
	}
}

// Name returns the router name
func (r *Router) Name() string {
	return "router"
}

// IsAvailable checks if any backend can be used
func (r *Router) IsAvailable() bool {
	for _, b := range r.candidates() {
		if b.IsAvailable() {
			return true
		}
	}
	return false
}

// Open opens a source on the first backend that succeeds
func (r *Router) Open(req Request, token permission.Token) (Source, error) {
	log := logger.WithComponent("capture-router")

	var lastErr error
	for _, b := range r.candidates() {
		if !b.IsAvailable() {
			log.Debug().Str("backend", b.Name()).Msg("Backend not available")
			continue
		}
		src, err := b.Open(req, token)
		if err != nil {
			log.Warn().Err(err).Str("backend", b.Name()).Msg("Failed to open backend")
			lastErr = err
			continue
		}
		log.Debug().Str("backend", b.Name()).Msg("Opened capture backend")
		return src, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no capture backends available")
}

func (r *Router) candidates() []Backend {
	if r.preference == "" || r.preference == "auto" {
		return r.backends
	}
	for _, b := range r.backends {
		if b.Name() == r.preference {
			return []Backend{b}
		}
	}
	return r.backends
}
