package capture

import (
	"errors"

	"github.com/bryanchriswhite/SnipClip/internal/permission"
)

var (
	// ErrTimeout means no frame arrived within the configured bound
	ErrTimeout = errors.New("timed out waiting for frame")
	// ErrResource means allocation or mirroring setup failed
	ErrResource = errors.New("capture resource failure")
)

// Request describes one capture target. Created fresh per capture from the
// current display metrics; no persisted identity.
type Request struct {
	Width   int
	Height  int
	Density float64
}

// RawFrame is one frame as delivered by a mirror source. Stride is in bytes
// and may exceed 4×Width when the device buffer pads rows for alignment.
type RawFrame struct {
	Data   []byte
	Width  int
	Height int
	Stride int
}

// Source produces raw frames from an open mirror of the display. A source
// lives for one capture call and must be closed on every exit path.
type Source interface {
	// Name returns a human-readable name for this source
	Name() string

	// Grab blocks until the next frame is available
	Grab() (*RawFrame, error)

	// Close releases the mirror handle. Grab calls in flight return an
	// error after Close.
	Close() error
}

// Backend opens a Source for one capture call, validating the consent token
type Backend interface {
	// Name returns a human-readable name for this backend
	Name() string

	// IsAvailable checks if this backend can be used in the current environment
	IsAvailable() bool

	// Open allocates the mirror resources for one capture
	Open(req Request, token permission.Token) (Source, error)
}

// RevocationWatcher registers an observer for authorization loss during a
// capture. fn is invoked at most once; cancel unregisters the observer.
type RevocationWatcher interface {
	WatchRevoked(token permission.Token, fn func()) (cancel func(), err error)
}

// validateToken gates a backend open on a usable consent token
func validateToken(token permission.Token) error {
	if token.ResultCode != 0 {
		return errors.New("consent token carries a non-success result code")
	}
	if _, err := permission.ParseSession(token.Payload); err != nil {
		return err
	}
	return nil
}
