package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/SnipClip/internal/permission"
	"github.com/kbinani/screenshot"
)

// FallbackBackend mirrors the primary display through the cross-platform
// screenshot library. Used when no X server is reachable directly.
type FallbackBackend struct{}

// NewFallbackBackend creates a new fallback backend
func NewFallbackBackend() *FallbackBackend {
	return &FallbackBackend{}
}

// Name returns the backend name
func (b *FallbackBackend) Name() string {
	return "fallback"
}

// IsAvailable checks if any display is active
func (b *FallbackBackend) IsAvailable() bool {
	return screenshot.NumActiveDisplays() > 0
}

// Open validates the token and resolves the primary display bounds
func (b *FallbackBackend) Open(req Request, token permission.Token) (Source, error) {
	if err := validateToken(token); err != nil {
		return nil, err
	}
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("no active displays found")
	}

	bounds := screenshot.GetDisplayBounds(0)
	if req.Width > 0 && req.Height > 0 {
		bounds = image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+req.Width, bounds.Min.Y+req.Height)
	}

	return &screenSource{bounds: bounds}, nil
}

// screenSource grabs primary-display frames via the screenshot library
type screenSource struct {
	bounds image.Rectangle
	mu     sync.Mutex
	closed bool
}

// Name returns the source name
func (s *screenSource) Name() string {
	return "fallback"
}

// Grab captures one frame of the display bounds. The returned image carries
// its own stride, which can exceed 4×width on some platforms.
func (s *screenSource) Grab() (*RawFrame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("source closed")
	}
	s.mu.Unlock()

	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture display: %w", err)
	}

	return &RawFrame{
		Data:   img.Pix,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Stride: img.Stride,
	}, nil
}

// Close marks the source released
func (s *screenSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
