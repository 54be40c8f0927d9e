package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/display"
	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/bryanchriswhite/SnipClip/internal/permission"
	"github.com/rs/zerolog"
)

// frameQueueDepth bounds the acquisition buffer so queued frames cannot
// grow memory without bound
const frameQueueDepth = 2

// Engine turns a cached consent token into one full-display bitmap per
// Capture call. All capture resources are bundled in a per-call surface and
// released on every exit path.
type Engine struct {
	backend Backend
	metrics display.Provider
	watcher RevocationWatcher
	timeout time.Duration
}

// NewEngine creates a capture engine. watcher may be nil when the platform
// offers no revocation signal.
func NewEngine(backend Backend, metrics display.Provider, watcher RevocationWatcher, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Engine{
		backend: backend,
		metrics: metrics,
		watcher: watcher,
		timeout: timeout,
	}
}

// Capture produces one full-display bitmap using the given consent token.
// On timeout it fails with ErrTimeout; setup failures wrap ErrResource.
// It never clears the cached token itself; that policy belongs to the
// orchestrator.
func (e *Engine) Capture(ctx context.Context, token permission.Token) (*image.RGBA, error) {
	log := logger.WithComponent("capture-engine")

	m, err := e.metrics.Metrics()
	if err != nil {
		return nil, fmt.Errorf("%w: display metrics: %v", ErrResource, err)
	}
	req := Request{Width: m.Width, Height: m.Height, Density: m.Density}

	s, err := e.openSurface(req, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}
	defer s.release(log)

	log.Debug().
		Int("width", req.Width).
		Int("height", req.Height).
		Float64("density", req.Density).
		Str("source", s.source.Name()).
		Msg("Capture surface open")

	// The first frame after surface creation is frequently stale or blank;
	// drop anything already queued before waiting for the real one.
	select {
	case <-s.frames:
		log.Debug().Msg("Dropped stale queued frame")
	default:
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-s.frames:
		if !ok || frame == nil {
			return nil, fmt.Errorf("%w: frame delivery stopped", ErrResource)
		}
		return frameToImage(frame)
	case <-s.revoked:
		return nil, fmt.Errorf("%w: authorization revoked mid-capture", ErrResource)
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// surface bundles the scarce resources of one capture call: the bounded
// frame queue, the open mirror source, the revocation observer and the
// delivery goroutine.
type surface struct {
	frames       chan *RawFrame
	source       Source
	revoked      chan struct{}
	revokeCancel func()
	stop         chan struct{}
	done         chan struct{}
	releaseOnce  sync.Once
}

func (e *Engine) openSurface(req Request, token permission.Token) (*surface, error) {
	src, err := e.backend.Open(req, token)
	if err != nil {
		return nil, err
	}

	s := &surface{
		frames:  make(chan *RawFrame, frameQueueDepth),
		source:  src,
		revoked: make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if e.watcher != nil {
		var once sync.Once
		cancel, err := e.watcher.WatchRevoked(token, func() {
			// Stop listening immediately; further delivery is meaningless.
			// Clearing the cached token stays with the orchestrator.
			once.Do(func() { close(s.revoked) })
		})
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("revocation observer: %w", err)
		}
		s.revokeCancel = cancel
	}

	go s.deliver()
	return s, nil
}

// deliver mirrors the display into the bounded queue until stopped. When the
// queue is full the oldest frame is dropped so the latest frame wins.
func (s *surface) deliver() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.revoked:
			return
		default:
		}

		frame, err := s.source.Grab()
		if err != nil {
			select {
			case <-s.stop:
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		select {
		case s.frames <- frame:
		default:
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- frame:
			default:
			}
		}
	}
}

// release tears the surface down: stop listening, release the mirror
// handle, unregister the revocation observer, drain the frame buffer, then
// wait for the delivery goroutine to exit. Every step runs even when an
// earlier one fails; failures are logged, never re-thrown.
func (s *surface) release(log *zerolog.Logger) {
	s.releaseOnce.Do(func() {
		close(s.stop)

		if err := s.source.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release mirror source")
		}

		if s.revokeCancel != nil {
			s.revokeCancel()
		}

		for {
			select {
			case <-s.frames:
				continue
			default:
			}
			break
		}

		<-s.done
		log.Debug().Msg("Capture surface released")
	})
}

// frameToImage converts a raw stride-padded frame into a tightly packed
// bitmap of exactly Width×Height. Direct sub-width copies would misalign
// scanlines, so the full buffer is copied at the padded stride first and
// then sub-cropped to the logical width.
func frameToImage(f *RawFrame) (*image.RGBA, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: empty frame %dx%d", ErrResource, f.Width, f.Height)
	}
	if f.Stride < f.Width*4 {
		return nil, fmt.Errorf("%w: stride %d below row width %d", ErrResource, f.Stride, f.Width*4)
	}
	if len(f.Data) < f.Stride*f.Height {
		return nil, fmt.Errorf("%w: frame buffer %d short of %d", ErrResource, len(f.Data), f.Stride*f.Height)
	}

	if f.Stride%4 != 0 {
		// Stride not pixel-aligned: fall back to a row-by-row copy
		out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
		for y := 0; y < f.Height; y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+f.Width*4], f.Data[y*f.Stride:])
		}
		return out, nil
	}

	paddedW := f.Stride / 4
	padded := image.NewRGBA(image.Rect(0, 0, paddedW, f.Height))
	copy(padded.Pix, f.Data[:f.Stride*f.Height])

	if paddedW == f.Width {
		return padded, nil
	}

	out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.Draw(out, out.Bounds(), padded, image.Point{}, draw.Src)
	return out, nil
}
