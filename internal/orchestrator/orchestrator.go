package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/crop"
	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/bryanchriswhite/SnipClip/internal/permission"
	"github.com/bryanchriswhite/SnipClip/internal/selection"
)

// State is the capture pipeline state
type State int

const (
	StateIdle State = iota
	StateAwaitingPermission
	StateCapturing
	StateAwaitingSelection
	StateCropping
	StateDelivered
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPermission:
		return "awaiting_permission"
	case StateCapturing:
		return "capturing"
	case StateAwaitingSelection:
		return "awaiting_selection"
	case StateCropping:
		return "cropping"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FrameCapturer produces one full-display bitmap from a consent token
type FrameCapturer interface {
	Capture(ctx context.Context, token permission.Token) (*image.RGBA, error)
}

// Selector hands the captured bitmap to the UI collaborator and blocks until
// the user commits or cancels a selection. On commit it returns the shape in
// view coordinates plus the view-to-bitmap transform.
type Selector interface {
	Select(ctx context.Context, img *image.RGBA) (selection.Shape, selection.Transform, error)
}

// Sink accepts the finished bitmap for persistence and clipboard placement,
// and user-facing failure notifications.
type Sink interface {
	OnSuccess(ctx context.Context, img *image.RGBA) error
	OnFailure(err error)
}

// Options configure an Orchestrator
type Options struct {
	Cache    *permission.Cache
	Consent  permission.Flow
	Capturer FrameCapturer
	Selector Selector
	Sink     Sink

	// MinSelection rejects mapped bounds below this size, default 8
	MinSelection int
	// GrantSettle delays capture right after the consent dialog dismisses
	GrantSettle time.Duration
	// OverlaySettle delays the crop after selection commit so the overlay
	// chrome clears
	OverlaySettle time.Duration
}

// Orchestrator sequences one capture request end to end: permission →
// frame → selection → crop → delivery. Requests are serialized; a request
// while one is in flight is a no-op. There are no automatic retries — every
// failure surfaces once and the next attempt is user-initiated.
type Orchestrator struct {
	opts Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	state    State
	inFlight bool
	lastErr  string
	closed   bool
}

// New creates an orchestrator. Cache, Capturer, Selector and Sink are
// required; Consent may be nil when re-consent is handled out of process.
func New(opts Options) (*Orchestrator, error) {
	if opts.Cache == nil {
		return nil, errors.New("orchestrator requires a permission cache")
	}
	if opts.Capturer == nil {
		return nil, errors.New("orchestrator requires a frame capturer")
	}
	if opts.Selector == nil {
		return nil, errors.New("orchestrator requires a selector")
	}
	if opts.Sink == nil {
		return nil, errors.New("orchestrator requires a result sink")
	}
	if opts.MinSelection <= 0 {
		opts.MinSelection = 8
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
		state:   StateIdle,
	}, nil
}

// RequestCapture triggers one capture pipeline. Idempotent: returns false
// without starting anything when a pipeline is already in flight.
func (o *Orchestrator) RequestCapture() bool {
	o.mu.Lock()
	if o.inFlight || o.closed {
		o.mu.Unlock()
		logger.WithComponent("orchestrator").Debug().Msg("Capture already in flight, ignoring request")
		return false
	}
	o.inFlight = true
	o.state = StateIdle
	o.lastErr = ""
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(o.baseCtx)
	}()
	return true
}

// State returns the current pipeline state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// InFlight reports whether a pipeline is running
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// LastError returns the most recent failure message, empty when none
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// HasCachedPermission reports whether a consent token is cached
func (o *Orchestrator) HasCachedPermission() bool {
	return o.opts.Cache.HasPermission()
}

// InvalidatePermission discards the cached token; for callers that detect
// authorization loss independently.
func (o *Orchestrator) InvalidatePermission() {
	o.opts.Cache.Clear()
}

// Close cancels any in-flight pipeline and waits for it to unwind. All
// capture resources are released by their owners; nothing is resumable.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// run drives one request through the state machine
func (o *Orchestrator) run(ctx context.Context) {
	log := logger.WithComponent("orchestrator")

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		// Terminal states stay visible to the status API; anything else
		// (cancelled selection, shutdown) settles back to idle
		if o.state != StateDelivered && o.state != StateFailed {
			o.state = StateIdle
		}
		o.mu.Unlock()
	}()

	token, ok := o.opts.Cache.Read()
	if !ok {
		o.setState(StateAwaitingPermission)
		if o.opts.Consent == nil {
			o.fail(fmt.Errorf("%w: no consent flow configured", permission.ErrUnavailable))
			return
		}
		code, payload, err := o.opts.Consent.Request(ctx)
		if err != nil {
			// Cache stays empty on denial; next attempt re-prompts
			o.fail(err)
			return
		}
		o.opts.Cache.Store(code, payload)
		token, _ = o.opts.Cache.Read()
	}

	if o.opts.Cache.ConsumeJustGranted() && o.opts.GrantSettle > 0 {
		// Let the consent dialog's dismiss animation leave the screen
		if err := sleep(ctx, o.opts.GrantSettle); err != nil {
			o.fail(err)
			return
		}
	}

	o.setState(StateCapturing)
	img, err := o.opts.Capturer.Capture(ctx, token)
	if err != nil {
		// Capture failures are most often a revoked or stale token; force
		// re-consent on the next attempt.
		o.opts.Cache.Clear()
		o.fail(fmt.Errorf("capture failed: %w", err))
		return
	}

	bmpW := img.Bounds().Dx()
	bmpH := img.Bounds().Dy()

	for {
		o.setState(StateAwaitingSelection)
		shape, transform, err := o.opts.Selector.Select(ctx, img)
		if errors.Is(err, selection.ErrCancelled) {
			// User abort: discard the capture, no output, no failure
			log.Info().Msg("Selection cancelled, discarding capture")
			return
		}
		if err != nil {
			o.fail(fmt.Errorf("selection failed: %w", err))
			return
		}

		bounds, err := selection.Bounds(shape, transform, bmpW, bmpH, o.opts.MinSelection)
		if errors.Is(err, selection.ErrTooSmall) {
			// Degenerate gesture: keep the capture, ask again
			log.Info().Err(err).Msg("Selection too small, re-prompting")
			continue
		}
		if err != nil {
			o.fail(fmt.Errorf("selection failed: %w", err))
			return
		}

		if o.opts.OverlaySettle > 0 {
			// Let the selection overlay chrome clear before the crop
			if err := sleep(ctx, o.opts.OverlaySettle); err != nil {
				o.fail(err)
				return
			}
		}

		o.setState(StateCropping)
		var out *image.RGBA
		switch shape.Kind {
		case selection.KindRectangle:
			out, err = crop.Rect(img, bounds)
		case selection.KindCircle:
			var cx, cy, r float64
			cx, cy, r, err = selection.MapCircle(shape, transform)
			if err == nil {
				out, err = crop.Circle(img, cx, cy, r)
			}
		default:
			err = fmt.Errorf("unknown selection kind %v", shape.Kind)
		}
		if err != nil {
			if errors.Is(err, crop.ErrInvalidSelection) {
				// Geometry bug, not user error: empty bounds survived the
				// minimum-size check
				log.Error().Err(err).
					Str("kind", shape.Kind.String()).
					Msg("Selection geometry produced invalid bounds")
			}
			o.fail(fmt.Errorf("crop failed: %w", err))
			return
		}

		// Source bitmap ownership ends here; only the crop travels on
		img = nil

		if err := o.opts.Sink.OnSuccess(ctx, out); err != nil {
			o.fail(fmt.Errorf("delivery failed: %w", err))
			return
		}

		o.setState(StateDelivered)
		log.Info().
			Int("width", out.Bounds().Dx()).
			Int("height", out.Bounds().Dy()).
			Str("kind", shape.Kind.String()).
			Msg("Capture delivered")
		return
	}
}

// fail records the failure and issues the single user-visible notification
func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	o.state = StateFailed
	o.lastErr = err.Error()
	o.mu.Unlock()

	logger.WithComponent("orchestrator").Warn().Err(err).Msg("Capture request failed")
	o.opts.Sink.OnFailure(err)
}

// sleep waits for d or until ctx is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
