package orchestrator

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/permission"
	"github.com/bryanchriswhite/SnipClip/internal/selection"
)

// fakeConsent grants or denies programmatically
type fakeConsent struct {
	code     int
	payload  []byte
	err      error
	requests atomic.Int32
}

func (f *fakeConsent) Request(ctx context.Context) (int, []byte, error) {
	f.requests.Add(1)
	return f.code, f.payload, f.err
}

// fakeCapturer records capture calls and serves a fixed bitmap
type fakeCapturer struct {
	img      *image.RGBA
	err      error
	captures atomic.Int32
}

func (f *fakeCapturer) Capture(ctx context.Context, token permission.Token) (*image.RGBA, error) {
	f.captures.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.img, nil
}

// fakeSelector replays scripted selection outcomes in order
type fakeSelector struct {
	mu      sync.Mutex
	results []selectOutcome
	calls   int
}

type selectOutcome struct {
	shape     selection.Shape
	transform selection.Transform
	err       error
}

func (f *fakeSelector) Select(ctx context.Context, img *image.RGBA) (selection.Shape, selection.Transform, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.results) {
		return selection.Shape{}, selection.Transform{}, errors.New("unexpected extra selection")
	}
	r := f.results[f.calls]
	f.calls++
	return r.shape, r.transform, r.err
}

func (f *fakeSelector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSink records the delivered bitmap and any failure
type fakeSink struct {
	mu        sync.Mutex
	delivered *image.RGBA
	failures  []error
	err       error
}

func (f *fakeSink) OnSuccess(ctx context.Context, img *image.RGBA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = img
	return nil
}

func (f *fakeSink) OnFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

func (f *fakeSink) deliveredImage() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered
}

func (f *fakeSink) failureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

func sessionPayload() []byte {
	return []byte(`{"handle":"/test/session/1"}`)
}

func rectOutcome(l, t, r, b float64) selectOutcome {
	return selectOutcome{
		shape:     selection.RectangleShape(selection.Point{X: l, Y: t}, selection.Point{X: r, Y: b}),
		transform: selection.Identity(),
	}
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for o.InFlight() {
		select {
		case <-deadline:
			t.Fatal("pipeline did not finish")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	o, err := New(opts)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func TestPipeline_FullDelivery(t *testing.T) {
	cache := permission.NewCache()
	consent := &fakeConsent{code: 0, payload: sessionPayload()}
	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 400, 300))}
	selector := &fakeSelector{results: []selectOutcome{rectOutcome(20, 30, 120, 130)}}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Consent: consent, Capturer: capturer, Selector: selector, Sink: sink,
	})

	if !o.RequestCapture() {
		t.Fatal("request not accepted")
	}
	waitIdle(t, o)

	if o.State() != StateDelivered {
		t.Fatalf("expected delivered, got %v", o.State())
	}
	out := sink.deliveredImage()
	if out == nil || out.Bounds().Dx() != 100 || out.Bounds().Dy() != 100 {
		t.Fatalf("unexpected delivery %v", out)
	}
	if !cache.HasPermission() {
		t.Fatal("token not cached after grant")
	}
	if consent.requests.Load() != 1 {
		t.Fatalf("expected one consent prompt, got %d", consent.requests.Load())
	}
}

func TestPipeline_ReusesCachedToken(t *testing.T) {
	cache := permission.NewCache()
	cache.Store(0, sessionPayload())
	cache.ConsumeJustGranted()

	consent := &fakeConsent{code: 0, payload: sessionPayload()}
	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 400, 300))}
	selector := &fakeSelector{results: []selectOutcome{rectOutcome(0, 0, 50, 50)}}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Consent: consent, Capturer: capturer, Selector: selector, Sink: sink,
	})
	o.RequestCapture()
	waitIdle(t, o)

	if consent.requests.Load() != 0 {
		t.Fatalf("cached token should skip the prompt, got %d requests", consent.requests.Load())
	}
	if sink.deliveredImage() == nil {
		t.Fatal("nothing delivered")
	}
}

func TestPipeline_DenialLeavesCacheEmpty(t *testing.T) {
	cache := permission.NewCache()
	consent := &fakeConsent{err: permission.ErrDenied}
	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 100, 100))}
	selector := &fakeSelector{}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Consent: consent, Capturer: capturer, Selector: selector, Sink: sink,
	})
	o.RequestCapture()
	waitIdle(t, o)

	if o.State() != StateFailed {
		t.Fatalf("expected failed, got %v", o.State())
	}
	if cache.HasPermission() {
		t.Fatal("denied consent left a cached token")
	}
	if capturer.captures.Load() != 0 {
		t.Fatal("capture attempted without consent")
	}
	if sink.failureCount() != 1 {
		t.Fatalf("expected one failure notification, got %d", sink.failureCount())
	}
}

func TestPipeline_CaptureFailureClearsToken(t *testing.T) {
	cache := permission.NewCache()
	cache.Store(0, sessionPayload())
	cache.ConsumeJustGranted()

	capturer := &fakeCapturer{err: errors.New("mirror lost")}
	selector := &fakeSelector{}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Capturer: capturer, Selector: selector, Sink: sink,
	})
	o.RequestCapture()
	waitIdle(t, o)

	if o.State() != StateFailed {
		t.Fatalf("expected failed, got %v", o.State())
	}
	if cache.HasPermission() {
		t.Fatal("capture failure must clear the cached token")
	}
	if selector.callCount() != 0 {
		t.Fatal("selection ran after capture failure")
	}
}

func TestPipeline_CancelDiscardsQuietly(t *testing.T) {
	cache := permission.NewCache()
	cache.Store(0, sessionPayload())
	cache.ConsumeJustGranted()

	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 100, 100))}
	selector := &fakeSelector{results: []selectOutcome{{err: selection.ErrCancelled}}}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Capturer: capturer, Selector: selector, Sink: sink,
	})
	o.RequestCapture()
	waitIdle(t, o)

	if o.State() != StateIdle {
		t.Fatalf("expected idle after cancel, got %v", o.State())
	}
	if sink.deliveredImage() != nil || sink.failureCount() != 0 {
		t.Fatal("cancel must produce neither output nor failure")
	}
	// Cancel keeps the token: next capture skips the prompt
	if !cache.HasPermission() {
		t.Fatal("cancel cleared the cached token")
	}
}

func TestPipeline_TooSmallRepromptsWithSameCapture(t *testing.T) {
	cache := permission.NewCache()
	cache.Store(0, sessionPayload())
	cache.ConsumeJustGranted()

	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 400, 300))}
	selector := &fakeSelector{results: []selectOutcome{
		rectOutcome(10, 10, 12, 12), // below minimum
		rectOutcome(50, 50, 150, 150),
	}}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Capturer: capturer, Selector: selector, Sink: sink,
	})
	o.RequestCapture()
	waitIdle(t, o)

	if o.State() != StateDelivered {
		t.Fatalf("expected delivered after re-prompt, got %v", o.State())
	}
	if selector.callCount() != 2 {
		t.Fatalf("expected 2 selection rounds, got %d", selector.callCount())
	}
	if capturer.captures.Load() != 1 {
		t.Fatalf("re-prompt must reuse the capture, got %d captures", capturer.captures.Load())
	}
}

func TestPipeline_CircleSelection(t *testing.T) {
	cache := permission.NewCache()
	cache.Store(0, sessionPayload())
	cache.ConsumeJustGranted()

	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 400, 300))}
	selector := &fakeSelector{results: []selectOutcome{{
		shape:     selection.CircleShape(selection.Point{X: 100, Y: 100}, selection.Point{X: 220, Y: 100}),
		transform: selection.Identity(),
	}}}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Capturer: capturer, Selector: selector, Sink: sink,
	})
	o.RequestCapture()
	waitIdle(t, o)

	if o.State() != StateDelivered {
		t.Fatalf("expected delivered, got %v", o.State())
	}
	out := sink.deliveredImage()
	// center (160,100), radius 60 -> 120x120 square
	if out == nil || out.Bounds().Dx() != 120 || out.Bounds().Dy() != 120 {
		t.Fatalf("unexpected circle crop %v", out.Bounds())
	}
}

func TestRequestCapture_Idempotent(t *testing.T) {
	cache := permission.NewCache()
	cache.Store(0, sessionPayload())
	cache.ConsumeJustGranted()

	release := make(chan struct{})
	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 100, 100))}
	selector := &blockingSelector{release: release, in: make(chan struct{})}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, Options{
		Cache: cache, Capturer: capturer, Selector: selector, Sink: sink,
	})

	if !o.RequestCapture() {
		t.Fatal("first request rejected")
	}
	selector.waitEntered(t)
	if o.RequestCapture() {
		t.Fatal("second request started a concurrent pipeline")
	}
	close(release)
	waitIdle(t, o)

	if capturer.captures.Load() != 1 {
		t.Fatalf("expected a single capture, got %d", capturer.captures.Load())
	}
}

// blockingSelector parks in Select until released, then cancels
type blockingSelector struct {
	release chan struct{}
	entered sync.Once
	in      chan struct{}
}

func (b *blockingSelector) Select(ctx context.Context, img *image.RGBA) (selection.Shape, selection.Transform, error) {
	b.entered.Do(func() {
		if b.in != nil {
			close(b.in)
		}
	})
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return selection.Shape{}, selection.Transform{}, selection.ErrCancelled
}

func (b *blockingSelector) waitEntered(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-b.in:
			return
		case <-deadline:
			t.Fatal("selector never entered")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}
