package selection

import (
	"fmt"
	"sync"
)

// Tracker interprets a three-phase gesture (begin, zero or more moves, end)
// as a Shape in view coordinates. A cancel signal mid-drag discards the
// in-progress state.
type Tracker struct {
	mu     sync.Mutex
	mode   Kind
	active bool
	start  Point
	last   Point
}

// NewTracker creates a tracker producing shapes of the given kind
func NewTracker(mode Kind) *Tracker {
	return &Tracker{mode: mode}
}

// SetMode switches the produced shape kind. Takes effect on the next gesture.
func (t *Tracker) SetMode(mode Kind) {
	t.mu.Lock()
	t.mode = mode
	t.mu.Unlock()
}

// Mode returns the current shape kind
func (t *Tracker) Mode() Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Begin starts a gesture at the given view point, discarding any prior one
func (t *Tracker) Begin(x, y float64) {
	t.mu.Lock()
	t.active = true
	t.start = Point{X: x, Y: y}
	t.last = t.start
	t.mu.Unlock()
}

// Move updates the trailing gesture point. Ignored when no gesture is active.
func (t *Tracker) Move(x, y float64) {
	t.mu.Lock()
	if t.active {
		t.last = Point{X: x, Y: y}
	}
	t.mu.Unlock()
}

// End completes the gesture and builds the Shape from the start and end
// points. Ending without an active gesture is reported as cancelled.
func (t *Tracker) End(x, y float64) (Shape, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return Shape{}, ErrCancelled
	}
	t.active = false
	end := Point{X: x, Y: y}

	switch t.mode {
	case KindRectangle:
		return RectangleShape(t.start, end), nil
	case KindCircle:
		return CircleShape(t.start, end), nil
	default:
		return Shape{}, fmt.Errorf("unknown selection kind %v", t.mode)
	}
}

// Cancel discards the in-progress gesture
func (t *Tracker) Cancel() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
}

// Active reports whether a gesture is in progress
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
