package selection

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrCancelled means the user aborted the gesture mid-drag
	ErrCancelled = errors.New("selection cancelled")
	// ErrTooSmall means the mapped bounds fall below the minimum selection size
	ErrTooSmall = errors.New("selection too small")
)

// Kind discriminates the selection shape variants
type Kind int

const (
	KindRectangle Kind = iota
	KindCircle
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindRectangle:
		return "rectangle"
	case KindCircle:
		return "circle"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a wire name to a Kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case "rectangle", "rect":
		return KindRectangle, nil
	case "circle":
		return KindCircle, nil
	default:
		return 0, fmt.Errorf("unknown selection kind %q", name)
	}
}

// Point is a position in view coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is the tagged union produced by one completed gesture, in view
// coordinates. Rectangle fields are valid when Kind is KindRectangle, circle
// fields when Kind is KindCircle. Consumers must switch exhaustively on Kind
// and treat any other value as an error.
type Shape struct {
	Kind Kind

	// Rectangle: axis-aligned box
	Left, Top, Right, Bottom float64

	// Circle
	Center Point
	Radius float64
}

// RectangleShape builds a normalized rectangle spanning two gesture points
func RectangleShape(a, b Point) Shape {
	return Shape{
		Kind:   KindRectangle,
		Left:   math.Min(a.X, b.X),
		Top:    math.Min(a.Y, b.Y),
		Right:  math.Max(a.X, b.X),
		Bottom: math.Max(a.Y, b.Y),
	}
}

// CircleShape builds a circle from two gesture points: center at the
// midpoint, radius half the distance between them.
func CircleShape(a, b Point) Shape {
	return Shape{
		Kind:   KindCircle,
		Center: Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2},
		Radius: math.Hypot(b.X-a.X, b.Y-a.Y) / 2,
	}
}
