package selection

import (
	"fmt"
	"image"
	"math"
)

// Transform maps view coordinates onto bitmap pixels. The overlay renders
// the bitmap center-fit: scaled uniformly to fit the view, leftover space
// split evenly.
type Transform struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// Identity returns the no-op transform
func Identity() Transform {
	return Transform{Scale: 1}
}

// FitTransform computes the center-fit transform for a bitmap rendered
// inside a view: scale = min(viewW/bmpW, viewH/bmpH), offsets center the
// scaled bitmap.
func FitTransform(viewW, viewH, bmpW, bmpH int) Transform {
	if viewW <= 0 || viewH <= 0 || bmpW <= 0 || bmpH <= 0 {
		return Identity()
	}
	scale := math.Min(float64(viewW)/float64(bmpW), float64(viewH)/float64(bmpH))
	return Transform{
		Scale:   scale,
		OffsetX: (float64(viewW) - float64(bmpW)*scale) / 2,
		OffsetY: (float64(viewH) - float64(bmpH)*scale) / 2,
	}
}

// ToBitmap maps one view point into bitmap coordinates
func (t Transform) ToBitmap(p Point) Point {
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	return Point{
		X: (p.X - t.OffsetX) / scale,
		Y: (p.Y - t.OffsetY) / scale,
	}
}

// Bounds maps a shape into integer pixel bounds within the bitmap: unmap the
// view transform, clamp to the bitmap extents, round, normalize. Bounds
// narrower than minPx in either dimension are rejected with ErrTooSmall
// rather than clamped to a degenerate rect.
func Bounds(s Shape, t Transform, bmpW, bmpH, minPx int) (image.Rectangle, error) {
	if minPx < 1 {
		minPx = 1
	}

	var a, b Point
	switch s.Kind {
	case KindRectangle:
		a = Point{X: s.Left, Y: s.Top}
		b = Point{X: s.Right, Y: s.Bottom}
	case KindCircle:
		a = Point{X: s.Center.X - s.Radius, Y: s.Center.Y - s.Radius}
		b = Point{X: s.Center.X + s.Radius, Y: s.Center.Y + s.Radius}
	default:
		return image.Rectangle{}, fmt.Errorf("unknown selection kind %v", s.Kind)
	}

	pa := t.ToBitmap(a)
	pb := t.ToBitmap(b)

	left := int(math.Round(math.Min(pa.X, pb.X)))
	top := int(math.Round(math.Min(pa.Y, pb.Y)))
	right := int(math.Round(math.Max(pa.X, pb.X)))
	bottom := int(math.Round(math.Max(pa.Y, pb.Y)))

	left = clamp(left, 0, bmpW)
	right = clamp(right, 0, bmpW)
	top = clamp(top, 0, bmpH)
	bottom = clamp(bottom, 0, bmpH)

	if right-left < minPx || bottom-top < minPx {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d is below %dpx", ErrTooSmall, right-left, bottom-top, minPx)
	}

	return image.Rect(left, top, right, bottom), nil
}

// MapCircle maps a circle shape into bitmap coordinates, returning its
// center and radius. Errors on non-circle shapes.
func MapCircle(s Shape, t Transform) (cx, cy, r float64, err error) {
	if s.Kind != KindCircle {
		return 0, 0, 0, fmt.Errorf("shape is %v, not a circle", s.Kind)
	}
	c := t.ToBitmap(s.Center)
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	return c.X, c.Y, s.Radius / scale, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
