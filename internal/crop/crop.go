package crop

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// ErrInvalidSelection means the computed bounds were empty after clamping.
// This indicates a geometry bug upstream, not user error, and is logged
// distinctly by the orchestrator.
var ErrInvalidSelection = errors.New("invalid selection bounds")

// Rect extracts the pixels inside bounds. The output dimensions equal the
// bounds dimensions exactly.
func Rect(src *image.RGBA, bounds image.Rectangle) (*image.RGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidSelection)
	}

	bounds = bounds.Intersect(src.Bounds())
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelection, bounds)
	}

	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), src, bounds.Min, draw.Src)
	return out, nil
}

// Circle extracts a circular region centered at (cx, cy) with the given
// radius, both in bitmap pixels. The circle's bounding square is clamped to
// the bitmap; the shorter clamped side becomes the output diameter. The
// output is a transparent square with only the circular region painted, the
// source translated so the circle content stays aligned when the square was
// clamped asymmetrically at an edge.
func Circle(src *image.RGBA, cx, cy, radius float64) (*image.RGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidSelection)
	}

	b := src.Bounds()
	left := clamp(int(math.Round(cx-radius)), b.Min.X, b.Max.X)
	top := clamp(int(math.Round(cy-radius)), b.Min.Y, b.Max.Y)
	right := clamp(int(math.Round(cx+radius)), b.Min.X, b.Max.X)
	bottom := clamp(int(math.Round(cy+radius)), b.Min.Y, b.Max.Y)

	d := right - left
	if bottom-top < d {
		d = bottom - top
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: circle at (%.1f,%.1f) r=%.1f is outside %v", ErrInvalidSelection, cx, cy, radius, b)
	}

	// Position the source square on the circle center, then push it back
	// inside the bitmap so edge-clamped circles keep their content.
	sx := clamp(int(math.Round(cx))-d/2, b.Min.X, right-d)
	sy := clamp(int(math.Round(cy))-d/2, b.Min.Y, bottom-d)

	out := image.NewRGBA(image.Rect(0, 0, d, d))
	mask := &circleMask{center: image.Pt(d/2, d/2), radius: float64(d) / 2}
	draw.DrawMask(out, out.Bounds(), src, image.Pt(sx, sy), mask, image.Point{}, draw.Over)
	return out, nil
}

// circleMask is a full-alpha disc used as the draw mask for circular crops
type circleMask struct {
	center image.Point
	radius float64
}

func (m *circleMask) ColorModel() color.Model {
	return color.AlphaModel
}

func (m *circleMask) Bounds() image.Rectangle {
	r := int(math.Ceil(m.radius))
	return image.Rect(m.center.X-r, m.center.Y-r, m.center.X+r, m.center.Y+r)
}

func (m *circleMask) At(x, y int) color.Color {
	// Sample at the pixel center
	dx := float64(x-m.center.X) + 0.5
	dy := float64(y-m.center.Y) + 0.5
	if dx*dx+dy*dy <= m.radius*m.radius {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
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
