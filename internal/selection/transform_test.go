package selection

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFitTransform_TallBitmapInWideView(t *testing.T) {
	// 500x500 bitmap in a 1000x2000 view: scale 2, vertically centered
	tr := FitTransform(1000, 2000, 500, 500)
	if !almostEqual(tr.Scale, 2) {
		t.Fatalf("expected scale 2, got %v", tr.Scale)
	}
	if !almostEqual(tr.OffsetX, 0) || !almostEqual(tr.OffsetY, 500) {
		t.Fatalf("expected offsets (0, 500), got (%v, %v)", tr.OffsetX, tr.OffsetY)
	}
}

func TestFitTransform_DegenerateDimensions(t *testing.T) {
	tr := FitTransform(0, 100, 50, 50)
	if tr != Identity() {
		t.Fatalf("expected identity for zero view, got %+v", tr)
	}
}

func TestToBitmap_UnmapsScaleAndOffset(t *testing.T) {
	tr := Transform{Scale: 2, OffsetX: 0, OffsetY: 500}
	p := tr.ToBitmap(Point{X: 200, Y: 700})
	if !almostEqual(p.X, 100) || !almostEqual(p.Y, 100) {
		t.Fatalf("expected (100, 100), got (%v, %v)", p.X, p.Y)
	}
}

func TestBounds_RectangleIdentity(t *testing.T) {
	s := RectangleShape(Point{X: 20, Y: 30}, Point{X: 120, Y: 130})
	r, err := Bounds(s, Identity(), 1920, 1080, 8)
	if err != nil {
		t.Fatalf("bounds error: %v", err)
	}
	if r.Min.X != 20 || r.Min.Y != 30 || r.Dx() != 100 || r.Dy() != 100 {
		t.Fatalf("unexpected bounds %v", r)
	}
}

func TestBounds_ClampsToBitmap(t *testing.T) {
	s := RectangleShape(Point{X: -50, Y: -50}, Point{X: 100, Y: 100})
	r, err := Bounds(s, Identity(), 1920, 1080, 8)
	if err != nil {
		t.Fatalf("bounds error: %v", err)
	}
	if r.Min.X != 0 || r.Min.Y != 0 || r.Max.X != 100 || r.Max.Y != 100 {
		t.Fatalf("expected clamp to (0,0)-(100,100), got %v", r)
	}
}

func TestBounds_OutsideBitmapTooSmall(t *testing.T) {
	// Entirely off the right edge clamps to a zero-width strip
	s := RectangleShape(Point{X: 2000, Y: 100}, Point{X: 2100, Y: 200})
	_, err := Bounds(s, Identity(), 1920, 1080, 8)
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
}

func TestBounds_BelowMinimumRejected(t *testing.T) {
	s := RectangleShape(Point{X: 10, Y: 10}, Point{X: 15, Y: 100})
	_, err := Bounds(s, Identity(), 1920, 1080, 8)
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall for 5px width, got %v", err)
	}
}

func TestBounds_CircleUsesBoundingBox(t *testing.T) {
	s := CircleShape(Point{X: 100, Y: 100}, Point{X: 200, Y: 100})
	// center (150,100) radius 50 -> box (100,50)-(200,150)
	r, err := Bounds(s, Identity(), 1920, 1080, 8)
	if err != nil {
		t.Fatalf("bounds error: %v", err)
	}
	if r.Min.X != 100 || r.Min.Y != 50 || r.Max.X != 200 || r.Max.Y != 150 {
		t.Fatalf("unexpected circle bounds %v", r)
	}
}

func TestBounds_AppliesViewTransform(t *testing.T) {
	tr := Transform{Scale: 2, OffsetX: 0, OffsetY: 500}
	s := RectangleShape(Point{X: 40, Y: 560}, Point{X: 240, Y: 760})
	r, err := Bounds(s, tr, 1920, 1080, 8)
	if err != nil {
		t.Fatalf("bounds error: %v", err)
	}
	if r.Min.X != 20 || r.Min.Y != 30 || r.Max.X != 120 || r.Max.Y != 130 {
		t.Fatalf("unexpected mapped bounds %v", r)
	}
}

func TestMapCircle(t *testing.T) {
	tr := Transform{Scale: 2, OffsetX: 100, OffsetY: 0}
	s := CircleShape(Point{X: 300, Y: 100}, Point{X: 500, Y: 100})
	cx, cy, r, err := MapCircle(s, tr)
	if err != nil {
		t.Fatalf("map error: %v", err)
	}
	if !almostEqual(cx, 150) || !almostEqual(cy, 50) || !almostEqual(r, 50) {
		t.Fatalf("expected (150, 50) r=50, got (%v, %v) r=%v", cx, cy, r)
	}
}

func TestMapCircle_RejectsRectangle(t *testing.T) {
	s := RectangleShape(Point{}, Point{X: 10, Y: 10})
	if _, _, _, err := MapCircle(s, Identity()); err == nil {
		t.Fatal("expected error for rectangle shape")
	}
}
