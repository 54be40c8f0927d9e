package output

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSink_SavesSnapshot(t *testing.T) {
	dir := t.TempDir()
	s := NewSink(Config{ClipboardEnabled: false, SaveDir: dir})

	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	if err := s.OnSuccess(context.Background(), img); err != nil {
		t.Fatalf("delivery error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one snapshot, got %d (%v)", len(entries), err)
	}
	if !strings.HasSuffix(entries[0].Name(), ".png") {
		t.Fatalf("unexpected snapshot name %q", entries[0].Name())
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("snapshot is not a valid PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 32 {
		t.Fatalf("snapshot dimensions %v", decoded.Bounds())
	}
}

func TestSink_SuccessNotification(t *testing.T) {
	s := NewSink(Config{})
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	if err := s.OnSuccess(context.Background(), img); err != nil {
		t.Fatalf("delivery error: %v", err)
	}
	if got := s.LastNotification(); got != "Captured 100x80" {
		t.Fatalf("unexpected notification %q", got)
	}
}

func TestSink_FailureNotification(t *testing.T) {
	s := NewSink(Config{})
	s.OnFailure(errors.New("mirror lost"))
	if got := s.LastNotification(); !strings.Contains(got, "mirror lost") {
		t.Fatalf("unexpected notification %q", got)
	}
	// nil failures do not overwrite the note
	s.OnFailure(nil)
	if got := s.LastNotification(); !strings.Contains(got, "mirror lost") {
		t.Fatalf("nil failure overwrote note: %q", got)
	}
}
