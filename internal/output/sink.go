package output

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"golang.design/x/clipboard"
)

// Config configures the result sink
type Config struct {
	// ClipboardEnabled places the PNG on the system clipboard
	ClipboardEnabled bool
	// SaveDir, when set, also writes a timestamped PNG file there
	SaveDir string
}

// Sink encodes finished captures as PNG and delivers them to the clipboard
// and, optionally, a snapshot directory. It also retains the last
// user-facing notification for the status API.
type Sink struct {
	config Config

	initOnce sync.Once
	initErr  error

	// clipboard writes must not interleave
	writeMu sync.Mutex

	noteMu   sync.Mutex
	lastNote string
}

// NewSink creates a result sink
func NewSink(config Config) *Sink {
	return &Sink{config: config}
}

// initClipboard initializes the clipboard binding once
func (s *Sink) initClipboard() error {
	s.initOnce.Do(func() {
		s.initErr = clipboard.Init()
	})
	return s.initErr
}

// OnSuccess encodes the bitmap and places it on the clipboard, then writes
// the optional snapshot file. The bitmap is not retained.
func (s *Sink) OnSuccess(ctx context.Context, img *image.RGBA) error {
	log := logger.WithComponent("output")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	data := buf.Bytes()

	if s.config.ClipboardEnabled {
		if err := s.initClipboard(); err != nil {
			return fmt.Errorf("clipboard unavailable: %w", err)
		}
		s.writeMu.Lock()
		clipboard.Write(clipboard.FmtImage, data)
		s.writeMu.Unlock()
		log.Info().Int("bytes", len(data)).Msg("Capture placed on clipboard")
	}

	if s.config.SaveDir != "" {
		if err := s.saveFile(data); err != nil {
			return err
		}
	}

	s.setNote(fmt.Sprintf("Captured %dx%d", img.Bounds().Dx(), img.Bounds().Dy()))
	return nil
}

// OnFailure records the user-facing failure notification
func (s *Sink) OnFailure(err error) {
	if err == nil {
		return
	}
	s.setNote(fmt.Sprintf("Capture failed: %v", err))
}

// LastNotification returns the most recent user-facing message
func (s *Sink) LastNotification() string {
	s.noteMu.Lock()
	defer s.noteMu.Unlock()
	return s.lastNote
}

func (s *Sink) setNote(note string) {
	s.noteMu.Lock()
	s.lastNote = note
	s.noteMu.Unlock()
}

func (s *Sink) saveFile(data []byte) error {
	if err := os.MkdirAll(s.config.SaveDir, 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}
	name := fmt.Sprintf("snip_%s.png", time.Now().Format("20060102_150405"))
	path := filepath.Join(s.config.SaveDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	logger.WithComponent("output").Info().Str("path", path).Msg("Snapshot saved")
	return nil
}
