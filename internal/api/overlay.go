package api

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"net/http"
	"sync"

	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/bryanchriswhite/SnipClip/internal/selection"
	"github.com/gorilla/websocket"
	xdraw "golang.org/x/image/draw"
)

// overlayEvent is one message from the overlay client
type overlayEvent struct {
	Type       string  `json:"type"` // hello, mode, down, move, up, cancel
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Mode       string  `json:"mode,omitempty"`
	ViewWidth  int     `json:"view_width,omitempty"`
	ViewHeight int     `json:"view_height,omitempty"`
}

// frameMessage carries the capture preview to the overlay client. Image is
// the center-fit scaled PNG; the transform maps view coordinates back onto
// the original bitmap.
type frameMessage struct {
	Type      string              `json:"type"`
	Width     int                 `json:"width"`
	Height    int                 `json:"height"`
	Transform selection.Transform `json:"transform"`
	Image     []byte              `json:"image"`
}

// selectResult resolves one orchestrator selection wait
type selectResult struct {
	shape     selection.Shape
	transform selection.Transform
	err       error
}

// selectJob is an armed selection wait: the captured bitmap plus the
// channel the pipeline blocks on
type selectJob struct {
	img  *image.RGBA
	done chan selectResult
}

// OverlaySelector bridges the orchestrator's selection wait to a
// browser-based overlay: the captured frame goes out as a scaled preview,
// pointer events come back and drive a gesture tracker, and the committed
// shape resolves the wait.
type OverlaySelector struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	job    *selectJob
	client *overlayClient
}

// overlayClient is one connected overlay page. The read loop and armed
// Select waits touch it from different goroutines.
type overlayClient struct {
	conn    *websocket.Conn
	tracker *selection.Tracker

	mu        sync.Mutex
	transform selection.Transform
	viewW     int
	viewH     int
	ready     bool

	writeMu sync.Mutex
}

func (c *overlayClient) setView(w, h int) {
	c.mu.Lock()
	c.viewW = w
	c.viewH = h
	c.ready = true
	c.mu.Unlock()
}

func (c *overlayClient) view() (w, h int, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewW, c.viewH, c.ready
}

func (c *overlayClient) setTransform(t selection.Transform) {
	c.mu.Lock()
	c.transform = t
	c.mu.Unlock()
}

func (c *overlayClient) currentTransform() selection.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transform
}

// NewOverlaySelector creates the selection bridge
func NewOverlaySelector() *OverlaySelector {
	return &OverlaySelector{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Overlay page is served from this process
			},
		},
	}
}

// Select blocks until the overlay commits or cancels a selection on img.
// The wait is unbounded; only user action or ctx cancellation ends it.
func (s *OverlaySelector) Select(ctx context.Context, img *image.RGBA) (selection.Shape, selection.Transform, error) {
	job := &selectJob{img: img, done: make(chan selectResult, 1)}

	s.mu.Lock()
	s.job = job
	client := s.client
	s.mu.Unlock()

	if client != nil {
		if _, _, ready := client.view(); ready {
			s.sendFrame(client, job)
		}
	}

	select {
	case r := <-job.done:
		return r.shape, r.transform, r.err
	case <-ctx.Done():
		s.mu.Lock()
		if s.job == job {
			s.job = nil
		}
		s.mu.Unlock()
		return selection.Shape{}, selection.Transform{}, ctx.Err()
	}
}

// Handle upgrades an overlay page connection and runs its event loop
func (s *OverlaySelector) Handle(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("overlay")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Overlay upgrade failed")
		return
	}

	client := &overlayClient{
		conn:    conn,
		tracker: selection.NewTracker(selection.KindRectangle),
	}

	s.mu.Lock()
	prev := s.client
	s.client = client
	s.mu.Unlock()
	if prev != nil {
		prev.conn.Close()
	}

	log.Debug().Str("remote", r.RemoteAddr).Msg("Overlay connected")
	s.readLoop(client)

	s.mu.Lock()
	if s.client == client {
		s.client = nil
	}
	s.mu.Unlock()
	conn.Close()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Overlay disconnected")
}

func (s *OverlaySelector) readLoop(client *overlayClient) {
	log := logger.WithComponent("overlay")

	for {
		var ev overlayEvent
		if err := client.conn.ReadJSON(&ev); err != nil {
			// A disconnect mid-gesture cancels it; a pending wait stays
			// armed for the next overlay connection.
			client.tracker.Cancel()
			return
		}

		switch ev.Type {
		case "hello":
			client.setView(ev.ViewWidth, ev.ViewHeight)
			if ev.Mode != "" {
				if kind, err := selection.ParseKind(ev.Mode); err == nil {
					client.tracker.SetMode(kind)
				}
			}
			s.mu.Lock()
			job := s.job
			s.mu.Unlock()
			if job != nil {
				s.sendFrame(client, job)
			}
		case "mode":
			kind, err := selection.ParseKind(ev.Mode)
			if err != nil {
				log.Warn().Str("mode", ev.Mode).Msg("Unknown selection mode")
				continue
			}
			client.tracker.SetMode(kind)
		case "down":
			client.tracker.Begin(ev.X, ev.Y)
		case "move":
			client.tracker.Move(ev.X, ev.Y)
		case "up":
			shape, err := client.tracker.End(ev.X, ev.Y)
			if err != nil {
				continue
			}
			s.resolve(selectResult{shape: shape, transform: client.currentTransform()})
		case "cancel":
			client.tracker.Cancel()
			s.resolve(selectResult{err: selection.ErrCancelled})
		default:
			log.Debug().Str("type", ev.Type).Msg("Unknown overlay event")
		}
	}
}

// resolve completes the armed selection wait, if any
func (s *OverlaySelector) resolve(r selectResult) {
	s.mu.Lock()
	job := s.job
	s.job = nil
	s.mu.Unlock()

	if job == nil {
		return
	}
	job.done <- r
}

// sendFrame scales the captured bitmap center-fit for the client view and
// pushes it with the matching transform
func (s *OverlaySelector) sendFrame(client *overlayClient, job *selectJob) {
	log := logger.WithComponent("overlay")

	bmpW := job.img.Bounds().Dx()
	bmpH := job.img.Bounds().Dy()
	viewW, viewH, _ := client.view()
	if viewW <= 0 || viewH <= 0 {
		viewW, viewH = bmpW, bmpH
	}

	transform := selection.FitTransform(viewW, viewH, bmpW, bmpH)
	client.setTransform(transform)

	scaledW := int(math.Round(float64(bmpW) * transform.Scale))
	scaledH := int(math.Round(float64(bmpH) * transform.Scale))
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	preview := job.img
	if scaledW != bmpW || scaledH != bmpH {
		dst := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), job.img, job.img.Bounds(), xdraw.Src, nil)
		preview = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, preview); err != nil {
		log.Error().Err(err).Msg("Failed to encode preview")
		return
	}

	msg := frameMessage{
		Type:      "frame",
		Width:     scaledW,
		Height:    scaledH,
		Transform: transform,
		Image:     buf.Bytes(),
	}

	client.writeMu.Lock()
	err := client.conn.WriteJSON(msg)
	client.writeMu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send preview frame")
	}
}
