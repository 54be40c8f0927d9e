package api

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/selection"
	"github.com/gorilla/websocket"
)

func dialOverlay(t *testing.T, s *OverlaySelector) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.Handle))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial overlay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type selectReturn struct {
	shape     selection.Shape
	transform selection.Transform
	err       error
}

func startSelect(s *OverlaySelector, ctx context.Context, img *image.RGBA) chan selectReturn {
	ch := make(chan selectReturn, 1)
	go func() {
		shape, tr, err := s.Select(ctx, img)
		ch <- selectReturn{shape, tr, err}
	}()
	return ch
}

func TestOverlay_CommitRectangle(t *testing.T) {
	s := NewOverlaySelector()
	conn := dialOverlay(t, s)

	hello := overlayEvent{Type: "hello", Mode: "rectangle", ViewWidth: 1000, ViewHeight: 2000}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 500, 500))
	done := startSelect(s, context.Background(), img)

	// The armed wait pushes a preview to the connected client
	var frame frameMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != "frame" {
		t.Fatalf("expected frame message, got %q", frame.Type)
	}
	// 500x500 bitmap center-fit into 1000x2000: scale 2
	if frame.Transform.Scale != 2 || frame.Width != 1000 || frame.Height != 1000 {
		t.Fatalf("unexpected preview %dx%d scale %v", frame.Width, frame.Height, frame.Transform.Scale)
	}
	if len(frame.Image) == 0 {
		t.Fatal("empty preview image")
	}

	conn.WriteJSON(overlayEvent{Type: "down", X: 100, Y: 600})
	conn.WriteJSON(overlayEvent{Type: "move", X: 200, Y: 700})
	conn.WriteJSON(overlayEvent{Type: "up", X: 300, Y: 800})

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("select error: %v", r.err)
		}
		if r.shape.Kind != selection.KindRectangle {
			t.Fatalf("expected rectangle, got %v", r.shape.Kind)
		}
		if r.shape.Left != 100 || r.shape.Top != 600 || r.shape.Right != 300 || r.shape.Bottom != 800 {
			t.Fatalf("unexpected shape %+v", r.shape)
		}
		if r.transform.Scale != 2 {
			t.Fatalf("unexpected transform %+v", r.transform)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("select did not resolve")
	}
}

func TestOverlay_CancelResolvesErrCancelled(t *testing.T) {
	s := NewOverlaySelector()
	conn := dialOverlay(t, s)
	conn.WriteJSON(overlayEvent{Type: "hello", ViewWidth: 800, ViewHeight: 600})

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	done := startSelect(s, context.Background(), img)

	var frame frameMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}

	conn.WriteJSON(overlayEvent{Type: "cancel"})

	select {
	case r := <-done:
		if !errors.Is(r.err, selection.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("select did not resolve")
	}
}

func TestOverlay_ModeSwitchProducesCircle(t *testing.T) {
	s := NewOverlaySelector()
	conn := dialOverlay(t, s)
	conn.WriteJSON(overlayEvent{Type: "hello", Mode: "circle", ViewWidth: 400, ViewHeight: 400})

	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	done := startSelect(s, context.Background(), img)

	var frame frameMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}

	conn.WriteJSON(overlayEvent{Type: "down", X: 100, Y: 200})
	conn.WriteJSON(overlayEvent{Type: "up", X: 300, Y: 200})

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("select error: %v", r.err)
		}
		if r.shape.Kind != selection.KindCircle {
			t.Fatalf("expected circle, got %v", r.shape.Kind)
		}
		if r.shape.Center.X != 200 || r.shape.Center.Y != 200 || r.shape.Radius != 100 {
			t.Fatalf("unexpected circle %+v", r.shape)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("select did not resolve")
	}
}

func TestOverlay_SelectHonorsContext(t *testing.T) {
	s := NewOverlaySelector()
	ctx, cancel := context.WithCancel(context.Background())

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	done := startSelect(s, ctx, img)
	cancel()

	select {
	case r := <-done:
		if !errors.Is(r.err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("select did not resolve on cancel")
	}
}

func TestOverlay_WaitSurvivesReconnect(t *testing.T) {
	s := NewOverlaySelector()
	conn := dialOverlay(t, s)
	conn.WriteJSON(overlayEvent{Type: "hello", ViewWidth: 800, ViewHeight: 600})

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	done := startSelect(s, context.Background(), img)

	var frame frameMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}

	// Drop the connection mid-wait; the pending job stays armed
	conn.Close()

	conn2 := dialOverlay(t, s)
	conn2.WriteJSON(overlayEvent{Type: "hello", ViewWidth: 800, ViewHeight: 600})

	var frame2 frameMessage
	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn2.ReadJSON(&frame2); err != nil {
		t.Fatalf("reconnect got no frame: %v", err)
	}

	conn2.WriteJSON(overlayEvent{Type: "down", X: 100, Y: 100})
	conn2.WriteJSON(overlayEvent{Type: "up", X: 200, Y: 200})

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("select error after reconnect: %v", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("select did not resolve after reconnect")
	}
}
