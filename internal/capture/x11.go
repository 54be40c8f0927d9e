package capture

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/bryanchriswhite/SnipClip/internal/permission"
)

// X11Backend opens mirror sources over a fresh X connection per capture
type X11Backend struct{}

// NewX11Backend creates a new X11 backend
func NewX11Backend() *X11Backend {
	return &X11Backend{}
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// IsAvailable checks if an X server can be reached
func (b *X11Backend) IsAvailable() bool {
	conn, err := xgb.NewConn()
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Open allocates the mirror connection for one capture call
func (b *X11Backend) Open(req Request, token permission.Token) (Source, error) {
	if err := validateToken(token); err != nil {
		return nil, err
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	width := req.Width
	height := req.Height
	if width <= 0 || height <= 0 {
		width = int(screen.WidthInPixels)
		height = int(screen.HeightInPixels)
	}

	return &x11Source{
		conn:   conn,
		root:   screen.Root,
		width:  width,
		height: height,
	}, nil
}

// x11Source grabs root-window frames via GetImage
type x11Source struct {
	conn   *xgb.Conn
	root   xproto.Window
	width  int
	height int
	mu     sync.Mutex
	closed bool
}

// Name returns the source name
func (s *x11Source) Name() string {
	return "x11"
}

// Grab fetches one frame of the root window
func (s *x11Source) Grab() (*RawFrame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("source closed")
	}
	conn := s.conn
	s.mu.Unlock()

	reply, err := xproto.GetImage(
		conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		0, 0,
		uint16(s.width), uint16(s.height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	stride := s.width * 4
	if s.height > 0 {
		if rowBytes := len(reply.Data) / s.height; rowBytes > stride {
			// Server padded the scanlines
			stride = rowBytes
		}
	}
	if len(reply.Data) < stride*s.height {
		return nil, fmt.Errorf("short image reply: %d bytes for %dx%d", len(reply.Data), s.width, s.height)
	}

	// ZPixmap data is BGRX; swizzle to RGBA in place
	data := reply.Data[:stride*s.height]
	for y := 0; y < s.height; y++ {
		row := data[y*stride:]
		for x := 0; x < s.width; x++ {
			i := x * 4
			row[i], row[i+2] = row[i+2], row[i]
			row[i+3] = 255
		}
	}

	return &RawFrame{
		Data:   data,
		Width:  s.width,
		Height: s.height,
		Stride: stride,
	}, nil
}

// Close releases the X connection
func (s *x11Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.Close()
	logger.WithComponent("x11-source").Debug().Msg("X11 mirror connection closed")
	return nil
}
