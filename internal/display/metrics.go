package display

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/kbinani/screenshot"
)

// Metrics describes the capture target display
type Metrics struct {
	Width   int
	Height  int
	Density float64 // dots per inch
}

// Provider resolves the current display metrics
type Provider interface {
	Metrics() (Metrics, error)
}

// defaultDensity is assumed when the server reports no physical size
const defaultDensity = 96.0

// X11Provider reads metrics from the default X screen, falling back to the
// cross-platform display bounds when no X server is reachable.
type X11Provider struct{}

// NewProvider creates a display metrics provider
func NewProvider() *X11Provider {
	return &X11Provider{}
}

// Metrics resolves width, height and density of the primary display
func (p *X11Provider) Metrics() (Metrics, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		logger.WithComponent("display").Debug().Err(err).Msg("No X server, using fallback display bounds")
		return fallbackMetrics()
	}
	defer conn.Close()

	screen := xproto.Setup(conn).DefaultScreen(conn)
	m := Metrics{
		Width:   int(screen.WidthInPixels),
		Height:  int(screen.HeightInPixels),
		Density: defaultDensity,
	}
	if screen.WidthInMillimeters > 0 {
		m.Density = float64(screen.WidthInPixels) / (float64(screen.WidthInMillimeters) / 25.4)
	}

	if m.Width <= 0 || m.Height <= 0 {
		return Metrics{}, fmt.Errorf("X server reported empty screen %dx%d", m.Width, m.Height)
	}
	return m, nil
}

func fallbackMetrics() (Metrics, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return Metrics{}, fmt.Errorf("no active displays found")
	}
	bounds := screenshot.GetDisplayBounds(0)
	return Metrics{
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Density: defaultDensity,
	}, nil
}

// Static is a fixed-metrics provider, used by tests and headless setups
type Static struct {
	M Metrics
}

// Metrics returns the fixed metrics
func (s Static) Metrics() (Metrics, error) {
	if s.M.Width <= 0 || s.M.Height <= 0 {
		return Metrics{}, fmt.Errorf("static metrics unset")
	}
	return s.M, nil
}
