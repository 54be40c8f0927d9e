package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/godbus/dbus/v5"
)

// Flow requests one-time screen-capture consent from the user and returns
// the platform result code plus an opaque payload for the token cache.
type Flow interface {
	Request(ctx context.Context) (resultCode int, payload []byte, err error)
}

// Session is the descriptor serialized into a consent token payload
type Session struct {
	Handle       string `json:"session_handle"`
	RestoreToken string `json:"restore_token,omitempty"`
	NodeID       uint32 `json:"node_id"`
}

// ParseSession decodes a consent token payload
func ParseSession(payload []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return Session{}, fmt.Errorf("malformed consent payload: %w", err)
	}
	if s.Handle == "" {
		return Session{}, fmt.Errorf("consent payload missing session handle")
	}
	return s, nil
}

// Portal D-Bus constants
const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
	sessionIface    = "org.freedesktop.portal.Session"
)

// Source types for SelectSources
const (
	SourceTypeMonitor = 1 << 0
	SourceTypeWindow  = 1 << 1
	SourceTypeVirtual = 1 << 2
)

// Cursor modes for SelectSources
const (
	CursorModeHidden   = 1 << 0
	CursorModeEmbedded = 1 << 1
	CursorModeMetadata = 1 << 2
)

// Persist modes for SelectSources
const (
	PersistModeNone        = 0
	PersistModeApplication = 1
	PersistModeSession     = 2
)

// PortalFlow implements Flow via the xdg-desktop-portal ScreenCast
// interface over D-Bus. One consent dialog yields a session whose handle and
// restore token become the cached token payload.
type PortalFlow struct {
	conn         *dbus.Conn
	mu           sync.Mutex
	restoreToken string
	tokenPath    string
}

// NewPortalFlow connects to the session bus and loads any saved restore token
func NewPortalFlow() (*PortalFlow, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}
	tokenPath := filepath.Join(configDir, "snipclip", "portal_token")

	p := &PortalFlow{
		conn:      conn,
		tokenPath: tokenPath,
	}
	p.loadRestoreToken()

	return p, nil
}

// Close closes the portal connection
func (p *PortalFlow) Close() error {
	return p.conn.Close()
}

// Request runs the CreateSession → SelectSources → Start handshake. The
// portal may pop a system dialog; the wait is bounded per step.
func (p *PortalFlow) Request(ctx context.Context) (int, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.WithComponent("portal")

	sessionHandle, err := p.createSession(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create session: %w", err)
	}
	log.Debug().Str("session", string(sessionHandle)).Msg("Created portal session")

	if err := p.selectSources(ctx, sessionHandle); err != nil {
		p.closeSession(sessionHandle)
		return 0, nil, fmt.Errorf("failed to select sources: %w", err)
	}
	log.Debug().Msg("Selected sources")

	nodeID, err := p.start(ctx, sessionHandle)
	if err != nil {
		p.closeSession(sessionHandle)
		return 0, nil, fmt.Errorf("failed to start session: %w", err)
	}
	log.Info().Uint32("node_id", nodeID).Msg("Screen capture consent granted")

	payload, err := json.Marshal(Session{
		Handle:       string(sessionHandle),
		RestoreToken: p.restoreToken,
		NodeID:       nodeID,
	})
	if err != nil {
		p.closeSession(sessionHandle)
		return 0, nil, fmt.Errorf("failed to encode session payload: %w", err)
	}

	return 0, payload, nil
}

// WatchRevoked registers fn against the session named by the token payload.
// Capture surfaces use it to observe mid-capture authorization loss.
func (p *PortalFlow) WatchRevoked(token Token, fn func()) (func(), error) {
	session, err := ParseSession(token.Payload)
	if err != nil {
		return nil, err
	}
	return p.WatchClosed(session.Handle, fn)
}

// WatchClosed subscribes to the portal Session.Closed signal for the given
// session and invokes fn once when it fires. The returned cancel func
// unregisters the observer.
func (p *PortalFlow) WatchClosed(sessionHandle string, fn func()) (func(), error) {
	sigChan := make(chan *dbus.Signal, 4)

	matchRule := fmt.Sprintf("type='signal',interface='%s',member='Closed'", sessionIface)
	if err := p.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		return nil, fmt.Errorf("failed to add match rule: %w", err)
	}
	p.conn.Signal(sigChan)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-sigChan:
				if !ok {
					return
				}
				if sig.Path == dbus.ObjectPath(sessionHandle) && sig.Name == sessionIface+".Closed" {
					logger.WithComponent("portal").Warn().
						Str("session", sessionHandle).
						Msg("Portal session closed by compositor")
					fn()
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			p.conn.RemoveSignal(sigChan)
		})
	}
	return cancel, nil
}

// CloseSession asks the portal to tear down a granted session. Best effort;
// used when a cached token is invalidated.
func (p *PortalFlow) CloseSession(sessionHandle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeSession(dbus.ObjectPath(sessionHandle))
}

func (p *PortalFlow) closeSession(sessionHandle dbus.ObjectPath) {
	if sessionHandle == "" {
		return
	}
	p.conn.Object(portalService, sessionHandle).Call(sessionIface+".Close", 0)
}

// createSession creates a new portal session
func (p *PortalFlow) createSession(ctx context.Context) (dbus.ObjectPath, error) {
	obj := p.conn.Object(portalService, portalPath)

	token := fmt.Sprintf("snipclip%d", os.Getpid())
	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(token),
		"session_handle_token": dbus.MakeVariant(fmt.Sprintf("session%d", os.Getpid())),
	}

	respond, cleanup, err := p.subscribeResponses()
	if err != nil {
		return "", err
	}
	defer cleanup()

	var requestPath dbus.ObjectPath
	if err := obj.Call(screenCastIface+".CreateSession", 0, options).Store(&requestPath); err != nil {
		return "", fmt.Errorf("CreateSession call failed: %w", err)
	}

	logger.WithComponent("portal").Info().
		Str("request_path", string(requestPath)).
		Msg("Waiting for CreateSession response (portal dialog may appear)")

	_, results, err := respond(ctx, requestPath, 30*time.Second)
	if err != nil {
		return "", err
	}

	sessionHandle, ok := results["session_handle"]
	if !ok {
		return "", fmt.Errorf("no session handle in response")
	}
	switch v := sessionHandle.Value().(type) {
	case dbus.ObjectPath:
		return v, nil
	case string:
		return dbus.ObjectPath(v), nil
	default:
		return "", fmt.Errorf("unexpected session_handle type: %T", v)
	}
}

// selectSources selects what to share (full screen)
func (p *PortalFlow) selectSources(ctx context.Context, sessionHandle dbus.ObjectPath) error {
	obj := p.conn.Object(portalService, portalPath)

	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(fmt.Sprintf("select%d", os.Getpid())),
		"types":        dbus.MakeVariant(uint32(SourceTypeMonitor)),
		"multiple":     dbus.MakeVariant(false),
		"cursor_mode":  dbus.MakeVariant(uint32(CursorModeHidden)),
		"persist_mode": dbus.MakeVariant(uint32(PersistModeSession)),
	}
	if p.restoreToken != "" {
		options["restore_token"] = dbus.MakeVariant(p.restoreToken)
		logger.WithComponent("portal").Debug().Msg("Using saved restore token")
	}

	respond, cleanup, err := p.subscribeResponses()
	if err != nil {
		return err
	}
	defer cleanup()

	var requestPath dbus.ObjectPath
	if err := obj.Call(screenCastIface+".SelectSources", 0, sessionHandle, options).Store(&requestPath); err != nil {
		return fmt.Errorf("SelectSources call failed: %w", err)
	}

	logger.WithComponent("portal").Info().
		Str("request_path", string(requestPath)).
		Msg("Waiting for SelectSources response")

	// User has to pick a screen in the dialog, allow more time
	_, _, err = respond(ctx, requestPath, 60*time.Second)
	return err
}

// start starts the screen capture session and returns the stream node ID
func (p *PortalFlow) start(ctx context.Context, sessionHandle dbus.ObjectPath) (uint32, error) {
	log := logger.WithComponent("portal")
	obj := p.conn.Object(portalService, portalPath)

	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(fmt.Sprintf("start%d", os.Getpid())),
	}

	respond, cleanup, err := p.subscribeResponses()
	if err != nil {
		return 0, err
	}
	defer cleanup()

	var requestPath dbus.ObjectPath
	if err := obj.Call(screenCastIface+".Start", 0, sessionHandle, "", options).Store(&requestPath); err != nil {
		return 0, fmt.Errorf("Start call failed: %w", err)
	}

	log.Info().Str("request_path", string(requestPath)).Msg("Waiting for Start response")

	_, results, err := respond(ctx, requestPath, 30*time.Second)
	if err != nil {
		return 0, err
	}

	if restoreToken, ok := results["restore_token"]; ok {
		if token, ok := restoreToken.Value().(string); ok {
			p.restoreToken = token
			p.saveRestoreToken()
			log.Debug().Msg("Saved restore token for future sessions")
		}
	}

	streams, ok := results["streams"]
	if !ok {
		return 0, fmt.Errorf("no streams in response")
	}

	// streams is a(ua{sv}) - array of (node_id, properties)
	switch v := streams.Value().(type) {
	case [][]interface{}:
		if len(v) > 0 && len(v[0]) > 0 {
			if nodeID, ok := v[0][0].(uint32); ok {
				return nodeID, nil
			}
		}
	case []interface{}:
		if len(v) > 0 {
			if stream, ok := v[0].([]interface{}); ok && len(stream) > 0 {
				if nodeID, ok := stream[0].(uint32); ok {
					return nodeID, nil
				}
			}
		}
	default:
		log.Warn().Str("type", fmt.Sprintf("%T", v)).Msg("Unknown streams format")
	}

	return 0, fmt.Errorf("no streams in response")
}

// responseFunc waits for the Response signal of one portal request
type responseFunc func(ctx context.Context, requestPath dbus.ObjectPath, timeout time.Duration) (uint32, map[string]dbus.Variant, error)

// subscribeResponses registers a Response signal listener. The returned
// responseFunc resolves the matching request; cleanup must always run.
func (p *PortalFlow) subscribeResponses() (responseFunc, func(), error) {
	responseChan := make(chan *dbus.Signal, 10)

	matchRule := fmt.Sprintf("type='signal',interface='%s',member='Response'", requestIface)
	if err := p.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		logger.WithComponent("portal").Warn().Err(err).Msg("Failed to add match rule")
	}
	p.conn.Signal(responseChan)

	cleanup := func() { p.conn.RemoveSignal(responseChan) }

	respond := func(ctx context.Context, requestPath dbus.ObjectPath, timeout time.Duration) (uint32, map[string]dbus.Variant, error) {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-timer.C:
				return 0, nil, fmt.Errorf("timeout waiting for portal response")
			case sig := <-responseChan:
				if sig.Path != requestPath || sig.Name != requestIface+".Response" {
					continue
				}
				if len(sig.Body) < 2 {
					return 0, nil, fmt.Errorf("invalid portal response")
				}
				code, _ := sig.Body[0].(uint32)
				results, _ := sig.Body[1].(map[string]dbus.Variant)
				if code != 0 {
					return code, nil, fmt.Errorf("%w (code %d)", ErrDenied, code)
				}
				return code, results, nil
			}
		}
	}

	return respond, cleanup, nil
}

// loadRestoreToken loads the restore token from disk
func (p *PortalFlow) loadRestoreToken() {
	data, err := os.ReadFile(p.tokenPath)
	if err != nil {
		return
	}

	var token struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return
	}
	p.restoreToken = token.Token
}

// saveRestoreToken saves the restore token to disk
func (p *PortalFlow) saveRestoreToken() {
	if p.restoreToken == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(p.tokenPath), 0755); err != nil {
		return
	}

	token := struct {
		Token string `json:"token"`
	}{Token: p.restoreToken}

	data, err := json.Marshal(token)
	if err != nil {
		return
	}

	os.WriteFile(p.tokenPath, data, 0600)
}
