package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/adamavenir/aioffice/internal/apperr"
)

// State is the push link lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Conn is one established push connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, v any) error
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials push connections over WebSocket.
type WSDialer struct {
	Token      string
	HTTPClient *http.Client
}

// Dial implements Dialer.
func (d WSDialer) Dial(ctx context.Context, u string) (Conn, error) {
	opts := &websocket.DialOptions{HTTPClient: d.HTTPClient}
	if d.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + d.Token}}
	}
	c, _, err := websocket.Dial(ctx, u, opts)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(4 << 20)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, v any) error {
	return wsjson.Write(ctx, w.c, v)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "closing")
}

// PushURL builds the per-channel push endpoint from the REST base URL.
func PushURL(baseURL, pushPath, channel string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if pushPath == "" {
		pushPath = "/ws"
	}
	segment := "/" + strings.Trim(pushPath, "/") + "/"
	rawPrefix := strings.TrimRight(u.EscapedPath(), "/") + segment
	u.Path = strings.TrimRight(u.Path, "/") + segment + channel
	u.RawPath = rawPrefix + url.PathEscape(channel)
	return u.String(), nil
}

// Backoff computes reconnect delays: exponential, capped, with jitter.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
	Jitter float64
	// Rand returns a value in [0,1); nil uses math/rand.
	Rand func() float64
}

// DefaultBackoff is 500ms doubling to 30s with ±20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Factor: 2, Max: 30 * time.Second, Jitter: 0.2}
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	d := float64(b.Base)
	for i := 0; i < n && d < float64(b.Max); i++ {
		d *= b.Factor
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	r := b.Rand
	if r == nil {
		r = rand.Float64
	}
	d *= 1 + b.Jitter*(2*r()-1)
	return time.Duration(math.Round(d))
}

// Link is a self-healing push connection for one channel. Reconnects are
// silent; observers only see state changes.
type Link struct {
	url     string
	dialer  Dialer
	backoff Backoff
	log     *slog.Logger

	onEvent func(Event)
	onState func(State)
	onOpen  func(reconnect bool)

	mu      sync.Mutex
	state   State
	started bool
	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
}

// LinkOptions configures a Link.
type LinkOptions struct {
	Backoff Backoff
	OnEvent func(Event)
	OnState func(State)
	// OnOpen runs after every successful dial; reconnect is false the first time.
	OnOpen func(reconnect bool)
}

// NewLink creates an idle link.
func NewLink(u string, dialer Dialer, opts LinkOptions) *Link {
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	return &Link{
		url:     u,
		dialer:  dialer,
		backoff: opts.Backoff,
		log:     slog.Default().With("component", "stream"),
		onEvent: opts.OnEvent,
		onState: opts.OnState,
		onOpen:  opts.OnOpen,
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start begins connecting. It is a no-op unless the link is idle.
func (l *Link) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.state != StateIdle {
		l.mu.Unlock()
		return
	}
	l.started = true
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)
}

// Close stops the link and waits for its goroutine.
func (l *Link) Close() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	if cancel == nil {
		l.state = StateClosed
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	cancel()
	<-done
}

// Send writes one JSON frame on the open connection.
func (l *Link) Send(ctx context.Context, frame any) error {
	l.mu.Lock()
	conn, state := l.conn, l.state
	l.mu.Unlock()
	if conn == nil || state != StateOpen {
		return apperr.State("stream send", "not connected")
	}
	if err := conn.Write(ctx, frame); err != nil {
		return apperr.Network("stream send", err)
	}
	return nil
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	if l.state == s {
		l.mu.Unlock()
		return
	}
	l.state = s
	l.mu.Unlock()
	if l.onState != nil {
		l.onState(s)
	}
}

func (l *Link) run(ctx context.Context) {
	defer close(l.done)
	defer l.setState(StateClosed)

	attempt := 0
	opened := false
	for {
		if opened || attempt > 0 {
			l.setState(StateReconnecting)
		} else {
			l.setState(StateConnecting)
		}

		conn, err := l.dialer.Dial(ctx, l.url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Debug("push dial failed", "url", l.url, "attempt", attempt, "err", err)
			if !l.sleep(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		l.mu.Lock()
		l.conn = conn
		l.mu.Unlock()
		l.setState(StateOpen)
		if l.onOpen != nil {
			l.onOpen(opened)
		}
		opened = true
		attempt = 0

		err = l.readLoop(ctx, conn)

		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		l.log.Debug("push connection lost", "url", l.url, "err", err)
		l.setState(StateReconnecting)
		if !l.sleep(ctx, attempt) {
			return
		}
		attempt++
	}
}

func (l *Link) readLoop(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			l.log.Debug("dropping malformed push frame", "err", err)
			continue
		}
		if l.onEvent != nil {
			l.onEvent(ev)
		}
	}
}

func (l *Link) sleep(ctx context.Context, attempt int) bool {
	t := time.NewTimer(l.backoff.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// sendFrame is the outgoing message frame.
type sendFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	Content  string `json:"content"`
	MsgType  string `json:"msg_type"`
	ParentID *int64 `json:"parent_id,omitempty"`
}
