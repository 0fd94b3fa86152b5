package unread

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"
)

// Tone of the unread beep.
const (
	beepFrequency = 880.0
	beepMillis    = 120
)

// BeepNotifier plays a short tone, and optionally a desktop notification,
// when channels become unread. The audio device is set up lazily on first use.
type BeepNotifier struct {
	Enabled func() bool
	Desktop bool

	// beep and notify default to beeep; tests replace them.
	beep   func(freq float64, millis int) error
	notify func(title, body string) error

	once sync.Once
	mu   sync.Mutex
	log  *slog.Logger
}

// NewBeepNotifier returns a notifier gated by enabled.
func NewBeepNotifier(enabled func() bool, desktop bool) *BeepNotifier {
	return &BeepNotifier{Enabled: enabled, Desktop: desktop}
}

func (n *BeepNotifier) init() {
	n.once.Do(func() {
		n.log = slog.Default().With("component", "unread")
		if n.beep == nil {
			n.beep = beeep.Beep
		}
		if n.notify == nil {
			n.notify = func(title, body string) error {
				return beeep.Notify(title, body, "")
			}
		}
	})
}

// Notify implements Notifier.
func (n *BeepNotifier) Notify(ctx context.Context, channels []string) {
	if len(channels) == 0 {
		return
	}
	if n.Enabled != nil && !n.Enabled() {
		return
	}
	n.init()

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.beep(beepFrequency, beepMillis); err != nil {
		n.log.DebugContext(ctx, "beep failed", "err", err)
	}
	if !n.Desktop {
		return
	}
	title := "AI Office"
	body := fmt.Sprintf("New messages in #%s", strings.Join(channels, ", #"))
	if err := n.notify(title, body); err != nil {
		n.log.DebugContext(ctx, "desktop notification failed", "err", err)
	}
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, []string) {}
