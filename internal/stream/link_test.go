package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestBackoffDelay(t *testing.T) {
	mid := func() float64 { return 0.5 }
	b := DefaultBackoff()
	b.Rand = mid

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	b.Rand = func() float64 { return 0 }
	if got := b.Delay(0); got != 400*time.Millisecond {
		t.Errorf("low jitter Delay(0) = %v, want 400ms", got)
	}
	b.Rand = nil
	for i := 0; i < 50; i++ {
		d := b.Delay(10)
		if d < 24*time.Second || d > 36*time.Second {
			t.Fatalf("Delay(10) = %v, outside ±20%% of 30s", d)
		}
	}
}

func TestPushURL(t *testing.T) {
	tests := []struct {
		base, path, channel string
		want                string
		wantErr             bool
	}{
		{"http://localhost:8000", "/ws", "main", "ws://localhost:8000/ws/main", false},
		{"https://office.example/", "", "dm-builder", "wss://office.example/ws/dm-builder", false},
		{"http://h/prefix", "/push/", "a b", "ws://h/prefix/push/a%20b", false},
		{"http://h", "/ws", "café", "ws://h/ws/caf%C3%A9", false},
		{"http://h", "/ws", "a/b", "ws://h/ws/a%2Fb", false},
		{"ftp://h", "/ws", "c", "", true},
	}
	for _, tt := range tests {
		got, err := PushURL(tt.base, tt.path, tt.channel)
		if (err != nil) != tt.wantErr {
			t.Errorf("PushURL(%q) err = %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PushURL(%q, %q, %q) = %q, want %q", tt.base, tt.path, tt.channel, got, tt.want)
		}
	}
}

func TestLinkStateMachine(t *testing.T) {
	d := newFakeDialer()
	d.fail = 2

	var (
		mu     sync.Mutex
		states []State
		opens  []bool
	)
	link := NewLink("ws://x/ws/c1", d, LinkOptions{
		Backoff: fastBackoff(),
		OnState: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
		OnOpen: func(reconnect bool) {
			mu.Lock()
			opens = append(opens, reconnect)
			mu.Unlock()
		},
	})
	if link.State() != StateIdle {
		t.Fatalf("initial state = %s", link.State())
	}
	link.Start(context.Background())

	first := <-d.dialed
	if !waitUntil(func() bool { return link.State() == StateOpen }) {
		t.Fatalf("never opened")
	}
	_ = first.Close()
	<-d.dialed
	if !waitUntil(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(opens) == 2
	}) {
		t.Fatalf("never reopened")
	}
	link.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateReconnecting, StateOpen, StateReconnecting, StateOpen, StateClosed}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states = %v, want %v", states, want)
			break
		}
	}
	if opens[0] || !opens[1] {
		t.Errorf("opens = %v, want [false true]", opens)
	}
}

func TestLinkSendRequiresOpen(t *testing.T) {
	link := NewLink("ws://x", newFakeDialer(), LinkOptions{})
	if err := link.Send(context.Background(), map[string]string{"type": "send"}); err == nil {
		t.Errorf("Send on idle link succeeded")
	}
	link.Close()
	if link.State() != StateClosed {
		t.Errorf("State() = %s, want closed", link.State())
	}
}

func TestWSDialerRoundTrip(t *testing.T) {
	got := make(chan sendFrame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/c1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "closed")

		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, map[string]any{
			"type":    "message_new",
			"message": map[string]any{"id": 1, "channel": "c1", "sender": "builder", "content": "hi"},
		})
		var frame sendFrame
		if err := wsjson.Read(ctx, conn, &frame); err == nil {
			got <- frame
		}
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	u, err := PushURL(srv.URL, "/ws", "c1")
	if err != nil {
		t.Fatalf("PushURL: %v", err)
	}
	if !strings.HasPrefix(u, "ws://") {
		t.Fatalf("url = %q", u)
	}

	events := make(chan Event, 1)
	link := NewLink(u, WSDialer{Token: "tok"}, LinkOptions{
		Backoff: fastBackoff(),
		OnEvent: func(ev Event) { events <- ev },
	})
	link.Start(context.Background())
	defer link.Close()

	select {
	case ev := <-events:
		if ev.Type != EventMessageNew || ev.Message.ID != 1 || ev.Message.Sender != "builder" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no event received")
	}

	if err := link.Send(context.Background(), sendFrame{Type: "send", ClientID: "01J", Content: "yo", MsgType: "message"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case f := <-got:
		if f.ClientID != "01J" || f.Content != "yo" {
			t.Errorf("server got %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server never received frame")
	}
}
