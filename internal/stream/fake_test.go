package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/types"
)

type fakeBackend struct {
	mu            sync.Mutex
	history       []types.Message
	historyErr    error
	historyCalls  int
	reactionCalls map[int64]int
	uploads       []string
}

func (f *fakeBackend) Messages(ctx context.Context, channel string, limit int) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]types.Message, len(f.history))
	copy(out, f.history)
	return out, nil
}

func (f *fakeBackend) Reactions(ctx context.Context, id int64) (types.ReactionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactionCalls == nil {
		f.reactionCalls = make(map[int64]int)
	}
	f.reactionCalls[id]++
	return types.ReactionSummary{"👍": {Count: int(id)}}, nil
}

func (f *fakeBackend) ToggleReaction(ctx context.Context, id int64, emoji, actorID, actorType string) (types.ReactionSummary, error) {
	return types.ReactionSummary{emoji: {Count: 1}}, nil
}

func (f *fakeBackend) UploadFile(ctx context.Context, channel, filename string, r io.Reader) (types.FileDescriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return types.FileDescriptor{}, err
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, filename)
	f.mu.Unlock()
	ct := "text/plain"
	if len(filename) > 4 && filename[len(filename)-4:] == ".png" {
		ct = "image/png"
	}
	return types.FileDescriptor{
		FileName:     filename,
		OriginalName: filename,
		URL:          "/files/" + filename,
		Size:         int64(len(data)),
		ContentType:  ct,
	}, nil
}

func (f *fakeBackend) setHistory(msgs []types.Message, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = msgs
	f.historyErr = err
}

func (f *fakeBackend) reactionCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reactionCalls[id]
}

type fakeConn struct {
	in     chan []byte
	out    chan any
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan any, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, v any) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.out <- v
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu     sync.Mutex
	urls   []string
	fail   int
	dialed chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, u string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, u)
	if d.fail > 0 {
		d.fail--
		d.mu.Unlock()
		return nil, apperr.Network("dial", errors.New("refused"))
	}
	d.mu.Unlock()
	c := newFakeConn()
	d.dialed <- c
	return c, nil
}

func fastBackoff() Backoff {
	return Backoff{Base: time.Millisecond, Factor: 2, Max: 4 * time.Millisecond, Jitter: 0}
}

func msg(id int64, sender, content string) types.Message {
	return types.Message{
		ID:        id,
		Channel:   "c1",
		Sender:    sender,
		Content:   content,
		MsgType:   types.MessageTypeMessage,
		CreatedAt: time.Date(2025, 1, 1, 12, 0, int(id), 0, time.UTC),
	}
}

func reply(id, parent int64) types.Message {
	m := msg(id, "agent", "reply")
	m.ParentID = &parent
	return m
}

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}
