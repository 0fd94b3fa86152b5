// Package unread computes per-channel unread flags from the activity
// watermark and the persisted seen-id, and raises one notification per
// 0 -> unread transition.
package unread

import (
	"context"
	"sort"
	"sync"

	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/types"
)

// TrackCap is how many sidebar channels are tracked besides the current one.
const TrackCap = 20

// Notifier is told which channels just became unread.
type Notifier interface {
	Notify(ctx context.Context, channels []string)
}

// LatestFetcher fetches the newest messages of a channel.
type LatestFetcher interface {
	Messages(ctx context.Context, channel string, limit int) ([]types.Message, error)
}

// Snapshot is the unread state after an Apply.
type Snapshot struct {
	Current string
	Unread  map[string]int
	Latest  map[string]int64
	Seen    map[string]int64
}

// Total returns the number of unread channels.
func (s Snapshot) Total() int {
	n := 0
	for _, v := range s.Unread {
		n += v
	}
	return n
}

// Engine holds watermarks for the tracked channels.
type Engine struct {
	store    *kv.Store
	notifier Notifier

	mu       sync.Mutex
	current  string
	latest   map[string]int64
	seen     map[string]int64
	unread   map[string]int
	baseline bool
}

// New creates an engine persisting seen-ids in store.
func New(store *kv.Store, notifier Notifier) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		latest:   make(map[string]int64),
		seen:     make(map[string]int64),
		unread:   make(map[string]int),
	}
}

func seenKey(channel string) string {
	return kv.Key(kv.DomainSeenMsg, kv.GlobalScope, channel)
}

// Track limits visible to TrackCap channels and always includes current.
func Track(visible []string, current string) []string {
	out := make([]string, 0, TrackCap+1)
	seen := make(map[string]bool, len(visible)+1)
	for _, ch := range visible {
		if len(out) >= TrackCap {
			break
		}
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	if current != "" && !seen[current] {
		out = append(out, current)
	}
	return out
}

// seenLocked returns the seen-id, reading through to the store.
func (e *Engine) seenLocked(channel string) (int64, bool) {
	if v, ok := e.seen[channel]; ok {
		return v, true
	}
	v := kv.Read(e.store, seenKey(channel), int64(-1))
	if v < 0 {
		return 0, false
	}
	e.seen[channel] = v
	return v, true
}

// markSeenLocked raises the seen-id; it never lowers it.
func (e *Engine) markSeenLocked(channel string, id int64) bool {
	cur, ok := e.seenLocked(channel)
	if ok && id <= cur {
		return false
	}
	if id < 0 {
		return false
	}
	e.seen[channel] = id
	e.store.Write(seenKey(channel), id)
	return true
}

// SetCurrent records the channel the user is viewing and marks it read.
func (e *Engine) SetCurrent(channel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = channel
	if channel == "" {
		return
	}
	if latest, ok := e.latest[channel]; ok {
		e.markSeenLocked(channel, latest)
	}
	e.unread[channel] = 0
}

// Current returns the channel being viewed.
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// MarkSeen raises the seen-id of channel to id.
func (e *Engine) MarkSeen(channel string, id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.markSeenLocked(channel, id) {
		if latest, ok := e.latest[channel]; ok && latest <= id {
			e.unread[channel] = 0
		}
	}
}

// Seen returns the persisted seen-id of channel.
func (e *Engine) Seen(channel string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seenLocked(channel)
}

// SyncFromLatest initialises the seen-id of channel from a fresh
// single-message fetch.
func (e *Engine) SyncFromLatest(ctx context.Context, channel string, f LatestFetcher) error {
	msgs, err := f.Messages(ctx, channel, 1)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var latest int64
	for _, m := range msgs {
		if m.ID > latest {
			latest = m.ID
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if latest > e.latest[channel] {
		e.latest[channel] = latest
	}
	e.markSeenLocked(channel, latest)
	if channel == e.current {
		e.unread[channel] = 0
	}
	return nil
}

// Apply folds an activity poll into the watermarks for the tracked
// channels and notifies about channels that just became unread. The first
// Apply only establishes the baseline.
func (e *Engine) Apply(ctx context.Context, activity []types.ChannelActivity, visible []string) Snapshot {
	e.mu.Lock()
	for _, a := range activity {
		if a.ChannelID == "" {
			continue
		}
		if a.LatestMessageID > e.latest[a.ChannelID] {
			e.latest[a.ChannelID] = a.LatestMessageID
		}
	}

	tracked := Track(visible, e.current)
	next := make(map[string]int, len(tracked))
	var raised []string
	for _, ch := range tracked {
		latest, known := e.latest[ch]
		if !known {
			continue
		}
		seen, ok := e.seenLocked(ch)
		if !ok {
			e.markSeenLocked(ch, latest)
			seen = latest
		}
		if ch == e.current {
			e.markSeenLocked(ch, latest)
			next[ch] = 0
			continue
		}
		n := 0
		if latest > seen {
			n = 1
		}
		next[ch] = n
		if n > 0 && e.unread[ch] == 0 && e.baseline {
			raised = append(raised, ch)
		}
	}
	// Untracked channels keep their last flag so a channel scrolling back
	// into the tracked set does not notify twice.
	for ch, n := range e.unread {
		if _, ok := next[ch]; !ok {
			next[ch] = n
		}
	}
	e.unread = next
	e.baseline = true
	snap := e.snapshotLocked()
	notifier := e.notifier
	e.mu.Unlock()

	if len(raised) > 0 && notifier != nil {
		sort.Strings(raised)
		notifier.Notify(ctx, raised)
	}
	return snap
}

// Unread returns the unread flag of channel.
func (e *Engine) Unread(channel string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread[channel]
}

// Forget drops every watermark of a deleted channel.
func (e *Engine) Forget(channel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.latest, channel)
	delete(e.seen, channel)
	delete(e.unread, channel)
	e.store.Remove(seenKey(channel))
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Current: e.current,
		Unread:  make(map[string]int, len(e.unread)),
		Latest:  make(map[string]int64, len(e.latest)),
		Seen:    make(map[string]int64, len(e.seen)),
	}
	for k, v := range e.unread {
		s.Unread[k] = v
	}
	for k, v := range e.latest {
		s.Latest[k] = v
	}
	for k, v := range e.seen {
		s.Seen[k] = v
	}
	return s
}
