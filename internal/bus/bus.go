// Package bus carries cross-view broadcasts inside one client process.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Topic names a broadcast.
type Topic string

const (
	AgentsUpdated      Topic = "agents-updated"
	Escape             Topic = "ai-office:escape"
	ResetUIState       Topic = "ai-office:reset-ui-state"
	ViewChanged        Topic = "workspace:view-changed"
	ModeChanged        Topic = "workspace:mode-changed"
	InsertSpecDraft    Topic = "specpanel:insert-draft"
	ChatContextAdd     Topic = "chat-context:add"
	ProjectSwitched    Topic = "project-switched"
	UnreadNotification Topic = "unread-notification"
	Updated            Topic = "workspace:updated"
)

// Event is one broadcast.
type Event struct {
	ID      string
	Topic   Topic
	Payload any
	At      time.Time
}

// InsertDraft is the payload of InsertSpecDraft.
type InsertDraft struct {
	SectionKey string
	Text       string
}

// ChatContext is the payload of ChatContextAdd.
type ChatContext struct {
	Label string
	Text  string
}

// SubscriberBuffer is the per-subscriber queue length.
const SubscriberBuffer = 64

type subscriber struct {
	topics map[Topic]struct{}
	ch     chan Event
}

// Bus fans events out to subscribers. A slow subscriber loses events
// rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: map[string]*subscriber{}}
}

// Publish broadcasts payload on topic.
func (b *Bus) Publish(topic Topic, payload any) Event {
	ev := Event{ID: ulid.Make().String(), Topic: topic, Payload: payload, At: time.Now().UTC()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if len(sub.topics) > 0 {
			if _, ok := sub.topics[topic]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel receiving events on topics, or every event
// when none are given. The channel closes when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topics ...Topic) <-chan Event {
	ch := make(chan Event, SubscriberBuffer)
	set := map[Topic]struct{}{}
	for _, t := range topics {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	id := ulid.Make().String()

	b.mu.Lock()
	b.subs[id] = &subscriber{topics: set, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
