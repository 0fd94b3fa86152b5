// Package stream owns the live state of one channel: the message list,
// typing indicators, reaction summaries and the thread graph, fed by REST
// history and a push link.
package stream

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/logger"
	"github.com/adamavenir/aioffice/internal/types"
)

// HistoryLimit is how many messages a channel load fetches.
const HistoryLimit = 200

// DefaultTypingTTL is how long a typing indicator lasts without a refresh.
const DefaultTypingTTL = 6 * time.Second

const reactionFetchWorkers = 4

// Backend is the REST surface the controller needs.
type Backend interface {
	Messages(ctx context.Context, channel string, limit int) ([]types.Message, error)
	Reactions(ctx context.Context, messageID int64) (types.ReactionSummary, error)
	ToggleReaction(ctx context.Context, messageID int64, emoji, actorID, actorType string) (types.ReactionSummary, error)
	UploadFile(ctx context.Context, channel, filename string, r io.Reader) (types.FileDescriptor, error)
}

// Options configures a Controller.
type Options struct {
	Backend Backend
	// Dialer opens the push link; nil runs on REST history alone.
	Dialer   Dialer
	BaseURL  string
	PushPath string
	ActorID  string

	TypingTTL time.Duration
	Backoff   Backoff
	Now       func() time.Time
}

type waiter struct {
	clientID string
	content  string
	ch       chan types.Message
	done     bool
}

// Controller is the stream state for the currently selected channel.
type Controller struct {
	backend  Backend
	dialer   Dialer
	baseURL  string
	pushPath string
	actor    string
	ttl      time.Duration
	backoff  Backoff
	now      func() time.Time
	log      *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.Mutex
	gen       uint64
	channel   string
	messages  []types.Message
	index     *ThreadIndex
	typing    map[string]time.Time
	reactions map[int64]types.ReactionSummary
	requested map[int64]bool
	active    *types.ActiveProject
	linkState State
	errText   string
	composer  Composer
	waiters   []*waiter
	link      *Link

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewController creates a controller with no channel selected.
func NewController(opts Options) *Controller {
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ActorID == "" {
		opts.ActorID = types.SenderUser
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		backend:    opts.Backend,
		dialer:     opts.Dialer,
		baseURL:    opts.BaseURL,
		pushPath:   opts.PushPath,
		actor:      opts.ActorID,
		ttl:        opts.TypingTTL,
		backoff:    opts.Backoff,
		now:        opts.Now,
		log:        slog.Default().With("component", "stream"),
		baseCtx:    ctx,
		baseCancel: cancel,
		index:      NewThreadIndex(),
		typing:     make(map[string]time.Time),
		reactions:  make(map[int64]types.ReactionSummary),
		requested:  make(map[int64]bool),
		linkState:  StateIdle,
		subs:       make(map[int]chan struct{}),
	}
}

// Channel returns the selected channel.
func (c *Controller) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// SetChannel switches to channel: composition state and caches are reset,
// the push link is reopened and the history is loaded. A failed history
// load keeps the previous list of the same channel and sets the error banner.
func (c *Controller) SetChannel(ctx context.Context, channel string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if channel != c.channel {
		c.messages = nil
		c.index = NewThreadIndex()
		c.active = nil
	}
	c.channel = channel
	c.composer.Reset()
	c.reactions = make(map[int64]types.ReactionSummary)
	c.requested = make(map[int64]bool)
	c.typing = make(map[string]time.Time)
	c.errText = ""
	c.linkState = StateIdle
	old := c.link
	c.link = nil
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.notify()

	if channel == "" {
		return nil
	}
	c.openLink(gen, channel)
	return c.load(ctx, gen, false)
}

// Reload re-fetches the history of the current channel.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	gen, channel := c.gen, c.channel
	c.mu.Unlock()
	if channel == "" {
		return nil
	}
	return c.load(ctx, gen, false)
}

func (c *Controller) openLink(gen uint64, channel string) {
	if c.dialer == nil {
		return
	}
	u, err := PushURL(c.baseURL, c.pushPath, channel)
	if err != nil {
		c.log.Warn("push link disabled", "channel", channel, "err", err)
		return
	}
	link := NewLink(u, c.dialer, LinkOptions{
		Backoff: c.backoff,
		OnEvent: func(ev Event) { c.handleEvent(gen, ev) },
		OnState: func(s State) { c.setLinkState(gen, s) },
		OnOpen: func(reconnect bool) {
			if reconnect {
				go c.resync(gen)
			}
		},
	})

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.link = link
	c.mu.Unlock()
	link.Start(c.baseCtx)
}

// resync merges the server history after a reconnect so gaps are filled.
func (c *Controller) resync(gen uint64) {
	ctx := logger.WithFields(c.baseCtx, logger.Fields{Component: "stream"})
	if err := c.load(ctx, gen, true); err != nil && !apperr.IsCancelled(err) {
		c.log.Debug("resync after reconnect failed", "err", err)
	}
}

func (c *Controller) load(ctx context.Context, gen uint64, merge bool) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	msgs, err := c.backend.Messages(ctx, channel, HistoryLimit)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return apperr.Cancelled("load history", context.Canceled)
	}
	if err != nil {
		if !apperr.IsCancelled(err) {
			c.errText = apperr.UserMessage(err)
		}
		c.mu.Unlock()
		c.notify()
		return err
	}
	if merge {
		for _, m := range msgs {
			c.insertLocked(m)
		}
	} else {
		c.replaceLocked(msgs)
	}
	c.errText = ""
	c.mu.Unlock()
	c.notify()

	c.PrefetchReactions(ctx, nil)
	return nil
}

func (c *Controller) replaceLocked(msgs []types.Message) {
	sorted := make([]types.Message, 0, len(msgs))
	seen := make(map[int64]bool, len(msgs))
	for _, m := range msgs {
		if m.Channel != "" && m.Channel != c.channel {
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		sorted = append(sorted, m)
	}
	var newest int64
	for _, m := range sorted {
		if m.ID > newest {
			newest = m.ID
		}
	}
	// Events applied while the fetch was in flight are newer than the
	// snapshot and stay.
	for _, m := range c.messages {
		if m.ID > newest && !seen[m.ID] {
			seen[m.ID] = true
			sorted = append(sorted, m)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	c.messages = sorted
	c.index = NewThreadIndex()
	for _, m := range sorted {
		c.index.Add(m)
	}
	for _, m := range sorted {
		c.resolveWaitersLocked(m, false)
	}
}

// insertLocked adds msg in id order. It returns false when the id is
// already present.
func (c *Controller) insertLocked(msg types.Message) bool {
	if msg.Channel != "" && msg.Channel != c.channel {
		return false
	}
	i := sort.Search(len(c.messages), func(i int) bool { return c.messages[i].ID >= msg.ID })
	if i < len(c.messages) && c.messages[i].ID == msg.ID {
		return false
	}
	c.messages = append(c.messages, types.Message{})
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = msg
	c.index.Add(msg)
	delete(c.typing, msg.Sender)
	c.resolveWaitersLocked(msg, true)
	return true
}

// resolveWaitersLocked hands msg to the Send it echoes. Without a client id
// the first pending send with identical content matches, but only when
// byContent is set.
func (c *Controller) resolveWaitersLocked(msg types.Message, byContent bool) {
	if msg.Sender != c.actor && msg.Sender != types.SenderUser {
		return
	}
	var match *waiter
	for _, w := range c.waiters {
		if w.done {
			continue
		}
		if msg.ClientID != "" {
			if w.clientID == msg.ClientID {
				match = w
				break
			}
			continue
		}
		if byContent && w.content == msg.Content {
			match = w
			break
		}
	}
	if match == nil {
		return
	}
	match.done = true
	match.ch <- msg
}

// HandleEvent applies a push event to the current channel.
func (c *Controller) HandleEvent(ev Event) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.handleEvent(gen, ev)
}

func (c *Controller) handleEvent(gen uint64, ev Event) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	changed := false
	switch ev.Type {
	case EventMessageNew:
		if ev.Message != nil {
			changed = c.insertLocked(*ev.Message)
		}
	case EventTyping:
		if ev.Typing {
			c.typing[ev.AgentID] = c.now()
		} else {
			delete(c.typing, ev.AgentID)
		}
		changed = true
	case EventReactionUpdate:
		c.reactions[ev.MessageID] = ev.Summary.Clone()
		c.requested[ev.MessageID] = true
		changed = true
	case EventProjectSwitched:
		c.active = ev.Active
		changed = true
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Controller) setLinkState(gen uint64, s State) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.linkState = s
	c.mu.Unlock()
	c.notify()
}

// Messages returns a copy of the message list in id order.
func (c *Controller) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.messages...)
}

// LatestID returns the highest loaded message id, or 0.
func (c *Controller) LatestID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return 0
	}
	return c.messages[len(c.messages)-1].ID
}

// Connected reports whether the push link is open.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkState == StateOpen
}

// WaitConnected blocks until the push link is open.
func (c *Controller) WaitConnected(ctx context.Context) error {
	updates, stop := c.Subscribe()
	defer stop()
	for !c.Connected() {
		select {
		case <-ctx.Done():
			return apperr.Cancelled("stream connect", ctx.Err())
		case <-updates:
		}
	}
	return nil
}

// LinkState returns the push link state.
func (c *Controller) LinkState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkState
}

// TypingAgents returns agents currently typing, expiring stale entries.
func (c *Controller) TypingAgents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typingLocked()
}

func (c *Controller) typingLocked() []string {
	now := c.now()
	out := make([]string, 0, len(c.typing))
	for agent, at := range c.typing {
		if now.Sub(at) > c.ttl {
			delete(c.typing, agent)
			continue
		}
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

// Reaction returns the cached summary for a message.
func (c *Controller) Reaction(id int64) (types.ReactionSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reactions[id]
	return r.Clone(), ok
}

// PrefetchReactions fetches summaries for ids (all loaded messages when
// nil) that have never been requested. Requested ids are memoized.
func (c *Controller) PrefetchReactions(ctx context.Context, ids []int64) {
	c.mu.Lock()
	gen := c.gen
	if ids == nil {
		for _, m := range c.messages {
			ids = append(ids, m.ID)
		}
	}
	var todo []int64
	for _, id := range ids {
		if c.requested[id] {
			continue
		}
		if _, ok := c.reactions[id]; ok {
			continue
		}
		c.requested[id] = true
		todo = append(todo, id)
	}
	c.mu.Unlock()
	if len(todo) == 0 {
		return
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, reactionFetchWorkers)
	)
	for _, id := range todo {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()
			summary, err := c.backend.Reactions(ctx, id)
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen != gen {
				return
			}
			if err != nil {
				// Allow a later pass to retry.
				delete(c.requested, id)
				return
			}
			c.reactions[id] = summary
		}(id)
	}
	wg.Wait()
	c.notify()
}

// ToggleReaction toggles emoji on a message; the returned summary replaces
// the cached one.
func (c *Controller) ToggleReaction(ctx context.Context, id int64, emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return apperr.Validation("toggle reaction", "emoji is required")
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	summary, err := c.backend.ToggleReaction(ctx, id, emoji, c.actor, "user")
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.reactions[id] = summary
		c.requested[id] = true
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Children returns the direct replies to id.
func (c *Controller) Children(id int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Children(id)
}

// ChildCount returns the number of direct replies to id.
func (c *Controller) ChildCount(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.ChildCount(id)
}

// ThreadMessages returns the loaded messages of the thread rooted at root.
func (c *Controller) ThreadMessages(root int64) []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.index.Members(root)
	out := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := c.findLocked(id); ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *Controller) findLocked(id int64) (types.Message, bool) {
	i := sort.Search(len(c.messages), func(i int) bool { return c.messages[i].ID >= id })
	if i < len(c.messages) && c.messages[i].ID == id {
		return c.messages[i], true
	}
	return types.Message{}, false
}

// ActiveProject returns the latest project_switched hint.
func (c *Controller) ActiveProject() *types.ActiveProject {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	a := *c.active
	return &a
}

// Err returns the error banner text, if any.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// ClearErr dismisses the error banner.
func (c *Controller) ClearErr() {
	c.mu.Lock()
	c.errText = ""
	c.mu.Unlock()
	c.notify()
}

// Composer returns a copy of the composition state.
func (c *Controller) Composer() Composer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composer.clone()
}

// UpdateComposer mutates the composition state under the controller lock.
func (c *Controller) UpdateComposer(fn func(*Composer) error) error {
	c.mu.Lock()
	err := fn(&c.composer)
	c.mu.Unlock()
	c.notify()
	return err
}

// Send submits a message over the push link and returns once the server
// echoes it back.
func (c *Controller) Send(ctx context.Context, content string, msgType types.MessageType, parentID *int64) (types.Message, error) {
	if strings.TrimSpace(content) == "" {
		return types.Message{}, apperr.Validation("send", "message is empty")
	}
	if msgType == "" {
		msgType = types.MessageTypeMessage
	}

	w := &waiter{clientID: ulid.Make().String(), content: content, ch: make(chan types.Message, 1)}
	c.mu.Lock()
	link := c.link
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	defer c.dropWaiter(w)

	if link == nil {
		return types.Message{}, apperr.State("send", "not connected")
	}
	frame := sendFrame{
		Type:     "send",
		ClientID: w.clientID,
		Content:  content,
		MsgType:  string(msgType),
		ParentID: parentID,
	}
	if err := link.Send(ctx, frame); err != nil {
		return types.Message{}, err
	}

	select {
	case msg := <-w.ch:
		return msg, nil
	case <-ctx.Done():
		return types.Message{}, apperr.Cancelled("send", ctx.Err())
	}
}

func (c *Controller) dropWaiter(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// SendComposed uploads queued attachments one at a time, appends their
// links to text and sends the result as a reply to the composer's reply
// target or thread root. The composer is cleared on success.
func (c *Controller) SendComposed(ctx context.Context, text string) (types.Message, error) {
	comp := c.Composer()
	if len(comp.Attachments) > MaxAttachments {
		return types.Message{}, apperr.Validation("send", "too many attachments")
	}
	if strings.TrimSpace(text) == "" && len(comp.Attachments) == 0 {
		return types.Message{}, apperr.Validation("send", "message is empty")
	}
	channel := c.Channel()

	files := make([]types.FileDescriptor, 0, len(comp.Attachments))
	for _, a := range comp.Attachments {
		fd, err := c.uploadOne(ctx, channel, a)
		if err != nil {
			return types.Message{}, err
		}
		files = append(files, fd)
	}

	parent := comp.ReplyTo
	if parent == nil {
		parent = comp.ThreadRoot
	}
	msg, err := c.Send(ctx, ComposeContent(text, files), types.MessageTypeMessage, parent)
	if err != nil {
		return types.Message{}, err
	}
	_ = c.UpdateComposer(func(cp *Composer) error {
		root := cp.ThreadRoot
		cp.Reset()
		cp.ThreadRoot = root
		return nil
	})
	return msg, nil
}

func (c *Controller) uploadOne(ctx context.Context, channel string, a Attachment) (types.FileDescriptor, error) {
	if a.Open == nil {
		return types.FileDescriptor{}, apperr.Validation("upload", a.Name+": nothing to upload")
	}
	r, err := a.Open()
	if err != nil {
		return types.FileDescriptor{}, apperr.Validation("upload", a.Name+": "+err.Error())
	}
	defer r.Close()
	return c.backend.UploadFile(ctx, channel, a.Name, r)
}

// Subscribe returns a channel signalled (coalesced) on every state change.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan struct{}, 1)
	c.subs[id] = ch
	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Row is one rendered message.
type Row struct {
	Message   types.Message
	ShowTime  bool
	Replies   int
	Reactions types.ReactionSummary
}

// View is a render snapshot of the controller.
type View struct {
	Channel  string
	Rows     []Row
	Typing   []string
	State    State
	Error    string
	Active   *types.ActiveProject
	Composer Composer
}

// View builds a render snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Channel:  c.channel,
		Rows:     make([]Row, len(c.messages)),
		Typing:   c.typingLocked(),
		State:    c.linkState,
		Error:    c.errText,
		Composer: c.composer.clone(),
	}
	if c.active != nil {
		a := *c.active
		v.Active = &a
	}
	var prev *types.Message
	for i := range c.messages {
		m := c.messages[i]
		v.Rows[i] = Row{
			Message:   m,
			ShowTime:  ShowTimestamp(prev, m),
			Replies:   c.index.ChildCount(m.ID),
			Reactions: c.reactions[m.ID].Clone(),
		}
		prev = &c.messages[i]
	}
	return v
}

// Close shuts the push link down.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	link := c.link
	c.link = nil
	c.mu.Unlock()
	c.baseCancel()
	if link != nil {
		link.Close()
	}
}
