package stream

import (
	"sort"
	"time"

	"github.com/adamavenir/aioffice/internal/types"
)

// MaxThreadDepth bounds thread closure walks.
const MaxThreadDepth = 64

// TimestampGap is the pause after which a same-sender message shows its time again.
const TimestampGap = 90 * time.Second

// ThreadIndex keeps parent and children maps for one channel. It is
// maintained incrementally as messages are inserted.
type ThreadIndex struct {
	parent   map[int64]int64
	children map[int64][]int64
}

// NewThreadIndex returns an empty index.
func NewThreadIndex() *ThreadIndex {
	return &ThreadIndex{
		parent:   make(map[int64]int64),
		children: make(map[int64][]int64),
	}
}

// Add records msg. A parent id that is not lower than the message id is
// ignored, which keeps the graph acyclic.
func (t *ThreadIndex) Add(msg types.Message) {
	if msg.ParentID == nil {
		return
	}
	p := *msg.ParentID
	if p <= 0 || p >= msg.ID {
		return
	}
	if _, ok := t.parent[msg.ID]; ok {
		return
	}
	t.parent[msg.ID] = p
	kids := t.children[p]
	i := sort.Search(len(kids), func(i int) bool { return kids[i] >= msg.ID })
	kids = append(kids, 0)
	copy(kids[i+1:], kids[i:])
	kids[i] = msg.ID
	t.children[p] = kids
}

// Parent returns the parent of id, if any.
func (t *ThreadIndex) Parent(id int64) (int64, bool) {
	p, ok := t.parent[id]
	return p, ok
}

// Children returns the direct replies to id in id order.
func (t *ThreadIndex) Children(id int64) []int64 {
	kids := t.children[id]
	if len(kids) == 0 {
		return nil
	}
	out := make([]int64, len(kids))
	copy(out, kids)
	return out
}

// ChildCount returns the number of direct replies to id.
func (t *ThreadIndex) ChildCount(id int64) int {
	return len(t.children[id])
}

// Root walks parent pointers up to the thread root.
func (t *ThreadIndex) Root(id int64) int64 {
	for depth := 0; depth < MaxThreadDepth; depth++ {
		p, ok := t.parent[id]
		if !ok {
			return id
		}
		id = p
	}
	return id
}

// Members returns root and every transitive reply, in id order, stopping
// at MaxThreadDepth levels.
func (t *ThreadIndex) Members(root int64) []int64 {
	out := []int64{root}
	level := []int64{root}
	for depth := 0; depth < MaxThreadDepth && len(level) > 0; depth++ {
		var next []int64
		for _, id := range level {
			next = append(next, t.children[id]...)
		}
		out = append(out, next...)
		level = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ShowTimestamp reports whether cur shows its time label given the
// message before it.
func ShowTimestamp(prev *types.Message, cur types.Message) bool {
	if prev == nil || prev.Sender != cur.Sender {
		return true
	}
	return cur.CreatedAt.Sub(prev.CreatedAt) > TimestampGap
}
