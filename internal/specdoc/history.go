package specdoc

import (
	"context"
	"math"
	"sort"

	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/types"
)

// Snapshot kinds reported by the history endpoint.
const (
	KindSpec     = "spec"
	KindIdeaBank = "idea_bank"
)

// DefaultHistoryLimit is the number of snapshots requested by History.
const DefaultHistoryLimit = 20

// HistoryEntry is a snapshot annotated with what changed since the previous
// snapshot of the same kind.
type HistoryEntry struct {
	types.SpecSnapshot
	Changed []string `json:"changed,omitempty"`
	Added   int      `json:"added"`
	Removed int      `json:"removed"`
	Initial bool     `json:"initial,omitempty"`
}

// Summarize annotates snapshots, newest first, with their diff against
// the next older snapshot of the same kind.
func Summarize(snaps []types.SpecSnapshot) []HistoryEntry {
	ordered := append([]types.SpecSnapshot(nil), snaps...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})

	out := make([]HistoryEntry, len(ordered))
	for i, snap := range ordered {
		entry := HistoryEntry{SpecSnapshot: snap}
		prev, ok := olderOfKind(ordered[i+1:], snap.Kind)
		switch {
		case !ok:
			entry.Initial = true
		case snap.Kind == KindIdeaBank:
			entry.Added, entry.Removed = LineDelta(prev.Content, snap.Content)
		default:
			entry.Changed = DiffSections(Parse(prev.Content), Parse(snap.Content))
		}
		out[i] = entry
	}
	return out
}

func olderOfKind(older []types.SpecSnapshot, kind string) (types.SpecSnapshot, bool) {
	for _, s := range older {
		if s.Kind == kind {
			return s, true
		}
	}
	return types.SpecSnapshot{}, false
}

func historyKey(project string) string {
	return kv.Key(kv.DomainSpecHistoryCache, project)
}

// History fetches spec history for the editor's project and caches it. On
// a fetch failure the cached entries are returned along with the error.
func (e *Editor) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	project := e.Project()
	snaps, err := e.remote.SpecHistory(ctx, project, limit)
	if err != nil {
		return CachedHistory(e.store, project), err
	}
	entries := Summarize(snaps)
	e.store.Write(historyKey(project), entries)
	return entries, nil
}

// CachedHistory returns the last cached history of project.
func CachedHistory(store *kv.Store, project string) []HistoryEntry {
	return kv.Read[[]HistoryEntry](store, historyKey(project), nil)
}

// Split ratio bounds of the editor and preview panes.
const (
	DefaultSplitRatio = 0.5
	MinSplitRatio     = 0.2
	MaxSplitRatio     = 0.8
)

func splitKey() string {
	return kv.Key(kv.DomainSpecSplitRatio, kv.GlobalScope)
}

// SplitRatio returns the persisted editor/preview split.
func SplitRatio(store *kv.Store) float64 {
	return clampSplit(kv.Read(store, splitKey(), DefaultSplitRatio))
}

// SetSplitRatio clamps and persists the split, returning the stored value.
func SetSplitRatio(store *kv.Store, ratio float64) float64 {
	ratio = clampSplit(ratio)
	store.Write(splitKey(), ratio)
	return ratio
}

func clampSplit(r float64) float64 {
	switch {
	case math.IsNaN(r):
		return DefaultSplitRatio
	case r < MinSplitRatio:
		return MinSplitRatio
	case r > MaxSplitRatio:
		return MaxSplitRatio
	}
	return r
}
