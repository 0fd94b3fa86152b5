package wizard

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/lexers"
	"github.com/dustin/go-humanize"
	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/adamavenir/aioffice/internal/apperr"
)

// ImportKind is the shape of an import queue item.
type ImportKind string

const (
	ImportZip    ImportKind = "zip"
	ImportFolder ImportKind = "folder"
	ImportFiles  ImportKind = "files"
)

// ImportEntry is one file of an import item. Source is the local path the
// bytes are read from at upload time.
type ImportEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Source string `json:"source,omitempty"`
}

// ImportItem is one queued import.
type ImportItem struct {
	ID        string        `json:"id"`
	Kind      ImportKind    `json:"kind"`
	Name      string        `json:"name"`
	Count     int           `json:"count"`
	Bytes     int64         `json:"bytes"`
	Summary   string        `json:"summary"`
	StackHint string        `json:"stack_hint,omitempty"`
	Entries   []ImportEntry `json:"entries"`
}

// DefaultIgnore lists paths never imported.
var DefaultIgnore = []string{
	".git", ".git/**", "**/.git", "**/.git/**",
	"node_modules", "node_modules/**", "**/node_modules", "**/node_modules/**",
	".DS_Store", "**/.DS_Store",
}

var ignoreGlobs = compileIgnore(DefaultIgnore)

func compileIgnore(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p, '/'))
	}
	return out
}

// Ignored reports whether p matches an ignore rule.
func Ignored(p string) bool {
	p = cleanPath(p)
	for _, g := range ignoreGlobs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimLeft(p, "/")
}

// Classify builds an import item from a dropped or picked file list. A
// single .zip becomes a zip item; files sharing one top-level directory
// become a folder item; anything else is a files item.
func Classify(files []ImportEntry) (ImportItem, error) {
	entries := make([]ImportEntry, 0, len(files))
	for _, f := range files {
		p := cleanPath(f.Path)
		if p == "" || Ignored(p) {
			continue
		}
		f.Path = p
		entries = append(entries, f)
	}
	if len(entries) == 0 {
		return ImportItem{}, apperr.Validation("wizard.import", "nothing to import")
	}

	item := ImportItem{ID: uuid.NewString(), Entries: entries, Count: len(entries)}
	for _, e := range entries {
		item.Bytes += e.Size
	}

	switch root, shared := commonRoot(entries); {
	case len(entries) == 1 && strings.EqualFold(path.Ext(entries[0].Path), ".zip"):
		item.Kind = ImportZip
		item.Name = path.Base(entries[0].Path)
		item.Summary = fmt.Sprintf("archive · %s", humanize.Bytes(uint64(item.Bytes)))
	case shared:
		item.Kind = ImportFolder
		item.Name = root
		item.Summary = countSummary(item.Count, item.Bytes)
	default:
		item.Kind = ImportFiles
		if len(entries) == 1 {
			item.Name = path.Base(entries[0].Path)
		} else {
			item.Name = fmt.Sprintf("%d files", len(entries))
		}
		item.Summary = countSummary(item.Count, item.Bytes)
	}
	if item.Kind != ImportZip {
		item.StackHint = StackHint(entries)
	}
	return item, nil
}

func countSummary(n int, bytes int64) string {
	noun := "files"
	if n == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s · %s", n, noun, humanize.Bytes(uint64(bytes)))
}

// commonRoot returns the top-level directory shared by every entry.
func commonRoot(entries []ImportEntry) (string, bool) {
	root := ""
	for _, e := range entries {
		first, _, nested := strings.Cut(e.Path, "/")
		if !nested {
			return "", false
		}
		if root == "" {
			root = first
		} else if first != root {
			return "", false
		}
	}
	return root, root != ""
}

// StackHint names the most common languages among entries.
func StackHint(entries []ImportEntry) string {
	counts := make(map[string]int)
	for _, e := range entries {
		lexer := lexers.Match(path.Base(e.Path))
		if lexer == nil {
			continue
		}
		name := lexer.Config().Name
		if name == "" || strings.EqualFold(name, "plaintext") {
			continue
		}
		counts[name]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 3 {
		names = names[:3]
	}
	return strings.Join(names, ", ")
}

// ScanDir lists the importable files under dir. Paths are prefixed with
// the directory's base name so the result classifies as a folder.
func ScanDir(dir string) ([]ImportEntry, error) {
	base := filepath.Base(filepath.Clean(dir))
	var out []ImportEntry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ImportEntry{Path: base + "/" + rel, Size: info.Size(), Source: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return out, nil
}

// ScanFiles describes individual local files.
func ScanFiles(paths ...string) ([]ImportEntry, error) {
	out := make([]ImportEntry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, apperr.Validation("wizard.import", fmt.Sprintf("%s is a directory", p))
		}
		out = append(out, ImportEntry{Path: filepath.Base(p), Size: info.Size(), Source: p})
	}
	return out, nil
}
