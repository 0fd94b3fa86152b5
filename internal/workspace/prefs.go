package workspace

import (
	"fmt"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/kv"
)

// Density is the row spacing preference.
type Density string

const (
	DensityComfortable Density = "comfortable"
	DensityCompact     Density = "compact"
)

// Font size bounds.
const (
	DefaultFontSize = 14
	MinFontSize     = 11
	MaxFontSize     = 20
)

func densityKey() string  { return kv.Key(kv.DomainUIDensity, kv.GlobalScope) }
func fontSizeKey() string { return kv.Key(kv.DomainUIFontSize, kv.GlobalScope) }

// Density returns the density preference.
func (w *Workspace) Density() Density {
	switch d := Density(kv.Read(w.store, densityKey(), string(DensityComfortable))); d {
	case DensityCompact, DensityComfortable:
		return d
	}
	return DensityComfortable
}

// SetDensity stores the density preference.
func (w *Workspace) SetDensity(d Density) error {
	if d != DensityCompact && d != DensityComfortable {
		return apperr.Validation("workspace.density", fmt.Sprintf("unknown density %q", d))
	}
	w.store.Write(densityKey(), string(d))
	w.changed("prefs")
	return nil
}

// FontSize returns the font size preference.
func (w *Workspace) FontSize() int {
	return clampFont(kv.Read(w.store, fontSizeKey(), DefaultFontSize))
}

// SetFontSize stores the font size, clamped to the supported range.
func (w *Workspace) SetFontSize(size int) int {
	size = clampFont(size)
	w.store.Write(fontSizeKey(), size)
	w.changed("prefs")
	return size
}

func clampFont(size int) int {
	switch {
	case size < MinFontSize:
		return MinFontSize
	case size > MaxFontSize:
		return MaxFontSize
	}
	return size
}
