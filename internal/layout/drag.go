package layout

import "math"

// Auto pane minimum: the larger of MinPanePx and MinPaneShare of the
// available width.
const (
	MinPanePx    = 48.0
	MinPaneShare = 0.2
)

// Drag tracks a divider drag between two adjacent panes.
type Drag struct {
	available float64
	minFirst  float64
	minSecond float64
	width     float64
	onCommit  func([]float64)
	done      bool
}

// AutoMin returns the default minimum pane width for available pixels.
func AutoMin(available float64) float64 {
	return math.Max(MinPanePx, available*MinPaneShare)
}

// BeginDrag starts a drag over available pixels. A minimum of zero or less
// means AutoMin. When the minima do not fit they are scaled down
// proportionally. onCommit, if set, receives the final ratios once.
func BeginDrag(available, firstWidth, minFirst, minSecond float64, onCommit func([]float64)) *Drag {
	if available < 0 {
		available = 0
	}
	if minFirst <= 0 {
		minFirst = AutoMin(available)
	}
	if minSecond <= 0 {
		minSecond = AutoMin(available)
	}
	if sum := minFirst + minSecond; sum > available && sum > 0 {
		minFirst = minFirst * available / sum
		minSecond = minSecond * available / sum
	}
	d := &Drag{available: available, minFirst: minFirst, minSecond: minSecond, onCommit: onCommit}
	d.width = d.clamp(firstWidth)
	return d
}

// Minima returns the effective minimum widths.
func (d *Drag) Minima() (first, second float64) {
	return d.minFirst, d.minSecond
}

// Bounds returns the allowed range of the first pane's width.
func (d *Drag) Bounds() (lo, hi float64) {
	return d.minFirst, d.available - d.minSecond
}

func (d *Drag) clamp(w float64) float64 {
	lo, hi := d.Bounds()
	if hi < lo {
		hi = lo
	}
	return math.Min(hi, math.Max(lo, w))
}

// Move sets the first pane's width and returns the clamped width.
func (d *Drag) Move(width float64) float64 {
	if !d.done {
		d.width = d.clamp(width)
	}
	return d.width
}

// Width returns the first pane's current width.
func (d *Drag) Width() float64 { return d.width }

// Ratios returns the current split as normalized ratios.
func (d *Drag) Ratios() []float64 {
	return NormalizeRatios([]float64{d.width, d.available - d.width}, 2)
}

// Commit ends the drag. Only the first call reports true and fires the
// commit callback.
func (d *Drag) Commit() ([]float64, bool) {
	r := d.Ratios()
	if d.done {
		return r, false
	}
	d.done = true
	if d.onCommit != nil {
		d.onCommit(r)
	}
	return r, true
}
