package bus

import (
	"context"
	"sync"
)

// Layer is an overlay that can be dismissed.
type Layer struct {
	Name string

	reg       *Layers
	onDismiss func()
	closed    bool
}

// Close removes the layer without calling its dismiss hook.
func (l *Layer) Close() {
	l.reg.remove(l)
}

// Layers is a stack of open overlays. Escape dismisses the topmost one and
// a UI reset dismisses them all.
type Layers struct {
	mu    sync.Mutex
	stack []*Layer
}

// NewLayers creates an empty registry.
func NewLayers() *Layers {
	return &Layers{}
}

// Open pushes an overlay. onDismiss runs when the registry dismisses it.
func (r *Layers) Open(name string, onDismiss func()) *Layer {
	l := &Layer{Name: name, reg: r, onDismiss: onDismiss}
	r.mu.Lock()
	r.stack = append(r.stack, l)
	r.mu.Unlock()
	return l
}

func (r *Layers) remove(l *Layer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.closed {
		return false
	}
	for i, x := range r.stack {
		if x == l {
			r.stack = append(r.stack[:i], r.stack[i+1:]...)
			l.closed = true
			return true
		}
	}
	return false
}

// Top returns the name of the topmost overlay.
func (r *Layers) Top() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stack) == 0 {
		return "", false
	}
	return r.stack[len(r.stack)-1].Name, true
}

// Len returns the number of open overlays.
func (r *Layers) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// DismissTop closes the topmost overlay and returns its name.
func (r *Layers) DismissTop() (string, bool) {
	r.mu.Lock()
	if len(r.stack) == 0 {
		r.mu.Unlock()
		return "", false
	}
	l := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	l.closed = true
	r.mu.Unlock()

	if l.onDismiss != nil {
		l.onDismiss()
	}
	return l.Name, true
}

// DismissAll closes every overlay, topmost first, and returns how many.
func (r *Layers) DismissAll() int {
	r.mu.Lock()
	stack := r.stack
	r.stack = nil
	for _, l := range stack {
		l.closed = true
	}
	r.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].onDismiss != nil {
			stack[i].onDismiss()
		}
	}
	return len(stack)
}

// Handle applies an Escape or ResetUIState event.
func (r *Layers) Handle(ev Event) {
	switch ev.Topic {
	case Escape:
		r.DismissTop()
	case ResetUIState:
		r.DismissAll()
	}
}

// Listen dismisses overlays in response to bus events until ctx is done.
func (r *Layers) Listen(ctx context.Context, b *Bus) {
	events := b.Subscribe(ctx, Escape, ResetUIState)
	go func() {
		for ev := range events {
			r.Handle(ev)
		}
	}()
}
