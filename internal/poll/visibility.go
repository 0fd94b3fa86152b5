package poll

import "sync"

// Visibility tracks whether the workspace is in front of the user. Pollers
// suspend while it is hidden and run once immediately when it returns.
type Visibility struct {
	mu      sync.Mutex
	visible bool
	subs    map[int]chan bool
	nextID  int
}

// NewVisibility returns a switch in the given initial state.
func NewVisibility(visible bool) *Visibility {
	return &Visibility{visible: visible, subs: make(map[int]chan bool)}
}

// Visible reports the current state.
func (v *Visibility) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Set changes the state and notifies subscribers on a transition.
func (v *Visibility) Set(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.visible == visible {
		return
	}
	v.visible = visible
	for _, ch := range v.subs {
		// Keep only the latest state for slow subscribers.
		select {
		case <-ch:
		default:
		}
		ch <- visible
	}
}

func (v *Visibility) subscribe() (<-chan bool, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	ch := make(chan bool, 1)
	v.subs[id] = ch
	return ch, func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}
