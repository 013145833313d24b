package location

import "sync"

// Visibility reports whether the application is in the foreground.
type Visibility interface {
	Visible() bool
	OnChange(f func(visible bool)) (remove func())
}

// VisibilityFlag is a Visibility toggled by the host (UI client or signal handler).
// The zero value is visible.
type VisibilityFlag struct {
	mu        sync.Mutex
	hidden    bool
	nextID    int
	listeners map[int]func(bool)
}

func (v *VisibilityFlag) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.hidden
}

func (v *VisibilityFlag) OnChange(f func(bool)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listeners == nil {
		v.listeners = make(map[int]func(bool))
	}
	v.nextID++
	id := v.nextID
	v.listeners[id] = f
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

// Set changes visibility and notifies listeners when it actually changes.
func (v *VisibilityFlag) Set(visible bool) {
	v.mu.Lock()
	if v.hidden == !visible {
		v.mu.Unlock()
		return
	}
	v.hidden = !visible
	fs := make([]func(bool), 0, len(v.listeners))
	for _, f := range v.listeners {
		fs = append(fs, f)
	}
	v.mu.Unlock()

	for _, f := range fs {
		f(visible)
	}
}
