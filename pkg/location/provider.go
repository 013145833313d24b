// Package location bridges position sources (a live GPS sensor or a route
// simulator) to subscribers of timestamped updates.
package location

import (
	"errors"
	"sync"

	"odysseywalk/pkg/model"
)

var (
	// ErrPermissionDenied is reported when the sensor refuses access or is missing.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable is reported when no fix can be obtained.
	ErrPositionUnavailable = errors.New("location unavailable")
	// ErrTimeout is reported when a fix does not arrive in time.
	ErrTimeout = errors.New("location request timed out")
	// ErrWatchEnded is reported when the sensor stream closes on its own.
	ErrWatchEnded = errors.New("location watch ended")
)

// Listener receives location updates. It runs on the provider's goroutine and
// must not block on I/O.
type Listener func(model.LocationUpdate)

// Provider emits timestamped position updates to subscribers.
type Provider interface {
	Start()
	Stop()
	Subscribe(l Listener) (unsubscribe func())
}

// broadcaster fans updates out to subscribers in subscription order.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	l  Listener
}

func (b *broadcaster) subscribe(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, l: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *broadcaster) emit(u model.LocationUpdate) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.l(u)
	}
}
