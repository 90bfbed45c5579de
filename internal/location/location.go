// Package location holds the last known user position and resolves place
// names into coordinates.
package location

import (
	"context"
	"fmt"
	"sync"
)

// Coordinate is a WGS84 position.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c lies within the WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// Listener is notified when the coordinate changes.
type Listener func(ctx context.Context, c Coordinate)

// Signal stores the last known coordinate and notifies listeners on change.
type Signal struct {
	mu        sync.Mutex
	current   *Coordinate
	listeners []Listener
}

func NewSignal() *Signal {
	return &Signal{}
}

// Subscribe registers l. Listeners run synchronously, in registration
// order, on the goroutine calling Update.
func (s *Signal) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Update stores c and notifies the listeners. It reports false, without
// notifying anyone, when c equals the stored coordinate.
func (s *Signal) Update(ctx context.Context, c Coordinate) bool {
	s.mu.Lock()
	if s.current != nil && *s.current == c {
		s.mu.Unlock()
		return false
	}
	s.current = &c
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, c)
	}
	return true
}

// Current returns the last known coordinate.
func (s *Signal) Current() (Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Coordinate{}, false
	}
	return *s.current, true
}
