// Package region implements the draggable-marker interaction used to pick
// a query's geographic center.
package region

import (
	"sync"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
)

// State is the marker interaction state.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	}
	return "unknown"
}

// MoveFunc receives every intermediate marker position, synchronously.
type MoveFunc func(geo.GeoPoint)

// CommitFunc receives the final position when a drag ends.
type CommitFunc func(geo.GeoPoint)

// CancelFunc receives the restored position when a drag is aborted.
type CancelFunc func(geo.GeoPoint)

// Editor holds a single draggable marker. Position changes only through
// drag events or an explicit Reset by the owner.
type Editor struct {
	mu       sync.Mutex
	position geo.GeoPoint
	origin   geo.GeoPoint
	state    State
	onMove   MoveFunc
	onCommit CommitFunc
	onCancel CancelFunc
}

// Option configures an Editor.
type Option func(*Editor)

// OnMove registers the move listener.
func OnMove(fn MoveFunc) Option {
	return func(e *Editor) { e.onMove = fn }
}

// OnCommit registers the drag-end listener.
func OnCommit(fn CommitFunc) Option {
	return func(e *Editor) { e.onCommit = fn }
}

// OnCancel registers the drag-abort listener. Cancels are not reported to
// the move listener.
func OnCancel(fn CancelFunc) Option {
	return func(e *Editor) { e.onCancel = fn }
}

// NewEditor creates an idle editor with the marker at start.
func NewEditor(start geo.GeoPoint, opts ...Option) *Editor {
	e := &Editor{position: start, origin: start}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Position returns the marker's current position.
func (e *Editor) Position() geo.GeoPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// State returns the current interaction state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PointerDown starts a drag gesture. It reports false if a drag is
// already in progress.
func (e *Editor) PointerDown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Dragging {
		return false
	}
	e.state = Dragging
	e.origin = e.position
	return true
}

// Move updates the marker to p and notifies the owner. Moves outside a
// drag gesture are ignored and reported as false.
func (e *Editor) Move(p geo.GeoPoint) bool {
	e.mu.Lock()
	if e.state != Dragging {
		e.mu.Unlock()
		return false
	}
	e.position = p
	fn := e.onMove
	e.mu.Unlock()

	if fn != nil {
		fn(p)
	}
	return true
}

// PointerUp ends the drag. The final position was already reported by the
// last Move; the commit listener, if any, receives it again.
func (e *Editor) PointerUp() bool {
	e.mu.Lock()
	if e.state != Dragging {
		e.mu.Unlock()
		return false
	}
	e.state = Idle
	p, fn := e.position, e.onCommit
	e.mu.Unlock()

	if fn != nil {
		fn(p)
	}
	return true
}

// Cancel aborts a drag, puts the marker back where the gesture started and
// notifies the cancel listener with that position.
func (e *Editor) Cancel() bool {
	e.mu.Lock()
	if e.state != Dragging {
		e.mu.Unlock()
		return false
	}
	e.state = Idle
	e.position = e.origin
	p, fn := e.position, e.onCancel
	e.mu.Unlock()

	if fn != nil {
		fn(p)
	}
	return true
}

// Reset moves the marker without emitting events and ends any gesture.
// Owners use it to adopt an externally chosen position.
func (e *Editor) Reset(p geo.GeoPoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = p
	e.origin = p
	e.state = Idle
}
