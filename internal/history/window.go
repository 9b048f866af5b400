// Package history holds the bounded, ordered store of recent outcome
// events that every predictive stage reads from.
package history

import (
	"fmt"
	"sync"

	"github.com/tablerun/tablerun/internal/domain"
)

// DefaultCapacity is the window size used when none is configured.
const DefaultCapacity = 20

// DataGapError reports an ordering violation from the acquisition side:
// an event whose sequence id is not strictly greater than the last one
// recorded. Numbering gaps are tolerated (missed hands); a decrease or
// duplicate means the upstream stream reordered and history integrity
// cannot be trusted.
type DataGapError struct {
	LastSequence uint64
	GotSequence  uint64
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("outcome sequence went backwards: last=%d got=%d", e.LastSequence, e.GotSequence)
}

// Window is a fixed-capacity ring buffer of OutcomeEvents with
// single-writer/multiple-reader discipline. Eviction is oldest-first.
type Window struct {
	mu       sync.RWMutex
	events   []domain.OutcomeEvent
	capacity int
	start    int
	count    int
	lastSeq  uint64
	total    uint64
}

// NewWindow creates a window holding up to capacity events.
// Non-positive capacities fall back to DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		events:   make([]domain.OutcomeEvent, capacity),
		capacity: capacity,
	}
}

// Append records an event, evicting the oldest when full. It returns a
// *DataGapError if the event's sequence id is not strictly greater than
// the last recorded one.
func (w *Window) Append(ev domain.OutcomeEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.total > 0 && ev.Sequence <= w.lastSeq {
		return &DataGapError{LastSequence: w.lastSeq, GotSequence: ev.Sequence}
	}

	idx := (w.start + w.count) % w.capacity
	w.events[idx] = ev
	if w.count < w.capacity {
		w.count++
	} else {
		w.start = (w.start + 1) % w.capacity
	}
	w.lastSeq = ev.Sequence
	w.total++
	return nil
}

// Snapshot returns a copy of the buffered events ordered oldest to
// newest. Mutating the returned slice does not affect the window.
func (w *Window) Snapshot() []domain.OutcomeEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]domain.OutcomeEvent, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.events[(w.start+i)%w.capacity]
	}
	return out
}

// Len returns the number of buffered events.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

// Capacity returns the configured maximum length.
func (w *Window) Capacity() int { return w.capacity }

// LastSequence returns the most recently recorded sequence id, or zero
// if nothing has been recorded.
func (w *Window) LastSequence() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastSeq
}

// TotalRecorded returns the number of events accepted over the window's
// lifetime, including evicted ones.
func (w *Window) TotalRecorded() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.total
}
