// Transmission schedule for virtual transmitters
package schedule

import (
	"container/heap"
	"errors"
	"sort"
)

// ErrEmpty is returned by Pop and Peek on an empty schedule.
var ErrEmpty = errors.New("schedule: empty")

// Event is the single outstanding transmission slot of one virtual
// transmitter.
type Event struct {
	ID  int   `json:"id"`
	Due int64 `json:"due_ms"`
}

// Schedule orders events by ascending due time, then by transmitter ID.
// It is not safe for concurrent use; the generator loop owns it.
type Schedule struct {
	h events
}

// events is the heap storage behind Schedule.
type events []Event

func before(a, b Event) bool {
	if a.Due != b.Due {
		return a.Due < b.Due
	}
	return a.ID < b.ID
}

func (h events) Len() int           { return len(h) }
func (h events) Less(i, j int) bool { return before(h[i], h[j]) }
func (h events) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *events) Push(x any)        { *h = append(*h, x.(Event)) }

func (h *events) Pop() any {
	last := (*h)[len(*h)-1]
	*h = (*h)[:len(*h)-1]
	return last
}

// New returns an empty schedule with room for n events.
func New(n int) *Schedule {
	return &Schedule{h: make(events, 0, n)}
}

// Push inserts e.
func (s *Schedule) Push(e Event) {
	heap.Push(&s.h, e)
}

// Pop removes and returns the event with the smallest due time.
func (s *Schedule) Pop() (Event, error) {
	if s.h.Len() == 0 {
		return Event{}, ErrEmpty
	}
	return heap.Pop(&s.h).(Event), nil
}

// Peek returns the earliest event without removing it.
func (s *Schedule) Peek() (Event, error) {
	if s.h.Len() == 0 {
		return Event{}, ErrEmpty
	}
	return s.h[0], nil
}

// Len returns the number of pending events.
func (s *Schedule) Len() int {
	return s.h.Len()
}

// Events returns a copy of all pending events sorted by due time, then ID.
func (s *Schedule) Events() []Event {
	out := make([]Event, len(s.h))
	copy(out, s.h)
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}
