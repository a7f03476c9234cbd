/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"github.com/rotisserie/eris"
)

// Capacity is the number of participants in a match.
const Capacity = 4

// QueueEntry is one participant waiting for a match.
type QueueEntry struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Avatar       string `json:"avatar,omitempty"`
	Sequence     uint64 `json:"-"`
}

// Snapshot is the ordered view of the queue sent to every client.
type Snapshot struct {
	Entries  []QueueEntry `json:"entries"`
	Count    int          `json:"count"`
	Capacity int          `json:"capacity"`
}

// Queue is the ordered admission list. It never holds more than Capacity
// entries, and holds at most one entry per connection and per display name.
type Queue struct {
	entries []QueueEntry
	seq     uint64
}

func NewQueue() *Queue {
	return &Queue{
		entries: make([]QueueEntry, 0, Capacity),
	}
}

// Join appends a new entry. A connection that is already queued is left
// untouched and joined is false.
func (q *Queue) Join(id, name, avatar string) (Snapshot, bool, error) {
	for _, e := range q.entries {
		if e.ConnectionID == id {
			return q.Snapshot(), false, nil
		}
		if e.DisplayName == name {
			return q.Snapshot(), false, eris.Wrapf(ErrInvariantViolation, "display name %q is queued under connection %s", name, e.ConnectionID)
		}
	}

	if len(q.entries) >= Capacity {
		return q.Snapshot(), false, eris.Wrapf(ErrCapacityExceeded, "%d/%d", len(q.entries), Capacity)
	}

	q.seq++
	q.entries = append(q.entries, QueueEntry{
		ConnectionID: id,
		DisplayName:  name,
		Avatar:       avatar,
		Sequence:     q.seq,
	})

	return q.Snapshot(), true, nil
}

// Leave removes the entry for id if present.
func (q *Queue) Leave(id string) (Snapshot, bool) {
	for i, e := range q.entries {
		if e.ConnectionID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return q.Snapshot(), true
		}
	}

	return q.Snapshot(), false
}

func (q *Queue) Len() int {
	return len(q.entries)
}

func (q *Queue) Full() bool {
	return len(q.entries) == Capacity
}

// Entries returns a copy of the queued entries in enqueue order.
func (q *Queue) Entries() []QueueEntry {
	out := make([]QueueEntry, len(q.entries))
	copy(out, q.entries)

	return out
}

func (q *Queue) Snapshot() Snapshot {
	return Snapshot{
		Entries:  q.Entries(),
		Count:    len(q.entries),
		Capacity: Capacity,
	}
}

// Drain empties a full queue and returns what it held.
func (q *Queue) Drain() ([]QueueEntry, error) {
	if !q.Full() {
		return nil, eris.Wrapf(ErrInvariantViolation, "drain of a queue holding %d/%d", len(q.entries), Capacity)
	}

	out := q.Entries()
	q.entries = q.entries[:0]

	return out, nil
}
