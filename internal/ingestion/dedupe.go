package ingestion

import (
	"container/list"

	"github.com/google/uuid"
)

// Dedupe is an LRU set of recently applied command ids. JetStream
// redelivers on missed ACKs, so the dispatcher must recognize a command
// it has already applied. Not thread-safe; only the dispatch goroutine
// touches it.
type Dedupe struct {
	capacity int
	order    *list.List
	index    map[uuid.UUID]*list.Element
}

func NewDedupe(capacity int) *Dedupe {
	if capacity <= 0 {
		capacity = 1 << 16
	}
	return &Dedupe{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uuid.UUID]*list.Element, capacity),
	}
}

// Seen reports whether id was marked, refreshing its recency.
func (d *Dedupe) Seen(id uuid.UUID) bool {
	el, ok := d.index[id]
	if ok {
		d.order.MoveToFront(el)
	}
	return ok
}

// Mark records id, evicting the least recently used entry at capacity.
func (d *Dedupe) Mark(id uuid.UUID) {
	if el, ok := d.index[id]; ok {
		d.order.MoveToFront(el)
		return
	}
	if d.order.Len() >= d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.index, oldest.Value.(uuid.UUID))
		}
	}
	d.index[id] = d.order.PushFront(id)
}

// Len returns the number of tracked ids.
func (d *Dedupe) Len() int {
	return d.order.Len()
}
