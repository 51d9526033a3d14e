package sandbox

import (
	"github.com/peter-kozarec/simutrade/pkg/common"
)

// phase is where an accepted order waits inside the book.
type phase uint8

const (
	phaseQueuedNextBar phase = iota + 1
	phaseQueuedEOD
	phaseResting
	phaseExpiring
	phaseArmed
)

func (p phase) String() string {
	switch p {
	case phaseQueuedNextBar:
		return "queued_next_bar"
	case phaseQueuedEOD:
		return "queued_eod"
	case phaseResting:
		return "resting"
	case phaseExpiring:
		return "expiring"
	case phaseArmed:
		return "armed"
	}
	return "none"
}

type entry struct {
	order common.Order
	phase phase
}

// Book owns every order a session has seen. Ids stay reserved after an
// order leaves the book, so they can never be reused.
type Book struct {
	orders map[string]*entry
	open   []*entry
}

func NewBook() *Book {
	return &Book{
		orders: make(map[string]*entry),
	}
}

func (b *Book) Has(id string) bool {
	_, ok := b.orders[id]
	return ok
}

func (b *Book) Get(id string) (common.Order, bool) {
	e, ok := b.orders[id]
	if !ok {
		return common.Order{}, false
	}
	return e.order, true
}

func (b *Book) entry(id string) *entry {
	return b.orders[id]
}

func (b *Book) Add(order common.Order, p phase) *entry {
	e := &entry{order: order, phase: p}
	b.orders[order.Id] = e
	b.open = append(b.open, e)
	return e
}

func (b *Book) remove(e *entry) {
	e.phase = 0
	for i, o := range b.open {
		if o == e {
			b.open = append(b.open[:i], b.open[i+1:]...)
			return
		}
	}
}

// Len is the number of open orders.
func (b *Book) Len() int { return len(b.open) }

// Open returns the open orders in submission sequence.
func (b *Book) Open() []common.Order {
	out := make([]common.Order, 0, len(b.open))
	for _, e := range b.open {
		out = append(out, e.order)
	}
	return out
}

// selectPhases returns the open entries in any of the phases, in submission
// sequence. The result is a copy, safe to iterate while the book changes.
func (b *Book) selectPhases(phases ...phase) []*entry {
	var out []*entry
	for _, e := range b.open {
		for _, p := range phases {
			if e.phase == p {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
