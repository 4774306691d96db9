package order

import (
	"github.com/yanun0323/decimal"

	"renkotrader/internal/model"
)

type EventKind uint8

const (
	_eventKind_beg EventKind = iota
	EventUpdate
	EventFill
	EventRejected
	_eventKind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _eventKind_beg && k < _eventKind_end
}

func (k EventKind) String() string {
	switch k {
	case EventUpdate:
		return "UPDATE"
	case EventFill:
		return "FILL"
	case EventRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Event is a copy of an order taken right after a committed state change.
type Event struct {
	Kind      EventKind
	Order     model.Order
	FillQty   decimal.Decimal
	FillPrice decimal.Decimal
	Reason    string
}

// Subscribe returns a channel of order events in commit order. A subscriber
// that falls behind by more than buffer events misses them.
func (m *Manager) Subscribe(buffer int) <-chan Event {
	return m.events.Subscribe(buffer)
}

// EventDrops is the number of events subscribers missed.
func (m *Manager) EventDrops() uint64 {
	return m.events.Drops()
}

// unlockAndPublish releases the manager lock and publishes events. Taking
// pubMu before the release keeps publish order equal to commit order.
func (m *Manager) unlockAndPublish(events []Event) {
	if len(events) == 0 {
		m.mu.Unlock()
		return
	}
	m.pubMu.Lock()
	m.mu.Unlock()
	for _, e := range events {
		m.events.Publish(e)
	}
	m.pubMu.Unlock()
}

func updateEvent(o *model.Order) Event {
	return Event{Kind: EventUpdate, Order: *o}
}
