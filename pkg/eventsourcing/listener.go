package eventsourcing

import "sync/atomic"

// EventListener is notified of every event as it is persisted, after
// the command and event have both been written to the store. Listeners
// must not block for long; the store calls them synchronously from
// within Command.
type EventListener interface {
	Listen(agg Aggregate, event Event)
}

// EventCounter is a trivial EventListener used in tests to assert how
// many events an aggregate store run actually produced.
type EventCounter struct {
	total int64
}

// Listen implements EventListener.
func (c *EventCounter) Listen(_ Aggregate, _ Event) {
	atomic.AddInt64(&c.total, 1)
}

// Total returns the number of events observed so far.
func (c *EventCounter) Total() int64 {
	return atomic.LoadInt64(&c.total)
}
