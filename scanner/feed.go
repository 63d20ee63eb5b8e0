package scanner

import (
	"time"

	"github.com/srg/blip/internal/ringchan"
)

// Event is one discovery, with a copy of the entry as it was at that moment
type Event struct {
	Entry     *ScanEntry
	NewDevice bool
	NewData   bool
	Timestamp time.Time
}

// EventFeed is a DiscoveryObserver that buffers events for another goroutine.
// When the reader falls behind the oldest events are dropped.
type EventFeed struct {
	events *ringchan.RingChannel[Event]
	now    func() time.Time
}

// NewEventFeed creates a feed holding at most capacity events
func NewEventFeed(capacity int) *EventFeed {
	return &EventFeed{events: ringchan.New[Event](capacity), now: time.Now}
}

func (f *EventFeed) OnDiscovery(entry *ScanEntry, isNewDevice, isNewData bool) {
	f.events.Send(Event{
		Entry:     entry.Clone(),
		NewDevice: isNewDevice,
		NewData:   isNewData,
		Timestamp: f.now(),
	})
}

// Events returns the receive side of the feed
func (f *EventFeed) Events() <-chan Event {
	return f.events.C()
}

// Dropped is how many events were discarded unread
func (f *EventFeed) Dropped() int64 {
	return f.events.Metrics().Overwritten
}

// Close ends the feed; call it after the scan has stopped
func (f *EventFeed) Close() {
	f.events.Close()
}
