// ABOUTME: Admission filter for inbound Matrix message events
// ABOUTME: Drops our own echoes, backlog from before startup and redelivered event IDs

package dedupe

import (
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Reason explains why an event was not admitted.
type Reason string

const (
	Admitted  Reason = ""
	FromSelf  Reason = "own message"
	Backlog   Reason = "sent before startup"
	Duplicate Reason = "already handled"
)

// EventFilter decides which message events the bot should act on.
type EventFilter struct {
	self    id.UserID
	started time.Time
	seen    *Cache[id.EventID]
}

// NewEventFilter admits events from anyone but self, sent at or after
// started, each event ID at most once.
func NewEventFilter(self id.UserID, started time.Time) *EventFilter {
	return &EventFilter{
		self:    self,
		started: started,
		seen:    New[id.EventID](DefaultTTL, DefaultSize),
	}
}

// Admit returns Admitted when evt should be handled.
func (f *EventFilter) Admit(evt *event.Event) Reason {
	if evt.Sender == f.self {
		return FromSelf
	}
	// Matrix timestamps are milliseconds since the epoch
	if evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(f.started) {
		return Backlog
	}
	if evt.ID != "" && f.seen.Seen(evt.ID) {
		return Duplicate
	}
	return Admitted
}
