package hashroot

import (
	"maps"
	"time"
)

// EventKind classifies an audit event.
type EventKind string

const (
	EventBatch    EventKind = "batch"
	EventAudio    EventKind = "audio"
	EventDenied   EventKind = "denied"
	EventRejected EventKind = "rejected"
	EventCollapse EventKind = "collapse"
	EventEvicted  EventKind = "evicted"
	EventExpired  EventKind = "expired"
)

// Event is one entry of the audit trail.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
}

// Report is a point-in-time view of the engine's level table and recent
// activity.
type Report struct {
	// HashLevels maps level number to pending (not yet collapsed) hashes.
	HashLevels  map[int]int `json:"hash_levels"`
	TotalHashes int         `json:"total_hashes"`
	LastCheck   time.Time   `json:"last_check"`
	// Events holds the most recent events, oldest first.
	Events []Event `json:"events"`
}

// auditLog is a fixed-size ring of recent events plus the level summary taken
// at the last ingestion. Callers hold the engine mutex.
type auditLog struct {
	events []Event
	next   int
	full   bool

	levels    map[int]int
	total     int
	lastCheck time.Time
}

func newAuditLog(size int) *auditLog {
	return &auditLog{
		events: make([]Event, size),
		levels: map[int]int{},
	}
}

func (a *auditLog) record(at time.Time, kind EventKind, msg string) {
	a.events[a.next] = Event{Time: at, Kind: kind, Message: msg}
	a.next = (a.next + 1) % len(a.events)
	if a.next == 0 {
		a.full = true
	}
}

func (a *auditLog) check(at time.Time, sizes []int) {
	a.levels = make(map[int]int, len(sizes))
	a.total = 0
	for lvl, n := range sizes {
		a.levels[lvl] = n
		a.total += n
	}
	a.lastCheck = at
}

func (a *auditLog) report() Report {
	var events []Event
	if a.full {
		events = append(events, a.events[a.next:]...)
	}
	events = append(events, a.events[:a.next]...)

	return Report{
		HashLevels:  maps.Clone(a.levels),
		TotalHashes: a.total,
		LastCheck:   a.lastCheck,
		Events:      events,
	}
}
