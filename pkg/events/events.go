package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventFenceRequested   EventType = "node.fence_requested"
	EventNodeUnclean      EventType = "node.unclean"
	EventGuestRecovery    EventType = "node.guest_recovery"
	EventResourceFailed   EventType = "resource.failed"
	EventResourceOrphan   EventType = "resource.orphan"
	EventFailcountCleared EventType = "resource.failcount_cleared"
	EventConfigError      EventType = "config.error"
)

// Event represents one decision taken while unpacking cluster state
type Event struct {
	ID        string
	Seq       int
	Type      EventType
	Timestamp time.Time
	Node      string
	Resource  string
	Message   string
	Metadata  map[string]string
}

// Subscriber is called synchronously for every recorded event
type Subscriber func(*Event)

// Recorder collects the events of a single reconciliation run. Event ids
// are name-based UUIDs derived from the run id and the event sequence, so
// the same input always yields the same event stream.
type Recorder struct {
	mu          sync.Mutex
	namespace   uuid.UUID
	now         time.Time
	events      []*Event
	subscribers []Subscriber
}

// NewRecorder creates a recorder for one run. The run id scopes event ids;
// now stamps every event.
func NewRecorder(runID string, now time.Time) *Recorder {
	return &Recorder{
		namespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte("crmcore:"+runID)),
		now:       now,
	}
}

// Subscribe registers fn to receive every event recorded from now on
func (r *Recorder) Subscribe(fn Subscriber) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Record appends an event. A nil recorder drops it.
func (r *Recorder) Record(typ EventType, node, rsc, message string, metadata map[string]string) *Event {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	seq := len(r.events) + 1
	event := &Event{
		ID:        uuid.NewSHA1(r.namespace, []byte(fmt.Sprintf("%d/%s/%s/%s", seq, typ, node, rsc))).String(),
		Seq:       seq,
		Type:      typ,
		Timestamp: r.now,
		Node:      node,
		Resource:  rsc,
		Message:   message,
		Metadata:  metadata,
	}
	r.events = append(r.events, event)
	subs := make([]Subscriber, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return event
}

// Events returns the recorded events in order
func (r *Recorder) Events() []*Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events of one type
func (r *Recorder) Filter(typ EventType) []*Event {
	var out []*Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of recorded events
func (r *Recorder) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
