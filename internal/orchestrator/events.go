package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yagualauncher/yagua/internal/reconcile"
)

type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventManifestFetched EventType = "manifest_fetched"
	EventPlanComputed    EventType = "plan_computed"
	EventFileProgress    EventType = "file_progress"
	EventUpdateCommitted EventType = "update_committed"
	EventLaunchStarted   EventType = "launch_started"
	EventLaunchExited    EventType = "launch_exited"
	EventError           EventType = "error"
)

// Event is one entry of the run log. Only the fields of its Type are set.
type Event struct {
	Seq  uint64    `json:"seq"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	From State `json:"from,omitempty"`
	To   State `json:"to,omitempty"`

	Version string            `json:"version,omitempty"`
	Files   int               `json:"files,omitempty"`
	Counts  *reconcile.Counts `json:"counts,omitempty"`

	Path       string `json:"path,omitempty"`
	BytesDone  int64  `json:"bytesDone,omitempty"`
	BytesTotal int64  `json:"bytesTotal,omitempty"`

	PID      int  `json:"pid,omitempty"`
	ExitCode *int `json:"exitCode,omitempty"`

	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// DefaultEventLogLimit bounds the events kept across runs by Compact.
const DefaultEventLogLimit = 1024

// EventLog is an ordered log. Within a run readers never miss an event: each
// subscriber walks the log at its own pace. Compact drops history between
// runs; sequence numbers keep increasing across compactions.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	seq    uint64
	notify chan struct{}
	closed bool
}

func NewEventLog() *EventLog {
	return &EventLog{notify: make(chan struct{})}
}

// Append assigns the next sequence number and wakes readers. Appending to a
// closed log is a no-op.
func (l *EventLog) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return e
	}

	l.seq++
	e.Seq = l.seq
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	l.events = append(l.events, e)

	close(l.notify)
	l.notify = make(chan struct{})
	return e
}

// after returns the index of the first stored event with Seq > seq.
func (l *EventLog) after(seq uint64) int {
	return sort.Search(len(l.events), func(i int) bool { return l.events[i].Seq > seq })
}

// Since returns a copy of the stored events with Seq > seq.
func (l *EventLog) Since(seq uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.after(seq)
	if i == len(l.events) {
		return nil
	}
	return append([]Event(nil), l.events[i:]...)
}

// Len is the number of stored events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// LastSeq is the sequence number of the latest event, zero when none.
func (l *EventLog) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Compact drops progress events and then keeps at most limit of the newest
// events. A reader positioned on a dropped event resumes at the next kept one.
func (l *EventLog) Compact(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[:0]
	for _, e := range l.events {
		if e.Type != EventFileProgress {
			kept = append(kept, e)
		}
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	l.events = append([]Event(nil), kept...)
}

// Close ends every subscription once it has delivered the remaining events.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.notify)
}

// Subscribe streams events with Seq > after, in order, until ctx is done or
// the log is closed and drained.
func (l *EventLog) Subscribe(ctx context.Context, after uint64) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		cursor := after
		for {
			l.mu.Lock()
			batch := append([]Event(nil), l.events[l.after(cursor):]...)
			wait, closed := l.notify, l.closed
			l.mu.Unlock()

			for _, e := range batch {
				select {
				case ch <- e:
					cursor = e.Seq
				case <-ctx.Done():
					return
				}
			}
			if closed && len(batch) == 0 {
				return
			}
			if len(batch) > 0 {
				continue
			}

			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
