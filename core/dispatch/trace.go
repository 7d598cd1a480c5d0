package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// TraceEntry records one handler invocation observed during a dispatch.
type TraceEntry struct {
	Stage     Stage
	HandlerID string
	Priority  Priority
	Result    PhaseResult
	Threw     bool
	At        time.Time
}

// Trace is the ordered, append-only record of handler invocations for a
// single dispatched event. It is populated only when the owning Dispatcher
// was constructed with WithTracing.
type Trace struct {
	mu      sync.Mutex
	eventID string
	entries []TraceEntry
}

// EventID returns the ID of the event this trace belongs to.
func (t *Trace) EventID() string { return t.eventID }

// Entries returns a snapshot of the recorded entries in invocation order.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Trace) append(e TraceEntry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// wireTraceEntry is the human-readable JSON shape of a TraceEntry, with
// enums rendered as their String() form instead of raw integers.
type wireTraceEntry struct {
	Stage     string    `json:"stage"`
	HandlerID string    `json:"handler_id"`
	Priority  string    `json:"priority"`
	Result    string    `json:"result"`
	Threw     bool      `json:"threw"`
	At        time.Time `json:"at"`
}

type wireTrace struct {
	EventID string           `json:"event_id"`
	Entries []wireTraceEntry `json:"entries"`
}

// MarshalJSON renders the trace with enum fields as readable strings.
func (t *Trace) MarshalJSON() ([]byte, error) {
	entries := t.Entries()
	w := wireTrace{EventID: t.eventID, Entries: make([]wireTraceEntry, len(entries))}
	for i, e := range entries {
		w.Entries[i] = wireTraceEntry{
			Stage:     e.Stage.String(),
			HandlerID: e.HandlerID,
			Priority:  e.Priority.String(),
			Result:    e.Result.String(),
			Threw:     e.Threw,
			At:        e.At,
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses a trace written by MarshalJSON. Unrecognized enum
// strings are rejected rather than silently coerced to zero values.
func (t *Trace) UnmarshalJSON(data []byte) error {
	var w wireTrace
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.eventID = w.EventID
	t.entries = make([]TraceEntry, len(w.Entries))
	for i, e := range w.Entries {
		stage, err := stageFromString(e.Stage)
		if err != nil {
			return err
		}
		priority, err := priorityFromString(e.Priority)
		if err != nil {
			return err
		}
		result, err := phaseResultFromString(e.Result)
		if err != nil {
			return err
		}
		t.entries[i] = TraceEntry{
			Stage:     stage,
			HandlerID: e.HandlerID,
			Priority:  priority,
			Result:    result,
			Threw:     e.Threw,
			At:        e.At,
		}
	}
	return nil
}

// Trace returns the recorded trace for eventID, or nil if tracing was
// disabled or the event is unknown.
func (d *Dispatcher) Trace(eventID string) *Trace {
	d.tracesMu.Lock()
	defer d.tracesMu.Unlock()
	return d.traces[eventID]
}

func (d *Dispatcher) traceHandler(b *BaseEvent, stage Stage, entry *HandlerEntry, result PhaseResult, threw bool) {
	if !d.tracing {
		return
	}
	d.tracesMu.Lock()
	tr, ok := d.traces[b.id]
	if !ok {
		tr = &Trace{eventID: b.id}
		d.traces[b.id] = tr
	}
	d.tracesMu.Unlock()
	tr.append(TraceEntry{
		Stage:     stage,
		HandlerID: entry.id,
		Priority:  entry.priority,
		Result:    result,
		Threw:     threw,
		At:        time.Now(),
	})
}
