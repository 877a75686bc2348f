package streaming

import (
	"encoding/json"
	"time"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventTypeSession   EventType = "session"
	EventTypeProgress  EventType = "progress"
	EventTypeComplete  EventType = "complete"
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"
)

// SSEEvent is one Server-Sent Event. The payload is only reachable through the typed
// accessors so a consumer cannot mistake one event's data for another's.
type SSEEvent struct {
	Type      EventType
	Timestamp time.Time
	data      any
}

// MarshalJSON renders the event as {"type","timestamp","data"}
func (e SSEEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		Timestamp time.Time `json:"timestamp"`
		Data      any       `json:"data"`
	}{e.Type, e.Timestamp, e.data})
}

// Data returns the raw payload
func (e SSEEvent) Data() any {
	return e.data
}

// Terminal reports whether the event ends a session stream
func (e SSEEvent) Terminal() bool {
	return e.Type == EventTypeComplete || e.Type == EventTypeError
}

// SessionEvent is a snapshot of an import session
type SessionEvent struct {
	ID          string     `json:"id"`
	BudgetID    string     `json:"budgetId"`
	FileName    string     `json:"fileName"`
	Status      string     `json:"status"`
	Processed   int        `json:"processed"`
	Total       int        `json:"total"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ProgressEvent reports how many records of an import have been handled
type ProgressEvent struct {
	SessionID  string  `json:"sessionId"`
	FileName   string  `json:"fileName"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// CompleteEvent carries the outcome of a finished import
type CompleteEvent struct {
	SessionID  string `json:"sessionId"`
	TrackerID  string `json:"importTrackerId"`
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
}

// ErrorEvent reports an import that could not run to completion
type ErrorEvent struct {
	SessionID string   `json:"sessionId,omitempty"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
}

// Percent returns processed/total as a percentage rounded to one decimal
func Percent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed*1000/total) / 10
}

func newEvent(t EventType, data any) SSEEvent {
	return SSEEvent{Type: t, Timestamp: time.Now(), data: data}
}

func NewSessionEvent(s SessionEvent) SSEEvent   { return newEvent(EventTypeSession, s) }
func NewProgressEvent(p ProgressEvent) SSEEvent { return newEvent(EventTypeProgress, p) }
func NewCompleteEvent(c CompleteEvent) SSEEvent { return newEvent(EventTypeComplete, c) }
func NewErrorEvent(e ErrorEvent) SSEEvent       { return newEvent(EventTypeError, e) }
func NewHeartbeatEvent() SSEEvent               { return newEvent(EventTypeHeartbeat, nil) }

func (e SSEEvent) SessionData() (SessionEvent, bool) {
	d, ok := e.data.(SessionEvent)
	return d, ok
}

func (e SSEEvent) ProgressData() (ProgressEvent, bool) {
	d, ok := e.data.(ProgressEvent)
	return d, ok
}

func (e SSEEvent) CompleteData() (CompleteEvent, bool) {
	d, ok := e.data.(CompleteEvent)
	return d, ok
}

func (e SSEEvent) ErrorData() (ErrorEvent, bool) {
	d, ok := e.data.(ErrorEvent)
	return d, ok
}
