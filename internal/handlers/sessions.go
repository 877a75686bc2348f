package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/blaug210/budget-app/internal/importer"
	"github.com/blaug210/budget-app/internal/streaming"
)

// SessionStatus is the lifecycle state of an upload import
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// SessionRetention is how long finished sessions stay queryable
const SessionRetention = time.Hour

// Session tracks one background import started over HTTP
type Session struct {
	ID          string           `json:"id"`
	BudgetID    string           `json:"budgetId"`
	UserID      string           `json:"userId,omitempty"`
	FileName    string           `json:"fileName"`
	Status      SessionStatus    `json:"status"`
	Processed   int              `json:"processed"`
	Total       int              `json:"total"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	Result      *importer.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	Details     []string         `json:"details,omitempty"`
}

// Done reports whether the import has stopped running
func (s Session) Done() bool {
	return s.Status != StatusRunning
}

func (s Session) event() streaming.SSEEvent {
	return streaming.NewSessionEvent(streaming.SessionEvent{
		ID:          s.ID,
		BudgetID:    s.BudgetID,
		FileName:    s.FileName,
		Status:      string(s.Status),
		Processed:   s.Processed,
		Total:       s.Total,
		CreatedAt:   s.CreatedAt,
		CompletedAt: s.CompletedAt,
		Error:       s.Error,
	})
}

// terminalEvent is the complete or error event of a finished session
func (s Session) terminalEvent() streaming.SSEEvent {
	if s.Status == StatusCompleted && s.Result != nil {
		return streaming.NewCompleteEvent(completeEvent(s.ID, s.Result))
	}
	return streaming.NewErrorEvent(streaming.ErrorEvent{SessionID: s.ID, Message: s.Error, Details: s.Details})
}

func completeEvent(sessionID string, res *importer.Result) streaming.CompleteEvent {
	return streaming.CompleteEvent{
		SessionID:  sessionID,
		TrackerID:  res.TrackerID,
		Success:    res.Success,
		Total:      res.Stats.Total,
		Imported:   res.Stats.Imported,
		Duplicates: res.Stats.Duplicates,
		Errors:     res.Stats.Errors,
	}
}

type sessionEntry struct {
	session Session
	cancel  context.CancelFunc
}

// SessionStore keeps upload sessions in memory
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

// Add registers a running session; cancel stops its import
func (s *SessionStore) Add(sess Session, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.sessions[sess.ID] = &sessionEntry{session: sess, cancel: cancel}
}

// Get returns a copy of the session
func (s *SessionStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return entry.session, true
}

// Update applies fn to the session and returns the updated copy
func (s *SessionStore) Update(id string, fn func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	fn(&entry.session)
	return entry.session, true
}

// Finish marks the session done with status and releases its cancel func
func (s *SessionStore) Finish(id string, status SessionStatus, fn func(*Session)) (Session, bool) {
	return s.Update(id, func(sess *Session) {
		now := s.now()
		sess.Status = status
		sess.CompletedAt = &now
		if fn != nil {
			fn(sess)
		}
		s.sessions[id].cancel = nil
	})
}

// Cancel stops a running session's import. It reports false when the session is
// unknown or already finished.
func (s *SessionStore) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok || entry.session.Done() || entry.cancel == nil {
		return false
	}
	entry.cancel()
	return true
}

// CancelAll stops every running import
func (s *SessionStore) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.sessions {
		if entry.cancel != nil {
			entry.cancel()
		}
	}
}

// pruneLocked drops sessions that finished more than SessionRetention ago
func (s *SessionStore) pruneLocked() {
	cutoff := s.now().Add(-SessionRetention)
	for id, entry := range s.sessions {
		if done := entry.session.CompletedAt; done != nil && done.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
