package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/importer"
	"github.com/blaug210/budget-app/internal/middleware"
	"github.com/blaug210/budget-app/internal/pipeline"
	"github.com/blaug210/budget-app/internal/streaming"
)

const (
	// DefaultMaxUpload bounds the size of an uploaded statement
	DefaultMaxUpload = 100 << 20
	// DefaultHeartbeat is the interval of SSE keep-alive events
	DefaultHeartbeat = 15 * time.Second

	formMemory = 32 << 20
)

// Importer parses uploads and runs previews and imports on them
type Importer interface {
	PreviewReader(ctx context.Context, budgetID, name string, r io.Reader, fileType domain.FileType, limit int) (*pipeline.ParseResult, *importer.PreviewResult, error)
	ImportReader(ctx context.Context, budgetID, name string, r io.Reader, fileType domain.FileType, progress importer.ProgressFunc) (*pipeline.ParseResult, *importer.Result, error)
}

// BudgetLookup checks that a budget exists
type BudgetLookup interface {
	GetBudget(ctx context.Context, id string) (*domain.Budget, error)
}

// ImportHandlers serves upload previews, background imports and their event streams
type ImportHandlers struct {
	importer  Importer
	budgets   BudgetLookup
	hub       *streaming.StreamHub
	sessions  *SessionStore
	logger    *log.Logger
	maxUpload int64
	heartbeat time.Duration
	wg        sync.WaitGroup
}

// ImportOption configures ImportHandlers
type ImportOption func(*ImportHandlers)

// WithLogger sets the handler logger
func WithLogger(logger *log.Logger) ImportOption {
	return func(h *ImportHandlers) {
		h.logger = logger
	}
}

// WithMaxUpload limits request bodies to n bytes
func WithMaxUpload(n int64) ImportOption {
	return func(h *ImportHandlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval
func WithHeartbeat(d time.Duration) ImportOption {
	return func(h *ImportHandlers) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewImportHandlers creates the import endpoints
func NewImportHandlers(imp Importer, budgets BudgetLookup, hub *streaming.StreamHub, opts ...ImportOption) *ImportHandlers {
	h := &ImportHandlers{
		importer:  imp,
		budgets:   budgets,
		hub:       hub,
		sessions:  NewSessionStore(),
		logger:    log.New(io.Discard),
		maxUpload: DefaultMaxUpload,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close cancels running imports and waits for them to roll back
func (h *ImportHandlers) Close() {
	h.sessions.CancelAll()
	h.wg.Wait()
}

// Wait blocks until every background import has finished
func (h *ImportHandlers) Wait() {
	h.wg.Wait()
}

type upload struct {
	name     string
	data     []byte
	fileType domain.FileType
}

// readUpload reads the multipart "file" part and the optional "file_type" field
func (h *ImportHandlers) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUpload))
			return nil, false
		}
		writeError(w, h.logger, http.StatusBadRequest, "Failed to parse form")
		return nil, false
	}

	fileType := domain.FileType(strings.ToLower(r.FormValue("file_type")))
	if fileType != "" && !domain.ValidateFileType(fileType) {
		writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("invalid file_type %q", fileType))
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "No file uploaded")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Failed to read upload")
		return nil, false
	}
	return &upload{name: header.Filename, data: data, fileType: fileType}, true
}

func (h *ImportHandlers) budgetExists(w http.ResponseWriter, r *http.Request, id string) bool {
	if _, err := h.budgets.GetBudget(r.Context(), id); err != nil {
		writeFailure(w, h.logger, err)
		return false
	}
	return true
}

type previewResponse struct {
	FileName string                  `json:"file_name"`
	FileType domain.FileType         `json:"file_type"`
	Parser   string                  `json:"parser"`
	Warnings []string                `json:"parse_warnings"`
	Preview  *importer.PreviewResult `json:"preview"`
}

// Preview handles POST /api/budgets/{id}/preview
func (h *ImportHandlers) Preview(w http.ResponseWriter, r *http.Request) {
	budgetID := r.PathValue("id")
	if !h.budgetExists(w, r, budgetID) {
		return
	}

	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	parsed, preview, err := h.importer.PreviewReader(r.Context(), budgetID, up.name, bytes.NewReader(up.data), up.fileType, limit)
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, previewResponse{
		FileName: parsed.FileName,
		FileType: parsed.FileType,
		Parser:   parsed.Parser,
		Warnings: parsed.Result.WarningMessages(),
		Preview:  preview,
	})
}

// StartImport handles POST /api/budgets/{id}/imports. The import runs in the
// background; progress is streamed from /api/sessions/{id}/events.
func (h *ImportHandlers) StartImport(w http.ResponseWriter, r *http.Request) {
	budgetID := r.PathValue("id")
	if !h.budgetExists(w, r, budgetID) {
		return
	}

	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	sess := Session{
		ID:        uuid.NewString(),
		BudgetID:  budgetID,
		UserID:    userID,
		FileName:  up.name,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}

	// The import outlives the request
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	h.sessions.Add(sess, cancel)

	h.wg.Add(1)
	go h.runImport(ctx, cancel, sess, up)

	h.logger.Info("import started", "session", sess.ID, "budget", budgetID, "file", up.name)
	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"sessionId": sess.ID})
}

func (h *ImportHandlers) runImport(ctx context.Context, cancel context.CancelFunc, sess Session, up *upload) {
	defer h.wg.Done()
	defer cancel()

	progress := func(processed, total int) {
		h.sessions.Update(sess.ID, func(s *Session) {
			s.Processed = processed
			s.Total = total
		})
		h.hub.Broadcast(sess.ID, streaming.NewProgressEvent(streaming.ProgressEvent{
			SessionID:  sess.ID,
			FileName:   up.name,
			Processed:  processed,
			Total:      total,
			Percentage: streaming.Percent(processed, total),
		}))
	}

	_, res, err := h.importer.ImportReader(ctx, sess.BudgetID, up.name, bytes.NewReader(up.data), up.fileType, progress)
	if err != nil {
		status := StatusFailed
		if ctx.Err() != nil {
			status = StatusCancelled
		}
		var details []string
		var parseErr *pipeline.ParseError
		if errors.As(err, &parseErr) {
			details = parseErr.Messages
		}

		done, _ := h.sessions.Finish(sess.ID, status, func(s *Session) {
			s.Error = err.Error()
			s.Details = details
		})
		h.logger.Warn("import did not complete", "session", sess.ID, "status", status, "error", err)
		h.hub.Broadcast(sess.ID, done.terminalEvent())
		return
	}

	done, _ := h.sessions.Finish(sess.ID, StatusCompleted, func(s *Session) {
		s.Result = res
		s.Processed = res.Stats.Total
		s.Total = res.Stats.Total
	})
	h.logger.Info("import completed", "session", sess.ID, "tracker", res.TrackerID, "imported", res.Stats.Imported)
	h.hub.Broadcast(sess.ID, done.terminalEvent())
}

// session loads a session and enforces that authenticated callers only see their own
func (h *ImportHandlers) session(w http.ResponseWriter, r *http.Request) (Session, bool) {
	sess, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return Session{}, false
	}
	if userID, authed := middleware.GetUserID(r.Context()); authed && sess.UserID != userID {
		writeError(w, h.logger, http.StatusForbidden, "Forbidden")
		return Session{}, false
	}
	return sess, true
}

// GetSession handles GET /api/sessions/{id}
func (h *ImportHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sess)
}

// CancelImport handles POST /api/sessions/{id}/cancel
func (h *ImportHandlers) CancelImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.sessions.Cancel(sess.ID) {
		writeError(w, h.logger, http.StatusConflict, fmt.Sprintf("session already %s", sess.Status))
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// StreamEvents handles GET /api/sessions/{id}/events as a Server-Sent Event stream.
// The stream opens with a session snapshot and ends after the complete or error event.
func (h *ImportHandlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.hub.Register(context.WithoutCancel(r.Context()), sess.ID)
	defer h.hub.Unregister(sess.ID, client)

	// Snapshot after registering so a terminal event cannot fall between the two
	sess, _ = h.sessions.Get(sess.ID)
	if !h.writeEvent(w, sess.event()) {
		return
	}
	if sess.Done() {
		h.writeEvent(w, sess.terminalEvent())
		flusher.Flush()
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-client.Events:
			if !open {
				return
			}
			if !h.writeEvent(w, event) {
				return
			}
			flusher.Flush()
			if event.Terminal() {
				return
			}
		case <-ticker.C:
			if !h.writeEvent(w, streaming.NewHeartbeatEvent()) {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *ImportHandlers) writeEvent(w io.Writer, event streaming.SSEEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", "type", event.Type, "error", err)
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		h.logger.Debug("client went away", "error", err)
		return false
	}
	return true
}
