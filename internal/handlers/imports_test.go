package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/importer"
	"github.com/blaug210/budget-app/internal/middleware"
	"github.com/blaug210/budget-app/internal/pipeline"
	"github.com/blaug210/budget-app/internal/registry"
	"github.com/blaug210/budget-app/internal/store"
	"github.com/blaug210/budget-app/internal/streaming"
)

const januaryCSV = `Date,Description,Amount,Category
2024-01-01,Opening deposit,100.00,Income
2024-01-02,Groceries,-25.50,Food
2024-01-03,Rent share,-74.50,Housing
`

type importFixture struct {
	store    *store.Store
	budget   *domain.Budget
	handlers *ImportHandlers
}

func newImportFixture(t *testing.T, opts ...ImportOption) *importFixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "budget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	group := &domain.BudgetGroup{Name: "Household"}
	require.NoError(t, s.CreateGroup(ctx, group))
	budget := &domain.Budget{GroupID: group.ID, Name: "2024"}
	require.NoError(t, s.CreateBudget(ctx, budget))

	p := pipeline.New(registry.MustNew(), importer.NewEngine(s), s)
	h := NewImportHandlers(p, s, streaming.NewStreamHub(), opts...)
	t.Cleanup(h.Close)

	return &importFixture{store: s, budget: budget, handlers: h}
}

// uploadRequest builds a multipart POST carrying content as the "file" part
func uploadRequest(t *testing.T, budgetID, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/budgets/"+budgetID+"/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetPathValue("id", budgetID)
	return req
}

func sessionRequest(method, id string) *http.Request {
	req := httptest.NewRequest(method, "/api/sessions/"+id, nil)
	req.SetPathValue("id", id)
	return req
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func startImport(t *testing.T, h *ImportHandlers, req *http.Request) string {
	t.Helper()
	w := httptest.NewRecorder()
	h.StartImport(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode[map[string]string](t, w.Body)
	require.NotEmpty(t, resp["sessionId"])
	assert.Equal(t, "/api/sessions/"+resp["sessionId"], w.Header().Get("Location"))
	return resp["sessionId"]
}

func getSession(t *testing.T, h *ImportHandlers, id string) Session {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetSession(w, sessionRequest(http.MethodGet, id))
	require.Equal(t, http.StatusOK, w.Code)
	return decode[Session](t, w.Body)
}

func TestPreview(t *testing.T) {
	f := newImportFixture(t)
	w := httptest.NewRecorder()

	f.handlers.Preview(w, uploadRequest(t, f.budget.ID, "jan.csv", januaryCSV, map[string]string{"limit": "2"}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[previewResponse](t, w.Body)
	assert.Equal(t, "jan.csv", resp.FileName)
	assert.Equal(t, domain.FileTypeCSV, resp.FileType)
	assert.Equal(t, 3, resp.Preview.TotalCount)
	assert.Equal(t, 2, resp.Preview.PreviewCount)
	assert.Equal(t, 3, resp.Preview.WillImport)

	items, err := f.store.ListItems(context.Background(), f.budget.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPreview_Rejections(t *testing.T) {
	f := newImportFixture(t)

	tests := []struct {
		name     string
		budgetID string
		file     string
		content  string
		fields   map[string]string
		wantCode int
		wantText string
	}{
		{"unknown budget", "missing", "jan.csv", januaryCSV, nil, http.StatusNotFound, "not found"},
		{"no file", f.budget.ID, "", "", nil, http.StatusBadRequest, "No file uploaded"},
		{"bad file type", f.budget.ID, "jan.csv", januaryCSV, map[string]string{"file_type": "pdf"}, http.StatusBadRequest, "invalid file_type"},
		{"bad limit", f.budget.ID, "jan.csv", januaryCSV, map[string]string{"limit": "-1"}, http.StatusBadRequest, "invalid limit"},
		{"unsupported", f.budget.ID, "notes.txt", "hello world", nil, http.StatusUnsupportedMediaType, "unsupported file format"},
		{"parse errors", f.budget.ID, "bad.csv", "Date,Description,Amount,Category\n,Coffee,-3.00,Food\n", nil, http.StatusUnprocessableEntity, "Row 2: Date is required"},
		{"no records", f.budget.ID, "empty.csv", "Date,Description,Amount,Category\n", nil, http.StatusUnprocessableEntity, "no valid transactions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			f.handlers.Preview(w, uploadRequest(t, tt.budgetID, tt.file, tt.content, tt.fields))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantText)
		})
	}
}

func TestPreview_UploadTooLarge(t *testing.T) {
	f := newImportFixture(t, WithMaxUpload(64))
	w := httptest.NewRecorder()

	f.handlers.Preview(w, uploadRequest(t, f.budget.ID, "big.csv", strings.Repeat(januaryCSV, 50), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestStartImport(t *testing.T) {
	f := newImportFixture(t)

	id := startImport(t, f.handlers, uploadRequest(t, f.budget.ID, "jan.csv", januaryCSV, nil))
	f.handlers.Wait()

	sess := getSession(t, f.handlers, id)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, "jan.csv", sess.FileName)
	assert.Equal(t, 3, sess.Processed)
	assert.Equal(t, 3, sess.Total)
	require.NotNil(t, sess.Result)
	assert.True(t, sess.Result.Success)
	assert.Equal(t, 3, sess.Result.Stats.Imported)
	assert.NotNil(t, sess.CompletedAt)

	items, err := f.store.ListItems(context.Background(), f.budget.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "0.00", items[2].RunningBalance.StringFixed(2))
}

func TestStartImport_ParseErrorsFailSession(t *testing.T) {
	f := newImportFixture(t)

	id := startImport(t, f.handlers, uploadRequest(t, f.budget.ID, "bad.csv", "Date,Description,Amount,Category\n,Coffee,-3.00,Food\n", nil))
	f.handlers.Wait()

	sess := getSession(t, f.handlers, id)
	assert.Equal(t, StatusFailed, sess.Status)
	assert.Equal(t, []string{"Row 2: Date is required"}, sess.Details)
	assert.Nil(t, sess.Result)

	trackers, err := f.store.ListImportTrackers(context.Background(), f.budget.ID)
	require.NoError(t, err)
	assert.Empty(t, trackers)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newImportFixture(t)
	w := httptest.NewRecorder()
	f.handlers.GetSession(w, sessionRequest(http.MethodGet, "nope"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSession_OwnerOnly(t *testing.T) {
	f := newImportFixture(t)

	req := uploadRequest(t, f.budget.ID, "jan.csv", januaryCSV, nil)
	req = req.WithContext(middleware.WithAuth(req.Context(), middleware.AuthInfo{UserID: "owner"}))
	id := startImport(t, f.handlers, req)
	f.handlers.Wait()

	other := sessionRequest(http.MethodGet, id)
	other = other.WithContext(middleware.WithAuth(other.Context(), middleware.AuthInfo{UserID: "intruder"}))
	w := httptest.NewRecorder()
	f.handlers.GetSession(w, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	owner := sessionRequest(http.MethodGet, id)
	owner = owner.WithContext(middleware.WithAuth(owner.Context(), middleware.AuthInfo{UserID: "owner"}))
	w = httptest.NewRecorder()
	f.handlers.GetSession(w, owner)
	assert.Equal(t, http.StatusOK, w.Code)
}

// gatedImporter blocks each import until released or cancelled
type gatedImporter struct {
	release chan struct{}
	started chan struct{}
}

func newGatedImporter() *gatedImporter {
	return &gatedImporter{release: make(chan struct{}), started: make(chan struct{}, 1)}
}

func (g *gatedImporter) PreviewReader(context.Context, string, string, io.Reader, domain.FileType, int) (*pipeline.ParseResult, *importer.PreviewResult, error) {
	return nil, nil, fmt.Errorf("not implemented")
}

func (g *gatedImporter) ImportReader(ctx context.Context, budgetID, name string, r io.Reader, ft domain.FileType, progress importer.ProgressFunc) (*pipeline.ParseResult, *importer.Result, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("import of %s aborted: %w", name, ctx.Err())
	}
	progress(1, 2)
	progress(2, 2)
	return &pipeline.ParseResult{FileName: name}, &importer.Result{
		Success:   true,
		Stats:     importer.Stats{Total: 2, Imported: 2},
		TrackerID: "tracker-1",
	}, nil
}

type staticBudgets struct{}

func (staticBudgets) GetBudget(_ context.Context, id string) (*domain.Budget, error) {
	return &domain.Budget{ID: id}, nil
}

func TestCancelImport(t *testing.T) {
	imp := newGatedImporter()
	h := NewImportHandlers(imp, staticBudgets{}, streaming.NewStreamHub())
	t.Cleanup(h.Close)

	id := startImport(t, h, uploadRequest(t, "b-1", "jan.csv", januaryCSV, nil))
	<-imp.started

	w := httptest.NewRecorder()
	h.CancelImport(w, sessionRequest(http.MethodPost, id))
	assert.Equal(t, http.StatusAccepted, w.Code)
	h.Wait()

	sess := getSession(t, h, id)
	assert.Equal(t, StatusCancelled, sess.Status)
	assert.Contains(t, sess.Error, "context canceled")

	w = httptest.NewRecorder()
	h.CancelImport(w, sessionRequest(http.MethodPost, id))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "session already cancelled")
}

// sseEvent is one parsed "event:/data:" block
type sseEvent struct {
	Type string
	Data json.RawMessage
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && ev.Type != "":
			return ev
		case strings.HasPrefix(line, "event: "):
			ev.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var envelope struct {
				Data json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &envelope))
			ev.Data = envelope.Data
		}
	}
}

func eventServer(t *testing.T, h *ImportHandlers) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions/{id}/events", h.StreamEvents)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openStream(t *testing.T, srv *httptest.Server, id string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestStreamEvents_Live(t *testing.T) {
	imp := newGatedImporter()
	h := NewImportHandlers(imp, staticBudgets{}, streaming.NewStreamHub(), WithHeartbeat(time.Hour))
	t.Cleanup(h.Close)
	srv := eventServer(t, h)

	id := startImport(t, h, uploadRequest(t, "b-1", "jan.csv", januaryCSV, nil))
	<-imp.started

	stream := openStream(t, srv, id)
	first := readEvent(t, stream)
	require.Equal(t, "session", first.Type)
	assert.Contains(t, string(first.Data), `"status":"running"`)

	close(imp.release)

	var progress []streaming.ProgressEvent
	for {
		ev := readEvent(t, stream)
		if ev.Type == "progress" {
			var p streaming.ProgressEvent
			require.NoError(t, json.Unmarshal(ev.Data, &p))
			progress = append(progress, p)
			continue
		}
		require.Equal(t, "complete", ev.Type)
		var c streaming.CompleteEvent
		require.NoError(t, json.Unmarshal(ev.Data, &c))
		assert.Equal(t, id, c.SessionID)
		assert.Equal(t, "tracker-1", c.TrackerID)
		assert.Equal(t, 2, c.Imported)
		assert.True(t, c.Success)
		break
	}

	require.Len(t, progress, 2)
	assert.Equal(t, 100.0, progress[1].Percentage)
}

func TestStreamEvents_FinishedSession(t *testing.T) {
	f := newImportFixture(t)
	srv := eventServer(t, f.handlers)

	id := startImport(t, f.handlers, uploadRequest(t, f.budget.ID, "jan.csv", januaryCSV, nil))
	f.handlers.Wait()

	stream := openStream(t, srv, id)
	first := readEvent(t, stream)
	assert.Equal(t, "session", first.Type)
	assert.Contains(t, string(first.Data), `"status":"completed"`)

	last := readEvent(t, stream)
	assert.Equal(t, "complete", last.Type)
	assert.Contains(t, string(last.Data), `"imported":3`)
}

func TestStreamEvents_UnknownSession(t *testing.T) {
	f := newImportFixture(t)
	srv := eventServer(t, f.handlers)

	resp, err := http.Get(srv.URL + "/api/sessions/nope/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionStore_Prune(t *testing.T) {
	s := NewSessionStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Add(Session{ID: "old", Status: StatusRunning}, func() {})
	s.Finish("old", StatusCompleted, nil)

	now = now.Add(SessionRetention + time.Minute)
	s.Add(Session{ID: "new", Status: StatusRunning}, func() {})

	_, ok := s.Get("old")
	assert.False(t, ok, "finished session past retention should be pruned")
	_, ok = s.Get("new")
	assert.True(t, ok)
	assert.False(t, s.Cancel("old"))
	assert.True(t, s.Cancel("new"))
}
