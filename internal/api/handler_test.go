package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anumulaashok/resume-builder-backend/internal/ai"
	"github.com/Anumulaashok/resume-builder-backend/internal/api/middleware"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
	"github.com/Anumulaashok/resume-builder-backend/internal/tasks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	alice uint = 1
	bob   uint = 2
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(f.tasks)), Type: task.Type()}, nil
}

type fakeExports struct {
	states map[uint]database.ExportState
}

func (f *fakeExports) GetExportState(_ context.Context, resumeID, _ uint) (database.ExportState, error) {
	return f.states[resumeID], nil
}

func (f *fakeExports) SetExportState(_ context.Context, resumeID uint, state database.ExportState) error {
	if f.states == nil {
		f.states = map[uint]database.ExportState{}
	}
	f.states[resumeID] = state
	return nil
}

type fakeStorage struct {
	deletedPrefixes []string
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://storage.example/" + objectKey + "?sig=1", nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.deletedPrefixes = append(s.deletedPrefixes, prefix)
	return nil
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s stubSummarizer) AnalyzePrompt(context.Context, string) (string, error) {
	return s.summary, s.err
}

type apiFixture struct {
	router   *gin.Engine
	store    *resume.MemoryStore
	enqueuer *fakeEnqueuer
	exports  *fakeExports
	storage  *fakeStorage
}

// testUser 用请求头模拟已登录用户，代替 JWT 中间件。
func testUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-Test-User"); raw != "" {
			id, _ := strconv.ParseUint(raw, 10, 64)
			c.Set(middleware.UserIDKey, uint(id))
		}
		c.Next()
	}
}

func newAPIFixture(t *testing.T, summarizer resume.Summarizer) *apiFixture {
	t.Helper()
	store := resume.NewMemoryStore()
	seq := 0
	engine := resume.NewEngine(store, resume.DefaultRegistry(), resume.WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}))
	documents, err := resume.NewDocumentValidator()
	require.NoError(t, err)
	service := resume.NewService(store, engine, documents, summarizer)

	f := &apiFixture{
		store:    store,
		enqueuer: &fakeEnqueuer{},
		exports:  &fakeExports{},
		storage:  &fakeStorage{},
	}
	router := gin.New()
	protected := router.Group("/v1", testUser())
	registerResumeRoutes(protected,
		NewResumeHandler(service, f.enqueuer, f.exports, f.storage, time.Minute),
		NewSectionHandler(engine),
		NewTemplateHandler(nil),
	)
	f.router = router
	return f
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Field   string          `json:"field"`
}

func (f *apiFixture) do(t *testing.T, user uint, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(user), 10))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body=%s", w.Body.String())
	}
	return w.Code, env
}

func (f *apiFixture) createResume(t *testing.T, user uint) uint {
	t.Helper()
	status, env := f.do(t, user, http.MethodPost, "/v1/resumes", `{"title":"CV","basics":{"name":"Ada","email":"ada@example.com"},"sections":[]}`)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var doc resume.Resume
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	return doc.ID
}

func TestSectionRoutes_Lifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)
	base := fmt.Sprintf("/v1/resumes/%d", id)

	status, env := f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"id": "work", "type": "work", "title": "Experience"})
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"type": "skills", "title": "Skills"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var skills resume.Section
	require.NoError(t, json.Unmarshal(env.Data, &skills))
	assert.NotEmpty(t, skills.ID)

	status, env = f.do(t, alice, http.MethodPost, base+"/sections/work/items",
		map[string]any{"company": "Acme", "position": "Engineer", "startDate": "2020"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var item map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &item))
	itemID := item["id"].(string)
	assert.Equal(t, true, item["enabled"])

	status, env = f.do(t, alice, http.MethodPatch, base+"/sections/work/items/"+itemID+"/status", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, false, item["enabled"])

	status, env = f.do(t, alice, http.MethodPut, base+"/sections/order", map[string]any{"sectionOrder": []string{skills.ID, "work"}})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = f.do(t, alice, http.MethodGet, base+"/sections", nil)
	require.Equal(t, http.StatusOK, status)
	var view resume.SectionsView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, []string{skills.ID, "work"}, view.SectionOrder)
	require.Len(t, view.Sections, 2)
	assert.Equal(t, skills.ID, view.Sections[0].ID)

	status, _ = f.do(t, alice, http.MethodDelete, base+"/sections/work/items/"+itemID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, env = f.do(t, alice, http.MethodDelete, base+"/sections/work/items/"+itemID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)

	status, _ = f.do(t, alice, http.MethodDelete, base+"/sections/work", nil)
	assert.Equal(t, http.StatusOK, status)

	doc, err := f.store.FindOwned(context.Background(), id, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{skills.ID}, doc.Content.SectionOrder)
}

func TestSectionRoutes_AlternateOrderPath(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)
	base := fmt.Sprintf("/v1/resumes/%d", id)

	f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"id": "a", "type": "work", "title": "A"})
	f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"id": "b", "type": "skills", "title": "B"})

	status, env := f.do(t, alice, http.MethodPut, base+"/order", map[string]any{"sectionOrder": []string{"b", "a"}})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.JSONEq(t, `{"sectionOrder":["b","a"]}`, string(env.Data))

	status, env = f.do(t, alice, http.MethodPut, base+"/order", map[string]any{"sectionOrder": []string{"a"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, _ = f.do(t, alice, http.MethodPut, base+"/order", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSectionRoutes_OrderIsNotASectionID(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)
	base := fmt.Sprintf("/v1/resumes/%d", id)

	status, env := f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"id": "order", "type": "work", "title": "A"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
	assert.Equal(t, "id", env.Field)

	status, env = f.do(t, alice, http.MethodGet, base+"/sections", nil)
	require.Equal(t, http.StatusOK, status)
	var view resume.SectionsView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Empty(t, view.Sections)
}

func TestSectionRoutes_ValidationErrorCarriesField(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)
	base := fmt.Sprintf("/v1/resumes/%d", id)
	f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"id": "work", "type": "work", "title": "Experience"})

	status, env := f.do(t, alice, http.MethodPost, base+"/sections/work/items", map[string]any{"position": "Engineer", "startDate": "2020"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
	assert.Equal(t, "company", env.Field)

	status, env = f.do(t, alice, http.MethodPost, base+"/sections/work/items", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, env = f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"id": "work", "type": "work", "title": "Again"})
	assert.Equal(t, http.StatusBadRequest, status, "duplicate section id")
	assert.False(t, env.Success)

	status, _ = f.do(t, alice, http.MethodPatch, base+"/sections/work/items/x/status", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status, "enabled is required")
}

func TestSectionRoutes_Ownership(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)
	base := fmt.Sprintf("/v1/resumes/%d", id)
	f.do(t, alice, http.MethodPost, base+"/sections", map[string]any{"id": "work", "type": "work", "title": "Experience"})

	status, env := f.do(t, bob, http.MethodDelete, base+"/sections/work", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	status, _ = f.do(t, alice, http.MethodGet, "/v1/resumes/999/sections/work", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, alice, http.MethodGet, "/v1/resumes/abc/sections/work", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, 0, http.MethodGet, base+"/sections/work", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	doc, err := f.store.FindOwned(context.Background(), id, alice)
	require.NoError(t, err)
	assert.Len(t, doc.Content.Sections, 1, "foreign request must not modify the resume")
}

func TestSectionTypesRoute(t *testing.T) {
	f := newAPIFixture(t, nil)
	status, env := f.do(t, alice, http.MethodGet, "/v1/sections/types", nil)
	require.Equal(t, http.StatusOK, status)

	var types []resume.TypeConfig
	require.NoError(t, json.Unmarshal(env.Data, &types))
	assert.Len(t, types, 15)
}

func TestResumeRoutes_CRUDAndBasics(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)
	f.createResume(t, bob)
	base := fmt.Sprintf("/v1/resumes/%d", id)

	status, env := f.do(t, alice, http.MethodGet, "/v1/resumes", nil)
	require.Equal(t, http.StatusOK, status)
	var list []resume.Resume
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	status, env = f.do(t, alice, http.MethodPut, base+"/basics", map[string]any{"name": "Ada L.", "email": "ada@example.com"})
	require.Equal(t, http.StatusOK, status, env.Error)
	status, env = f.do(t, alice, http.MethodGet, base+"/basics", nil)
	require.Equal(t, http.StatusOK, status)
	var basics resume.Basics
	require.NoError(t, json.Unmarshal(env.Data, &basics))
	assert.Equal(t, "Ada L.", basics.Name)

	status, env = f.do(t, alice, http.MethodPut, base, `{"title":"","basics":{"name":"Ada"},"sections":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "title", env.Field)

	status, env = f.do(t, alice, http.MethodPut, base, `{"title":"New","basics":{"name":"Ada"},"sections":[{"id":"s","type":"skills","title":"Skills"}]}`)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, _ = f.do(t, bob, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, alice, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{fmt.Sprintf("exports/%d/%d/", alice, id)}, f.storage.deletedPrefixes)

	status, _ = f.do(t, alice, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestResumeRoutes_Generate(t *testing.T) {
	f := newAPIFixture(t, stubSummarizer{summary: "Seasoned Go engineer."})
	status, env := f.do(t, alice, http.MethodPost, "/v1/resumes/generate", map[string]any{"prompt": "go backend"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var doc resume.Resume
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, resume.GeneratedResumeTitle, doc.Title)
	assert.Equal(t, "Seasoned Go engineer.", doc.Content.Basics.Summary)

	status, env = f.do(t, alice, http.MethodPost, "/v1/resumes/generate", map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "prompt", env.Field)

	failing := newAPIFixture(t, stubSummarizer{err: fmt.Errorf("%w: status 500", ai.ErrUpstream)})
	status, env = failing.do(t, alice, http.MethodPost, "/v1/resumes/generate", map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.NotContains(t, env.Error, "status 500")

	disabled := newAPIFixture(t, nil)
	status, _ = disabled.do(t, alice, http.MethodPost, "/v1/resumes/generate", map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestResumeRoutes_SummaryEnqueuesTask(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)

	status, env := f.do(t, alice, http.MethodPost, fmt.Sprintf("/v1/resumes/%d/summary", id), map[string]any{"prompt": "rewrite"})
	require.Equal(t, http.StatusAccepted, status, env.Error)
	require.Len(t, f.enqueuer.tasks, 1)
	payload, err := tasks.DecodeSummary(f.enqueuer.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, id, payload.ResumeID)
	assert.Equal(t, alice, payload.UserID)
	assert.Equal(t, "rewrite", payload.Prompt)

	status, _ = f.do(t, bob, http.MethodPost, fmt.Sprintf("/v1/resumes/%d/summary", id), map[string]any{"prompt": "steal"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = f.do(t, alice, http.MethodPost, fmt.Sprintf("/v1/resumes/%d/summary", id), map[string]any{"prompt": " "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Len(t, f.enqueuer.tasks, 1)
}

func TestResumeRoutes_Export(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.createResume(t, alice)
	base := fmt.Sprintf("/v1/resumes/%d", id)

	status, env := f.do(t, alice, http.MethodGet, base+"/export/link", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)

	status, env = f.do(t, alice, http.MethodPost, base+"/export", nil)
	require.Equal(t, http.StatusAccepted, status, env.Error)
	assert.Equal(t, database.ExportStatusPending, f.exports.states[id].Status)
	require.Len(t, f.enqueuer.tasks, 1)
	assert.Equal(t, tasks.TypeResumeExport, f.enqueuer.tasks[0].Type())

	f.exports.states[id] = database.ExportState{Status: database.ExportStatusCompleted, ObjectKey: "exports/1/1/cv.pdf"}
	status, env = f.do(t, alice, http.MethodGet, base+"/export/link", nil)
	require.Equal(t, http.StatusOK, status)
	var link struct {
		URL       string `json:"url"`
		ExpiresIn int    `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &link))
	assert.Contains(t, link.URL, "exports/1/1/cv.pdf")
	assert.Equal(t, 60, link.ExpiresIn)

	status, _ = f.do(t, bob, http.MethodGet, base+"/export/link", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	f.enqueuer.err = errors.New("redis down")
	status, _ = f.do(t, alice, http.MethodPost, base+"/export", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, database.ExportStatusFailed, f.exports.states[id].Status)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{resume.NotFoundError(), http.StatusNotFound},
		{resume.ErrNotAuthorized, http.StatusUnauthorized},
		{resume.ErrValidation, http.StatusBadRequest},
		{resume.ErrDuplicateID, http.StatusBadRequest},
		{resume.ErrInvalidOrder, http.StatusBadRequest},
		{resume.ErrMissingField, http.StatusBadRequest},
		{resume.ConflictError(), http.StatusConflict},
		{fmt.Errorf("wrap: %w", ai.ErrUpstream), http.StatusBadGateway},
		{resume.ErrSummarizerUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, statusForError(tc.err), "error %v", tc.err)
	}
}

func TestWriteDomainError_HidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeDomainError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal error"}`, w.Body.String())
}
