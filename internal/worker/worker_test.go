package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"github.com/Anumulaashok/resume-builder-backend/internal/database"
	"github.com/Anumulaashok/resume-builder-backend/internal/errcode"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
	"github.com/Anumulaashok/resume-builder-backend/internal/tasks"
)

type recordingNotifier struct {
	messages []TaskNotifyMessage
	users    []uint
}

func (n *recordingNotifier) Notify(_ context.Context, userID uint, msg TaskNotifyMessage) error {
	n.users = append(n.users, userID)
	n.messages = append(n.messages, msg)
	return nil
}

type fakePrinter struct {
	html string
	err  error
}

func (p *fakePrinter) Print(_ context.Context, html string) ([]byte, error) {
	p.html = html
	if p.err != nil {
		return nil, p.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type fakeUploader struct {
	objects map[string][]byte
}

func (u *fakeUploader) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[objectName] = data
	return &minio.UploadInfo{Key: objectName, Size: int64(len(data))}, nil
}

type fakeStates struct {
	states map[uint]database.ExportState
}

func (s *fakeStates) SetExportState(_ context.Context, resumeID uint, state database.ExportState) error {
	if s.states == nil {
		s.states = map[uint]database.ExportState{}
	}
	s.states[resumeID] = state
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedResume(t *testing.T, store *resume.MemoryStore) *resume.Resume {
	t.Helper()
	ctx := context.Background()
	doc := &resume.Resume{
		OwnerID: 5,
		Title:   "CV",
		Content: resume.Content{Basics: resume.Basics{Name: "Ada <Lovelace>", Email: "ada@example.com", Summary: "Engineer"}},
	}
	if _, err := store.Save(ctx, doc); err != nil {
		t.Fatalf("seed resume: %v", err)
	}

	engine := resume.NewEngine(store, resume.DefaultRegistry())
	if _, err := engine.AddSection(ctx, doc.ID, 5, resume.SectionCandidate{ID: "work", Type: resume.TypeWork, Title: "Experience"}); err != nil {
		t.Fatalf("add section: %v", err)
	}
	if _, err := engine.AddSection(ctx, doc.ID, 5, resume.SectionCandidate{ID: "skills", Type: resume.TypeSkills, Title: "Skills"}); err != nil {
		t.Fatalf("add section: %v", err)
	}
	if _, err := engine.AddSectionItem(ctx, doc.ID, 5, "work", json.RawMessage(`{"company":"Acme","position":"Engineer","startDate":"2020","current":true,"description":"Built things"}`)); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := engine.AddSectionItem(ctx, doc.ID, 5, "work", json.RawMessage(`{"company":"Hidden Corp","position":"Intern","startDate":"2018","enabled":false}`)); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := engine.AddSectionItem(ctx, doc.ID, 5, "skills", json.RawMessage(`{"name":"Go","technologies":[]}`)); err == nil {
		t.Fatalf("expected skills to reject technologies")
	}
	if _, err := engine.AddSectionItem(ctx, doc.ID, 5, "skills", json.RawMessage(`{"name":"Go","subSkills":["generics","cgo"]}`)); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := engine.UpdateSectionOrder(ctx, doc.ID, 5, []string{"skills", "work"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	loaded, err := store.FindOwned(ctx, doc.ID, 5)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return loaded
}

func TestRenderResumeHTML(t *testing.T) {
	doc := seedResume(t, resume.NewMemoryStore())

	html, err := RenderResumeHTML(doc)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(html, "Ada &lt;Lovelace&gt;") {
		t.Fatalf("expected escaped name in output")
	}
	skills := strings.Index(html, "<h2>Skills</h2>")
	work := strings.Index(html, "<h2>Experience</h2>")
	if skills < 0 || work < 0 || skills > work {
		t.Fatalf("expected sections in display order, skills=%d work=%d", skills, work)
	}
	if !strings.Contains(html, "2020 – Present") {
		t.Fatalf("expected current role period")
	}
	if !strings.Contains(html, "generics, cgo") {
		t.Fatalf("expected sub skills listed")
	}
	if strings.Contains(html, "Hidden Corp") {
		t.Fatalf("disabled items must not be rendered")
	}
}

func TestRenderResumeHTML_CustomItemFields(t *testing.T) {
	custom := &resume.CustomItem{ItemBase: resume.ItemBase{ID: "c1", Enabled: true}, Fields: map[string]any{"name": "Side quest", "link": "https://x.dev", "year": float64(2021)}}
	doc := &resume.Resume{Content: resume.Content{
		Basics:       resume.Basics{Name: "Ada"},
		Sections:     []resume.Section{{ID: "c", Type: resume.TypeCustom, Title: "Extra", Enabled: true, IsCustom: true, Content: []resume.Item{custom}}},
		SectionOrder: []string{"c"},
	}}

	html, err := RenderResumeHTML(doc)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Side quest", "link: https://x.dev", "year: 2021"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
}

func TestExportTaskHandler_UploadsAndNotifies(t *testing.T) {
	store := resume.NewMemoryStore()
	doc := seedResume(t, store)
	printer := &fakePrinter{}
	uploader := &fakeUploader{}
	states := &fakeStates{}
	notifier := &recordingNotifier{}
	handler := NewExportTaskHandler(store, states, printer, uploader, notifier, discardLogger())

	task, err := tasks.NewExportTask(tasks.ExportPayload{ResumeID: doc.ID, UserID: 5, CorrelationID: "cid-1"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process task: %v", err)
	}

	state := states.states[doc.ID]
	if state.Status != database.ExportStatusCompleted {
		t.Fatalf("expected completed state, got %+v", state)
	}
	if !strings.HasPrefix(state.ObjectKey, ExportObjectPrefix(5, doc.ID)) || !strings.HasSuffix(state.ObjectKey, ".pdf") {
		t.Fatalf("unexpected object key %q", state.ObjectKey)
	}
	if string(uploader.objects[state.ObjectKey]) != "%PDF-1.7 fake" {
		t.Fatalf("expected uploaded pdf bytes")
	}
	if !strings.Contains(printer.html, "Experience") {
		t.Fatalf("expected rendered html to be printed")
	}
	if len(notifier.messages) != 1 || notifier.messages[0].Status != "completed" || notifier.users[0] != 5 {
		t.Fatalf("unexpected notifications: %+v", notifier.messages)
	}
}

func TestExportTaskHandler_MissingResumeIsSkipped(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewExportTaskHandler(resume.NewMemoryStore(), &fakeStates{}, &fakePrinter{}, &fakeUploader{}, notifier, discardLogger())

	task, _ := tasks.NewExportTask(tasks.ExportPayload{ResumeID: 99, UserID: 5})
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("expected missing resume to be skipped, got %v", err)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].ErrorCode != errcode.ResourceMissing {
		t.Fatalf("expected resource missing notification, got %+v", notifier.messages)
	}
}

func TestExportTaskHandler_PrinterFailureIsRetried(t *testing.T) {
	store := resume.NewMemoryStore()
	doc := seedResume(t, store)
	states := &fakeStates{}
	handler := NewExportTaskHandler(store, states, &fakePrinter{err: errors.New("chromium crashed")}, &fakeUploader{}, &recordingNotifier{}, discardLogger())

	task, _ := tasks.NewExportTask(tasks.ExportPayload{ResumeID: doc.ID, UserID: 5})
	err := handler.ProcessTask(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if _, ok := states.states[doc.ID]; ok {
		t.Fatalf("state must not change before the final attempt")
	}
}

func TestExportTaskHandler_BadPayloadSkipsRetry(t *testing.T) {
	handler := NewExportTaskHandler(resume.NewMemoryStore(), &fakeStates{}, &fakePrinter{}, &fakeUploader{}, &recordingNotifier{}, discardLogger())

	err := handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeResumeExport, []byte(`{}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry, got %v", err)
	}
}

type fakeRegenerator struct {
	err error
}

func (f *fakeRegenerator) RegenerateSummary(_ context.Context, resumeID, ownerID uint, _ string) (*resume.Resume, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &resume.Resume{ID: resumeID, OwnerID: ownerID}, nil
}

func TestSummaryTaskHandler(t *testing.T) {
	task, err := tasks.NewSummaryTask(tasks.SummaryPayload{ResumeID: 1, UserID: 2, Prompt: "go dev", CorrelationID: "cid"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}

	notifier := &recordingNotifier{}
	handler := NewSummaryTaskHandler(&fakeRegenerator{}, notifier, discardLogger())
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process task: %v", err)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].Kind != NotifyKindSummary || notifier.messages[0].Status != "completed" {
		t.Fatalf("unexpected notifications: %+v", notifier.messages)
	}

	notifier = &recordingNotifier{}
	handler = NewSummaryTaskHandler(&fakeRegenerator{err: resume.NotFoundError()}, notifier, discardLogger())
	if err := handler.ProcessTask(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for missing resume, got %v", err)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].Status != "error" {
		t.Fatalf("expected error notification, got %+v", notifier.messages)
	}

	notifier = &recordingNotifier{}
	handler = NewSummaryTaskHandler(&fakeRegenerator{err: errors.New("upstream down")}, notifier, discardLogger())
	if err := handler.ProcessTask(context.Background(), task); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("no notification before the final attempt, got %+v", notifier.messages)
	}

	notifier = &recordingNotifier{}
	handler = NewSummaryTaskHandler(&fakeRegenerator{err: resume.ErrSummarizerUnavailable}, notifier, discardLogger())
	if err := handler.ProcessTask(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry when ai is disabled, got %v", err)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].ErrorCode != errcode.AIDisabled {
		t.Fatalf("expected ai disabled notification, got %+v", notifier.messages)
	}
}
