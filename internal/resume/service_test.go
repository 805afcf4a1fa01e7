package resume

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	summary string
	err     error
	prompts []string
}

func (f *fakeSummarizer) AnalyzePrompt(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.summary, f.err
}

func newTestService(t *testing.T, summarizer Summarizer) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	seq := 0
	engine := NewEngine(store, DefaultRegistry(), WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("gen-%d", seq)
	}))
	documents, err := NewDocumentValidator()
	require.NoError(t, err)
	return NewService(store, engine, documents, summarizer), store
}

const validDocument = `{
  "title": "Backend Engineer",
  "basics": {"name": "Ada Lovelace", "email": "ada@example.com"},
  "sections": [
    {"id": "work", "type": "work", "title": "Experience",
     "content": [{"company": "Acme", "position": "Eng", "startDate": "2020"}]},
    {"id": "skills", "type": "skills", "title": "Skills", "content": []}
  ]
}`

func TestService_CreateDerivesSectionOrder(t *testing.T) {
	svc, _ := newTestService(t, nil)

	doc, err := svc.Create(context.Background(), ownerA, []byte(validDocument))
	require.NoError(t, err)
	assert.NotZero(t, doc.ID)
	assert.Equal(t, ownerA, doc.OwnerID)
	assert.Equal(t, "Backend Engineer", doc.Title)
	assert.Equal(t, []string{"work", "skills"}, doc.Content.SectionOrder)
	require.Len(t, doc.Content.Sections[0].Content, 1)
	assert.Equal(t, "gen-1", doc.Content.Sections[0].Content[0].Base().ID)
	assert.True(t, doc.Content.Sections[0].Enabled)
}

func TestService_CreateRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing title", `{"basics":{"name":"Ada"}}`, "title"},
		{"missing name", `{"title":"CV","basics":{}}`, "basics.name"},
		{"bad email", `{"title":"CV","basics":{"name":"Ada","email":"not-an-email"}}`, "basics.email"},
		{"invalid item", `{"title":"CV","basics":{"name":"Ada"},"sections":[{"id":"w","type":"work","title":"W","content":[{"company":"Acme"}]}]}`, "position"},
		{"unknown section type", `{"title":"CV","basics":{"name":"Ada"},"sections":[{"id":"w","type":"hobbies","title":"W"}]}`, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService(t, nil)
			_, err := svc.Create(context.Background(), ownerA, []byte(tc.raw))
			requireValidationError(t, err, tc.field)
		})
	}
}

func TestService_CreateChecksSectionOrder(t *testing.T) {
	svc, _ := newTestService(t, nil)
	raw := `{"title":"CV","basics":{"name":"Ada"},
	  "sections":[{"id":"a","type":"interests","title":"A"},{"id":"b","type":"awards","title":"B"}],
	  "sectionOrder":["a"]}`

	_, err := svc.Create(context.Background(), ownerA, []byte(raw))
	requireKind(t, err, ErrInvalidOrder)

	raw = `{"title":"CV","basics":{"name":"Ada"},
	  "sections":[{"id":"a","type":"interests","title":"A"},{"id":"a","type":"awards","title":"B"}]}`
	_, err = svc.Create(context.Background(), ownerA, []byte(raw))
	requireKind(t, err, ErrDuplicateID)
}

func TestService_SectionsFollowOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	raw := `{"title":"CV","basics":{"name":"Ada"},
	  "sections":[{"id":"a","type":"interests","title":"A"},{"id":"b","type":"awards","title":"B"}],
	  "sectionOrder":["b","a"]}`
	doc, err := svc.Create(ctx, ownerA, []byte(raw))
	require.NoError(t, err)

	view, err := svc.Sections(ctx, doc.ID, ownerA)
	require.NoError(t, err)
	require.Len(t, view.Sections, 2)
	assert.Equal(t, "b", view.Sections[0].ID)
	assert.Equal(t, "a", view.Sections[1].ID)
	assert.Equal(t, []string{"b", "a"}, view.SectionOrder)

	_, err = svc.Sections(ctx, doc.ID, ownerB)
	requireKind(t, err, ErrNotAuthorized)
}

func TestService_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil)
	doc, err := svc.Create(ctx, ownerA, []byte(validDocument))
	require.NoError(t, err)

	updated, err := svc.Replace(ctx, doc.ID, ownerA, []byte(`{"title":"Renamed","basics":{"name":"Ada"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Empty(t, updated.Content.Sections)
	assert.Equal(t, int64(2), updated.Revision)

	err = svc.Delete(ctx, doc.ID, ownerB)
	requireKind(t, err, ErrNotAuthorized)

	require.NoError(t, svc.Delete(ctx, doc.ID, ownerA))
	exists, err := store.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Get(ctx, doc.ID, ownerA)
	requireKind(t, err, ErrNotFound)
}

func TestService_UpdateBasics(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	doc, err := svc.Create(ctx, ownerA, []byte(validDocument))
	require.NoError(t, err)

	_, err = svc.UpdateBasics(ctx, doc.ID, ownerA, Basics{Email: "x@example.com"})
	requireValidationError(t, err, "basics.name")

	basics, err := svc.UpdateBasics(ctx, doc.ID, ownerA, Basics{Name: "Grace", Label: "Admiral"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", basics.Name)

	got, err := svc.Basics(ctx, doc.ID, ownerA)
	require.NoError(t, err)
	assert.Equal(t, "Admiral", got.Label)
}

func TestService_GenerateFromPrompt(t *testing.T) {
	ctx := context.Background()
	ai := &fakeSummarizer{summary: "Seasoned Go developer."}
	svc, _ := newTestService(t, ai)

	doc, err := svc.GenerateFromPrompt(ctx, ownerA, "Go developer with 5 years")
	require.NoError(t, err)
	assert.Equal(t, GeneratedResumeTitle, doc.Title)
	assert.Equal(t, "Seasoned Go developer.", doc.Content.Basics.Summary)
	assert.Empty(t, doc.Content.Sections)
	assert.Equal(t, []string{"Go developer with 5 years"}, ai.prompts)

	_, err = svc.GenerateFromPrompt(ctx, ownerA, "  ")
	requireKind(t, err, ErrMissingField)
	assert.Len(t, ai.prompts, 1)
}

func TestService_GenerateFromPromptPropagatesUpstreamError(t *testing.T) {
	upstream := errors.New("upstream timeout")
	svc, store := newTestService(t, &fakeSummarizer{err: upstream})

	_, err := svc.GenerateFromPrompt(context.Background(), ownerA, "anything")
	assert.ErrorIs(t, err, upstream)

	list, err := store.ListOwned(context.Background(), ownerA)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_GenerateWithoutSummarizer(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.GenerateFromPrompt(context.Background(), ownerA, "anything")
	assert.ErrorIs(t, err, ErrSummarizerUnavailable)
}

func TestService_RegenerateSummaryKeepsSections(t *testing.T) {
	ctx := context.Background()
	ai := &fakeSummarizer{summary: "New summary"}
	svc, _ := newTestService(t, ai)
	doc, err := svc.Create(ctx, ownerA, []byte(validDocument))
	require.NoError(t, err)

	updated, err := svc.RegenerateSummary(ctx, doc.ID, ownerA, "rewrite it")
	require.NoError(t, err)
	assert.Equal(t, "New summary", updated.Content.Basics.Summary)
	assert.Equal(t, "Ada Lovelace", updated.Content.Basics.Name)
	assert.Len(t, updated.Content.Sections, 2)

	_, err = svc.RegenerateSummary(ctx, doc.ID, ownerB, "rewrite it")
	requireKind(t, err, ErrNotAuthorized)
	assert.Len(t, ai.prompts, 1)
}
