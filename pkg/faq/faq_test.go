package faq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/faq"
	"github.com/xhad/campusconnect/pkg/llm/llmtest"
	"github.com/xhad/campusconnect/pkg/store"
)

func newService() (*faq.Service, *store.Memory, *llmtest.Embedder) {
	st := store.NewMemory()
	emb := llmtest.NewEmbedder(3)
	return faq.NewService(st, emb), st, emb
}

func questionTexts(f *models.FAQAnswer) []string {
	out := make([]string, 0, len(f.Questions))
	for _, q := range f.Questions {
		out = append(out, q.QuestionText)
	}
	return out
}

func TestCreateBuildsVariantSet(t *testing.T) {
	svc, st, _ := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, faq.FAQInput{
		CanonicalQuestion: "  What are the hostel fees? ",
		Answer:            "₹60,000 per year.",
		Questions:         []string{"hostel fees kitna hai", "  ", "What are the hostel fees?", "hostel fees kitna hai"},
	})
	require.NoError(t, err)
	assert.Equal(t, "What are the hostel fees?", created.CanonicalQuestion)
	assert.ElementsMatch(t, []string{"What are the hostel fees?", "hostel fees kitna hai"}, questionTexts(created))

	hits, err := st.SearchFAQ(ctx, llmtest.HashVector("hostel fees kitna hai", 3), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "hostel fees kitna hai", hits[0].MatchedQuestion)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestCreateErrors(t *testing.T) {
	svc, _, emb := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, faq.FAQInput{CanonicalQuestion: "q", Answer: " "})
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)
	assert.Empty(t, emb.Calls())

	_, err = svc.Create(ctx, faq.FAQInput{CanonicalQuestion: "q", Answer: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, faq.FAQInput{CanonicalQuestion: "q", Answer: "b"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateFAQ)

	emb.FailAll(errors.New("down"))
	_, err = svc.Create(ctx, faq.FAQInput{CanonicalQuestion: "other", Answer: "a"})
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestUpdate(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, faq.FAQInput{
		CanonicalQuestion: "When is the library open?",
		Answer:            "9 to 5.",
		Questions:         []string{"library timings"},
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, faq.FAQUpdate{Answer: "9 to 9."})
	require.NoError(t, err)
	assert.Equal(t, "9 to 9.", updated.Answer)
	assert.Equal(t, "When is the library open?", updated.CanonicalQuestion)
	assert.ElementsMatch(t, []string{"When is the library open?", "library timings"}, questionTexts(updated))

	replacement := []string{"library hours", ""}
	updated, err = svc.Update(ctx, created.ID, faq.FAQUpdate{
		CanonicalQuestion: "What are the library hours?",
		Questions:         &replacement,
	})
	require.NoError(t, err)
	assert.Equal(t, "What are the library hours?", updated.CanonicalQuestion)
	assert.ElementsMatch(t, []string{"What are the library hours?", "library hours"}, questionTexts(updated))

	_, err = svc.Update(ctx, 404, faq.FAQUpdate{Answer: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddQuestion(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, faq.FAQInput{CanonicalQuestion: "Where is the canteen?", Answer: "Block A."})
	require.NoError(t, err)

	v, err := svc.AddQuestion(ctx, created.ID, " canteen kahan hai ")
	require.NoError(t, err)
	assert.Equal(t, "canteen kahan hai", v.QuestionText)
	assert.Equal(t, created.ID, v.FAQID)

	_, err = svc.AddQuestion(ctx, created.ID, "canteen kahan hai")
	assert.ErrorIs(t, err, apperr.ErrDuplicateQuestion)

	_, err = svc.AddQuestion(ctx, created.ID, "")
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)

	_, err = svc.AddQuestion(ctx, 99, "anything")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteRemovesVariants(t *testing.T) {
	svc, st, _ := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, faq.FAQInput{CanonicalQuestion: "q", Answer: "a", Questions: []string{"q2"}})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	hits, err := st.SearchFAQ(ctx, llmtest.HashVector("q2", 3), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.ErrorIs(t, svc.Delete(ctx, created.ID), apperr.ErrNotFound)
}

func TestBulkImport(t *testing.T) {
	svc, _, emb := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, faq.FAQInput{CanonicalQuestion: "existing", Answer: "a"})
	require.NoError(t, err)
	emb.FailOn("broken", errors.New("bad input"))

	var seen []int
	res := svc.BulkImport(ctx, []faq.FAQInput{
		{CanonicalQuestion: "new one", Answer: "a"},
		{CanonicalQuestion: "", Answer: "a"},
		{CanonicalQuestion: "existing", Answer: "b"},
		{CanonicalQuestion: "broken", Answer: "c"},
		{CanonicalQuestion: "new two", Answer: "d", Questions: []string{"alt"}},
	}, func(done int) { seen = append(seen, done) })

	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, "Item 1: missing canonical question or answer", res.Errors[0])
	assert.Equal(t, "Item 2: FAQ already exists", res.Errors[1])
	assert.Contains(t, res.Errors[2], "Item 3:")
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
