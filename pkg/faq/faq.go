// Package faq administers curated answers and the question variants that
// make them findable.
package faq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/internal/types"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/store"
)

// FAQInput creates one FAQ. Questions are extra phrasings; the canonical
// question is always a variant too.
type FAQInput struct {
	CanonicalQuestion string   `json:"canonical_question" yaml:"canonical_question"`
	Answer            string   `json:"answer" yaml:"answer"`
	Questions         []string `json:"questions,omitempty" yaml:"questions,omitempty"`
}

// FAQUpdate changes an FAQ. Empty strings keep the current value. A nil
// Questions keeps the current variants; a non-nil one replaces all of them.
type FAQUpdate struct {
	CanonicalQuestion string    `json:"canonical_question,omitempty"`
	Answer            string    `json:"answer,omitempty"`
	Questions         *[]string `json:"questions,omitempty"`
}

type BulkResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type Service struct {
	store    store.FAQStore
	embedder types.Embedder
	logger   zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(s store.FAQStore, embedder types.Embedder, opts ...Option) *Service {
	svc := &Service{store: s, embedder: embedder, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) List(ctx context.Context) ([]models.FAQAnswer, error) {
	return s.store.ListFAQs(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.FAQAnswer, error) {
	return s.store.GetFAQ(ctx, id)
}

func (s *Service) Create(ctx context.Context, in FAQInput) (*models.FAQAnswer, error) {
	canonical := strings.TrimSpace(in.CanonicalQuestion)
	answer := strings.TrimSpace(in.Answer)
	if canonical == "" || answer == "" {
		return nil, fmt.Errorf("canonical question and answer: %w", apperr.ErrEmptyInput)
	}

	variants, err := s.embedVariants(ctx, questionSet(canonical, in.Questions))
	if err != nil {
		return nil, err
	}

	faq, err := s.store.CreateFAQ(ctx, models.FAQAnswer{CanonicalQuestion: canonical, Answer: answer}, variants)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("faq_id", faq.ID).Int("variants", len(variants)).Msg("faq created")
	return faq, nil
}

func (s *Service) Update(ctx context.Context, id int64, in FAQUpdate) (*models.FAQAnswer, error) {
	current, err := s.store.GetFAQ(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if v := strings.TrimSpace(in.CanonicalQuestion); v != "" {
		next.CanonicalQuestion = v
	}
	if v := strings.TrimSpace(in.Answer); v != "" {
		next.Answer = v
	}

	var variants []models.FAQQuestionVariant
	replace := in.Questions != nil
	if replace {
		variants, err = s.embedVariants(ctx, questionSet(next.CanonicalQuestion, *in.Questions))
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateFAQ(ctx, next, variants, replace)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("faq_id", id).Bool("variants_replaced", replace).Msg("faq updated")
	return updated, nil
}

func (s *Service) AddQuestion(ctx context.Context, id int64, question string) (*models.FAQQuestionVariant, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question: %w", apperr.ErrEmptyInput)
	}
	if _, err := s.store.GetFAQ(ctx, id); err != nil {
		return nil, err
	}

	variants, err := s.embedVariants(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	return s.store.AddFAQQuestion(ctx, id, variants[0])
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteFAQ(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("faq_id", id).Msg("faq deleted")
	return nil
}

// BulkImport creates each item independently. A failed item is counted as
// skipped with a reason and never affects the others.
func (s *Service) BulkImport(ctx context.Context, items []FAQInput, progress func(done int)) BulkResult {
	res := BulkResult{Errors: []string{}}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			res.Skipped += len(items) - i
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: %v", i, err))
			break
		}

		_, err := s.Create(ctx, item)
		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, apperr.ErrEmptyInput):
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: missing canonical question or answer", i))
		case errors.Is(err, apperr.ErrDuplicateFAQ):
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: FAQ already exists", i))
		default:
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: %v", i, err))
		}
		if progress != nil {
			progress(i + 1)
		}
	}

	s.logger.Info().
		Int("inserted", res.Inserted).
		Int("skipped", res.Skipped).
		Msg("faq bulk import")
	return res
}

func (s *Service) embedVariants(ctx context.Context, questions []string) ([]models.FAQQuestionVariant, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, questions)
	if err != nil {
		return nil, fmt.Errorf("embed faq questions: %w", err)
	}
	out := make([]models.FAQQuestionVariant, len(questions))
	for i, q := range questions {
		out[i] = models.FAQQuestionVariant{QuestionText: q, Embedding: vectors[i]}
	}
	return out, nil
}

// questionSet is canonical followed by the distinct, trimmed, non-empty
// extras in input order.
func questionSet(canonical string, extras []string) []string {
	seen := map[string]bool{canonical: true}
	out := []string{canonical}
	for _, q := range extras {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}
