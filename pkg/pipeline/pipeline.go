// Package pipeline answers a question from the FAQ index, from retrieved
// document chunks through the generation model, or by escalating it.
//
// Each tier runs at most once per question, in that order. Thresholds are
// upper bounds on vector distance; the FAQ threshold is the stricter one.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/internal/types"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/llm"
)

// FallbackAnswer is shown to the user whenever a question is escalated.
const FallbackAnswer = "I’m not fully sure about this yet. " +
	"Your question has been forwarded to the university administration. " +
	"You will get a verified response soon."

type Config struct {
	FAQThreshold    float64
	DocThreshold    float64
	FAQCandidates   int
	DocCandidates   int
	ContextChunks   int
	HistoryLimit    int
	DefaultLanguage string
}

func (c *Config) applyDefaults() {
	if c.FAQThreshold == 0 {
		c.FAQThreshold = 0.85
	}
	if c.DocThreshold == 0 {
		c.DocThreshold = 0.95
	}
	if c.FAQCandidates == 0 {
		c.FAQCandidates = 3
	}
	if c.ContextChunks == 0 {
		c.ContextChunks = 3
	}
	if c.DocCandidates < c.ContextChunks {
		c.DocCandidates = c.ContextChunks
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 5
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "en"
	}
}

type ChatLog interface {
	EnsureSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	SaveMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.ChatMessage, error)
	Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

type FAQIndex interface {
	SearchFAQ(ctx context.Context, query []float32, k int) ([]models.FAQMatch, error)
}

type ChunkIndex interface {
	SearchChunks(ctx context.Context, query []float32, k int) ([]models.ChunkMatch, error)
}

type Escalations interface {
	CreateEscalation(ctx context.Context, e models.Escalation) (*models.Escalation, error)
}

// Deps are the collaborators of the pipeline. All are required.
type Deps struct {
	Chat        ChatLog
	FAQs        FAQIndex
	Chunks      ChunkIndex
	Escalations Escalations
	Embedder    types.Embedder
	Generator   types.Generator
	Language    types.LanguageDetector
}

type Pipeline struct {
	config Config
	deps   Deps
	logger zerolog.Logger
}

type Option func(*Pipeline)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(config Config, deps Deps, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Chat == nil, deps.FAQs == nil, deps.Chunks == nil, deps.Escalations == nil:
		return nil, fmt.Errorf("pipeline: chat log, indices and escalation store are required")
	case deps.Embedder == nil, deps.Generator == nil, deps.Language == nil:
		return nil, fmt.Errorf("pipeline: embedder, generator and language detector are required")
	}
	config.applyDefaults()

	p := &Pipeline{config: config, deps: deps, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AnswerQuestion runs one question through the tiers. The user message is
// written first and stays written even if a later step fails; every
// returned answer is also written as an assistant message.
func (p *Pipeline) AnswerQuestion(ctx context.Context, question string, sessionID uuid.UUID) (*models.AnswerResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question: %w", apperr.ErrEmptyInput)
	}

	session, err := p.deps.Chat.EnsureSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	userMsg, err := p.deps.Chat.SaveMessage(ctx, session.ID, models.RoleUser, question)
	if err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}

	lang := p.deps.Language.Detect(question)

	vector, err := p.deps.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	log := p.logger.With().
		Str("session", session.ID.String()).
		Str("language", lang).
		Logger()

	faqs, err := p.deps.FAQs.SearchFAQ(ctx, vector, p.config.FAQCandidates)
	if err != nil {
		return nil, fmt.Errorf("faq search: %w", err)
	}
	if len(faqs) > 0 && faqs[0].Distance <= p.config.FAQThreshold {
		best := faqs[0]
		result := &models.AnswerResult{
			Answer:     best.Answer,
			Source:     models.SourceFAQ,
			Confidence: confidence(best.Distance),
		}
		log.Info().
			Int64("faq_id", best.FAQID).
			Float64("faq_distance", best.Distance).
			Msg("answered from faq")
		return p.finish(ctx, session.ID, lang, result, start)
	}

	chunks, err := p.deps.Chunks.SearchChunks(ctx, vector, p.config.DocCandidates)
	if err != nil {
		return nil, fmt.Errorf("document search: %w", err)
	}
	if len(chunks) > 0 && chunks[0].Distance <= p.config.DocThreshold {
		excerpts := chunks
		if len(excerpts) > p.config.ContextChunks {
			excerpts = excerpts[:p.config.ContextChunks]
		}

		history, err := p.history(ctx, session.ID, userMsg.ID)
		if err != nil {
			return nil, err
		}

		prompt := llm.BuildPrompt(llm.PromptInput{
			Question:        question,
			Language:        lang,
			DefaultLanguage: p.config.DefaultLanguage,
			Chunks:          excerpts,
			History:         history,
		})
		answer, err := p.deps.Generator.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}

		result := &models.AnswerResult{
			Answer:     answer,
			Source:     models.SourceDocuments,
			Confidence: confidence(chunks[0].Distance),
		}
		log.Info().
			Float64("doc_distance", chunks[0].Distance).
			Int("context_chunks", len(excerpts)).
			Msg("answered from documents")
		return p.finish(ctx, session.ID, lang, result, start)
	}

	esc, err := p.deps.Escalations.CreateEscalation(ctx, models.Escalation{
		SessionID:  &session.ID,
		Question:   question,
		Confidence: 0,
		Status:     models.EscalationOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}

	ev := log.Info().Int64("escalation_id", esc.ID)
	if len(faqs) > 0 {
		ev = ev.Float64("faq_distance", faqs[0].Distance)
	}
	if len(chunks) > 0 {
		ev = ev.Float64("doc_distance", chunks[0].Distance)
	}
	ev.Msg("escalated")

	id := esc.ID
	return p.finish(ctx, session.ID, lang, &models.AnswerResult{
		Answer:       FallbackAnswer,
		Source:       models.SourceEscalation,
		Confidence:   0,
		Escalated:    true,
		EscalationID: &id,
	}, start)
}

func (p *Pipeline) finish(ctx context.Context, sessionID uuid.UUID, lang string, result *models.AnswerResult, start time.Time) (*models.AnswerResult, error) {
	if _, err := p.deps.Chat.SaveMessage(ctx, sessionID, models.RoleAssistant, result.Answer); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	result.SessionID = sessionID
	result.Language = lang

	p.logger.Debug().
		Str("session", sessionID.String()).
		Str("source", string(result.Source)).
		Float64("confidence", result.Confidence).
		Dur("duration", time.Since(start)).
		Msg("question answered")
	return result, nil
}

// history returns recent messages without the question just written.
func (p *Pipeline) history(ctx context.Context, sessionID uuid.UUID, exclude int64) ([]models.ChatMessage, error) {
	recent, err := p.deps.Chat.Recent(ctx, sessionID, p.config.HistoryLimit+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make([]models.ChatMessage, 0, len(recent))
	for _, m := range recent {
		if m.ID != exclude {
			out = append(out, m)
		}
	}
	if len(out) > p.config.HistoryLimit {
		out = out[len(out)-p.config.HistoryLimit:]
	}
	return out, nil
}

func confidence(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
