package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/pkg/apperr"
)

// Memory is a process-local Store. One lock guards every table, so each
// method is a transaction: readers see a chunk set before or after a
// replacement, never in between.
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time

	sessions map[uuid.UUID]models.ChatSession
	messages []models.ChatMessage
	nextMsg  int64

	faqs        map[int64]models.FAQAnswer
	variants    map[int64]models.FAQQuestionVariant
	nextFAQ     int64
	nextVariant int64

	documents map[uuid.UUID]models.Document
	chunks    map[uuid.UUID][]models.DocumentChunk

	escalations map[int64]models.Escalation
	nextEsc     int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		now:         time.Now,
		sessions:    make(map[uuid.UUID]models.ChatSession),
		faqs:        make(map[int64]models.FAQAnswer),
		variants:    make(map[int64]models.FAQQuestionVariant),
		documents:   make(map[uuid.UUID]models.Document),
		chunks:      make(map[uuid.UUID][]models.DocumentChunk),
		escalations: make(map[int64]models.Escalation),
	}
}

// SetClock replaces the time source; tests use it to force timestamp ties.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Close() {}

// --- chat ---

func (m *Memory) CreateSession(_ context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := models.ChatSession{ID: uuid.New(), UserID: userID, CreatedAt: m.now()}
	m.sessions[s.ID] = s
	return &s, nil
}

func (m *Memory) EnsureSession(_ context.Context, id uuid.UUID) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		s = models.ChatSession{ID: id, CreatedAt: m.now()}
		m.sessions[id] = s
	}
	return &s, nil
}

func (m *Memory) ListSessions(_ context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.SessionSummary
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		sum := models.SessionSummary{SessionID: s.ID, CreatedAt: s.CreatedAt}
		for _, msg := range m.messages {
			if msg.SessionID == s.ID && msg.Role == models.RoleUser {
				content := msg.Content
				sum.FirstQuestion = &content
				break
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveMessage(_ context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	m.nextMsg++
	msg := models.ChatMessage{
		ID:        m.nextMsg,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now(),
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

// sessionMessages is ordered by CreatedAt then ID; m.messages is already in
// ID order, so a stable sort on time is enough.
func (m *Memory) sessionMessages(sessionID uuid.UUID) []models.ChatMessage {
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) RecentMessages(_ context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}
	all := m.sessionMessages(sessionID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *Memory) Messages(_ context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionMessages(sessionID), nil
}

func (m *Memory) LastMessage(_ context.Context, sessionID uuid.UUID, role models.Role) (*models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.sessionMessages(sessionID)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Role == role {
			msg := all[i]
			return &msg, nil
		}
	}
	return nil, fmt.Errorf("%s message in session %s: %w", role, sessionID, apperr.ErrNotFound)
}

// --- faq ---

func (m *Memory) faqByQuestion(canonical string) (models.FAQAnswer, bool) {
	for _, f := range m.faqs {
		if f.CanonicalQuestion == canonical {
			return f, true
		}
	}
	return models.FAQAnswer{}, false
}

func (m *Memory) faqWithQuestions(f models.FAQAnswer) models.FAQAnswer {
	f.Questions = nil
	for _, v := range m.variants {
		if v.FAQID == f.ID {
			f.Questions = append(f.Questions, v)
		}
	}
	sort.Slice(f.Questions, func(i, j int) bool { return f.Questions[i].ID < f.Questions[j].ID })
	return f
}

func checkVariants(variants []models.FAQQuestionVariant) error {
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if strings.TrimSpace(v.QuestionText) == "" {
			return fmt.Errorf("faq question: %w", apperr.ErrEmptyInput)
		}
		if len(v.Embedding) == 0 {
			return fmt.Errorf("faq question %q has no embedding", v.QuestionText)
		}
		if seen[v.QuestionText] {
			return fmt.Errorf("%q: %w", v.QuestionText, apperr.ErrDuplicateQuestion)
		}
		seen[v.QuestionText] = true
	}
	return nil
}

// insertFAQ expects m.mu held and variants already checked.
func (m *Memory) insertFAQ(faq models.FAQAnswer, variants []models.FAQQuestionVariant) models.FAQAnswer {
	m.nextFAQ++
	now := m.now()
	faq.ID = m.nextFAQ
	faq.CreatedAt = now
	faq.UpdatedAt = now
	faq.Questions = nil
	m.faqs[faq.ID] = faq
	m.insertVariants(faq.ID, variants)
	return m.faqWithQuestions(faq)
}

func (m *Memory) insertVariants(faqID int64, variants []models.FAQQuestionVariant) {
	for _, v := range variants {
		m.nextVariant++
		v.ID = m.nextVariant
		v.FAQID = faqID
		v.Embedding = append([]float32(nil), v.Embedding...)
		m.variants[v.ID] = v
	}
}

func (m *Memory) CreateFAQ(_ context.Context, faq models.FAQAnswer, variants []models.FAQQuestionVariant) (*models.FAQAnswer, error) {
	if err := checkVariants(variants); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.faqByQuestion(faq.CanonicalQuestion); exists {
		return nil, fmt.Errorf("%q: %w", faq.CanonicalQuestion, apperr.ErrDuplicateFAQ)
	}
	created := m.insertFAQ(faq, variants)
	return &created, nil
}

func (m *Memory) UpdateFAQ(_ context.Context, faq models.FAQAnswer, variants []models.FAQQuestionVariant, replaceVariants bool) (*models.FAQAnswer, error) {
	if replaceVariants {
		if err := checkVariants(variants); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.faqs[faq.ID]
	if !ok {
		return nil, fmt.Errorf("faq %d: %w", faq.ID, apperr.ErrNotFound)
	}
	if other, exists := m.faqByQuestion(faq.CanonicalQuestion); exists && other.ID != faq.ID {
		return nil, fmt.Errorf("%q: %w", faq.CanonicalQuestion, apperr.ErrDuplicateFAQ)
	}

	current.CanonicalQuestion = faq.CanonicalQuestion
	current.Answer = faq.Answer
	current.UpdatedAt = m.now()
	m.faqs[faq.ID] = current

	if replaceVariants {
		for id, v := range m.variants {
			if v.FAQID == faq.ID {
				delete(m.variants, id)
			}
		}
		m.insertVariants(faq.ID, variants)
	}

	updated := m.faqWithQuestions(current)
	return &updated, nil
}

func (m *Memory) AddFAQQuestion(_ context.Context, faqID int64, variant models.FAQQuestionVariant) (*models.FAQQuestionVariant, error) {
	if err := checkVariants([]models.FAQQuestionVariant{variant}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.faqs[faqID]; !ok {
		return nil, fmt.Errorf("faq %d: %w", faqID, apperr.ErrNotFound)
	}
	for _, v := range m.variants {
		if v.FAQID == faqID && v.QuestionText == variant.QuestionText {
			return nil, fmt.Errorf("%q: %w", variant.QuestionText, apperr.ErrDuplicateQuestion)
		}
	}
	m.insertVariants(faqID, []models.FAQQuestionVariant{variant})
	added := m.variants[m.nextVariant]
	return &added, nil
}

func (m *Memory) GetFAQ(_ context.Context, id int64) (*models.FAQAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.faqs[id]
	if !ok {
		return nil, fmt.Errorf("faq %d: %w", id, apperr.ErrNotFound)
	}
	f = m.faqWithQuestions(f)
	return &f, nil
}

func (m *Memory) FindFAQByQuestion(_ context.Context, canonical string) (*models.FAQAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.faqByQuestion(canonical)
	if !ok {
		return nil, fmt.Errorf("faq %q: %w", canonical, apperr.ErrNotFound)
	}
	f = m.faqWithQuestions(f)
	return &f, nil
}

func (m *Memory) ListFAQs(_ context.Context) ([]models.FAQAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.FAQAnswer, 0, len(m.faqs))
	for _, f := range m.faqs {
		out = append(out, m.faqWithQuestions(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) DeleteFAQ(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.faqs[id]; !ok {
		return fmt.Errorf("faq %d: %w", id, apperr.ErrNotFound)
	}
	for vid, v := range m.variants {
		if v.FAQID == id {
			delete(m.variants, vid)
		}
	}
	delete(m.faqs, id)
	return nil
}

func (m *Memory) SearchFAQ(_ context.Context, query []float32, k int) ([]models.FAQMatch, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.FAQMatch, 0, len(m.variants))
	for _, v := range m.variants {
		d, err := l2(query, v.Embedding)
		if err != nil {
			return nil, err
		}
		f := m.faqs[v.FAQID]
		out = append(out, models.FAQMatch{
			FAQID:             f.ID,
			VariantID:         v.ID,
			CanonicalQuestion: f.CanonicalQuestion,
			MatchedQuestion:   v.QuestionText,
			Answer:            f.Answer,
			Distance:          d,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].VariantID < out[j].VariantID
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// --- documents ---

func (m *Memory) ReplaceDocument(_ context.Context, doc models.Document, chunks []models.ChunkInput) (*models.Document, error) {
	// Build the full replacement before touching shared state, so a bad
	// chunk leaves the previous set in place.
	docID := doc.ID
	if docID == uuid.Nil {
		docID = uuid.New()
	}
	fresh := make([]models.DocumentChunk, 0, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %d has no embedding", i)
		}
		fresh = append(fresh, models.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: docID,
			ChunkIndex: i,
			Content:    c.Content,
			Embedding:  append([]float32(nil), c.Embedding...),
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if doc.ID == uuid.Nil {
		doc.ID = docID
		doc.CreatedAt = now
	} else {
		current, ok := m.documents[doc.ID]
		if !ok {
			return nil, fmt.Errorf("document %s: %w", doc.ID, apperr.ErrNotFound)
		}
		doc.CreatedAt = current.CreatedAt
	}
	doc.UpdatedAt = now

	m.documents[doc.ID] = doc
	m.chunks[doc.ID] = fresh
	return &doc, nil
}

func (m *Memory) GetDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	return &d, nil
}

func (m *Memory) ListDocuments(_ context.Context) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Document, 0, len(m.documents))
	for _, d := range m.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteDocument(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	delete(m.chunks, id)
	delete(m.documents, id)
	return nil
}

func (m *Memory) Chunks(_ context.Context, documentID uuid.UUID) ([]models.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.chunks[documentID]
	out := make([]models.DocumentChunk, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) SearchChunks(_ context.Context, query []float32, k int) ([]models.ChunkMatch, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ChunkMatch
	for docID, chunks := range m.chunks {
		title := m.documents[docID].Title
		for _, c := range chunks {
			d, err := l2(query, c.Embedding)
			if err != nil {
				return nil, err
			}
			out = append(out, models.ChunkMatch{
				ChunkID:       c.ID,
				DocumentID:    docID,
				DocumentTitle: title,
				ChunkIndex:    c.ChunkIndex,
				Content:       c.Content,
				Distance:      d,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			if out[i].DocumentID == out[j].DocumentID {
				return out[i].ChunkIndex < out[j].ChunkIndex
			}
			return out[i].DocumentID.String() < out[j].DocumentID.String()
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// --- escalations ---

func (m *Memory) CreateEscalation(_ context.Context, e models.Escalation) (*models.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.SessionID != nil {
		if _, ok := m.sessions[*e.SessionID]; !ok {
			return nil, fmt.Errorf("session %s: %w", *e.SessionID, apperr.ErrNotFound)
		}
	}
	m.nextEsc++
	e.ID = m.nextEsc
	if e.Status == "" {
		e.Status = models.EscalationOpen
	}
	e.CreatedAt = m.now()
	m.escalations[e.ID] = e
	return &e, nil
}

func (m *Memory) GetEscalation(_ context.Context, id int64) (*models.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.escalations[id]
	if !ok {
		return nil, fmt.Errorf("escalation %d: %w", id, apperr.ErrNotFound)
	}
	return &e, nil
}

func (m *Memory) ListEscalations(_ context.Context, status models.EscalationStatus) ([]models.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Escalation
	for _, e := range m.escalations {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) LatestEscalation(_ context.Context, sessionID uuid.UUID) (*models.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.Escalation
	for _, e := range m.escalations {
		if e.SessionID == nil || *e.SessionID != sessionID {
			continue
		}
		if latest == nil || e.ID > latest.ID {
			e := e
			latest = &e
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("escalation for session %s: %w", sessionID, apperr.ErrNotFound)
	}
	return latest, nil
}

func (m *Memory) ResolveEscalation(_ context.Context, id int64, answer string, at time.Time) (*models.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.escalations[id]
	if !ok {
		return nil, fmt.Errorf("escalation %d: %w", id, apperr.ErrNotFound)
	}
	if e.Status != models.EscalationOpen {
		return nil, fmt.Errorf("escalation %d is %s: %w", id, e.Status, apperr.ErrInvalidTransition)
	}

	e.AdminAnswer = &answer
	e.ResolvedAt = &at
	e.Status = models.EscalationResolved

	if e.SessionID != nil {
		m.nextMsg++
		m.messages = append(m.messages, models.ChatMessage{
			ID:        m.nextMsg,
			SessionID: *e.SessionID,
			Role:      models.RoleAdmin,
			Content:   answer,
			CreatedAt: m.now(),
		})
	}
	m.escalations[id] = e
	return &e, nil
}

func (m *Memory) PromoteEscalation(_ context.Context, id int64, embedding []float32) (*models.FAQAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.escalations[id]
	if !ok {
		return nil, fmt.Errorf("escalation %d: %w", id, apperr.ErrNotFound)
	}
	if e.Status != models.EscalationResolved {
		return nil, fmt.Errorf("escalation %d is %s: %w", id, e.Status, apperr.ErrInvalidTransition)
	}
	if !e.HasAdminAnswer() {
		return nil, fmt.Errorf("escalation %d: %w", id, apperr.ErrMissingAnswer)
	}

	variant := models.FAQQuestionVariant{QuestionText: e.Question, Embedding: embedding}
	if err := checkVariants([]models.FAQQuestionVariant{variant}); err != nil {
		return nil, err
	}
	if _, exists := m.faqByQuestion(e.Question); exists {
		return nil, fmt.Errorf("%q: %w", e.Question, apperr.ErrDuplicateFAQ)
	}

	faq := m.insertFAQ(models.FAQAnswer{
		CanonicalQuestion: e.Question,
		Answer:            *e.AdminAnswer,
	}, []models.FAQQuestionVariant{variant})

	e.Status = models.EscalationPromoted
	m.escalations[id] = e
	return &faq, nil
}

// l2 is the Euclidean distance, the same metric as pgvector's <-> operator.
func l2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
