package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/pkg/apperr"
)

type PostgresConfig struct {
	ConnString string
	VectorDim  int
	MaxConns   int
}

// Postgres is the pgvector-backed Store. Every compound write runs in one
// transaction; document reindexing holds the document row lock so
// concurrent replacements of the same document are serialized.
type Postgres struct {
	config PostgresConfig
	pool   *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgres(ctx context.Context, config PostgresConfig) (*Postgres, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.MaxConns == 0 {
		config.MaxConns = 10
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	poolConfig.MaxConns = int32(config.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pg := &Postgres{config: config, pool: pool}
	if err := pg.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pg, nil
}

func (pg *Postgres) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := pg.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id UUID PRIMARY KEY,
			user_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES chat_sessions(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS faqs (
			id BIGSERIAL PRIMARY KEY,
			canonical_question TEXT NOT NULL UNIQUE,
			answer TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS faq_questions (
			id BIGSERIAL PRIMARY KEY,
			faq_id BIGINT NOT NULL REFERENCES faqs(id),
			question_text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			UNIQUE (faq_id, question_text)
		)`, pg.config.VectorDim),
		`CREATE INDEX IF NOT EXISTS faq_questions_embedding_idx
			ON faq_questions USING hnsw (embedding vector_l2_ops)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			source_type TEXT NOT NULL,
			final_text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id),
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			UNIQUE (document_id, chunk_index)
		)`, pg.config.VectorDim),
		`CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
			ON document_chunks USING hnsw (embedding vector_l2_ops)`,
		`CREATE TABLE IF NOT EXISTS escalations (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID REFERENCES chat_sessions(id),
			question TEXT NOT NULL,
			bot_answer TEXT,
			admin_answer TEXT,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			resolved_at TIMESTAMPTZ
		)`,
	}

	for _, stmt := range statements {
		if _, err := pg.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (pg *Postgres) Close() {
	if pg.pool != nil {
		pg.pool.Close()
	}
}

// inTx runs fn in a transaction and commits only when fn succeeds.
func (pg *Postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := pg.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// --- chat ---

func (pg *Postgres) CreateSession(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	s := models.ChatSession{ID: uuid.New(), UserID: userID}
	err := pg.pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (id, user_id) VALUES ($1, $2) RETURNING created_at`,
		s.ID, userID).Scan(&s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &s, nil
}

func (pg *Postgres) EnsureSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	if _, err := pg.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("failed to ensure session: %w", err)
	}

	var (
		s      = models.ChatSession{ID: id}
		userID *uuid.UUID
	)
	err := pg.pool.QueryRow(ctx,
		`SELECT user_id, created_at FROM chat_sessions WHERE id = $1`, id).Scan(&userID, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("session %s", id))
	}
	if userID != nil {
		s.UserID = *userID
	}
	return &s, nil
}

func (pg *Postgres) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	rows, err := pg.pool.Query(ctx, `
		SELECT s.id, s.created_at,
			(SELECT m.content FROM chat_messages m
			 WHERE m.session_id = s.id AND m.role = 'user'
			 ORDER BY m.created_at, m.id LIMIT 1)
		FROM chat_sessions s
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionSummary
	for rows.Next() {
		var s models.SessionSummary
		if err := rows.Scan(&s.SessionID, &s.CreatedAt, &s.FirstQuestion); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (pg *Postgres) SaveMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.ChatMessage, error) {
	msg := models.ChatMessage{SessionID: sessionID, Role: role, Content: content}
	err := pg.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		sessionID, string(role), content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s message: %w", role, err)
	}
	return &msg, nil
}

func scanMessages(rows pgx.Rows) ([]models.ChatMessage, error) {
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			m    models.ChatMessage
			role string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (pg *Postgres) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := pg.pool.Query(ctx, `
		SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	return scanMessages(rows)
}

func (pg *Postgres) Messages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := pg.pool.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return scanMessages(rows)
}

func (pg *Postgres) LastMessage(ctx context.Context, sessionID uuid.UUID, role models.Role) (*models.ChatMessage, error) {
	rows, err := pg.pool.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1 AND role = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, sessionID, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to load last message: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s message in session %s: %w", role, sessionID, apperr.ErrNotFound)
	}
	return &msgs[0], nil
}

// --- faq ---

func insertVariants(ctx context.Context, q querier, faqID int64, variants []models.FAQQuestionVariant) error {
	for _, v := range variants {
		_, err := q.Exec(ctx,
			`INSERT INTO faq_questions (faq_id, question_text, embedding) VALUES ($1, $2, $3)`,
			faqID, v.QuestionText, pgvector.NewVector(v.Embedding))
		if isUniqueViolation(err) {
			return fmt.Errorf("%q: %w", v.QuestionText, apperr.ErrDuplicateQuestion)
		}
		if err != nil {
			return fmt.Errorf("failed to insert faq question: %w", err)
		}
	}
	return nil
}

func insertFAQ(ctx context.Context, q querier, faq models.FAQAnswer, variants []models.FAQQuestionVariant) (int64, error) {
	var exists bool
	if err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM faqs WHERE canonical_question = $1)`,
		faq.CanonicalQuestion).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check faq: %w", err)
	}
	if exists {
		return 0, fmt.Errorf("%q: %w", faq.CanonicalQuestion, apperr.ErrDuplicateFAQ)
	}

	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO faqs (canonical_question, answer) VALUES ($1, $2) RETURNING id`,
		faq.CanonicalQuestion, faq.Answer).Scan(&id)
	if isUniqueViolation(err) {
		// lost a race with a concurrent insert of the same question
		return 0, fmt.Errorf("%q: %w", faq.CanonicalQuestion, apperr.ErrDuplicateFAQ)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert faq: %w", err)
	}

	if err := insertVariants(ctx, q, id, variants); err != nil {
		return 0, err
	}
	return id, nil
}

func loadFAQ(ctx context.Context, q querier, id int64) (*models.FAQAnswer, error) {
	f := models.FAQAnswer{ID: id}
	err := q.QueryRow(ctx,
		`SELECT canonical_question, answer, created_at, updated_at FROM faqs WHERE id = $1`,
		id).Scan(&f.CanonicalQuestion, &f.Answer, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("faq %d", id))
	}

	questions, err := loadQuestions(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	f.Questions = questions[id]
	return &f, nil
}

func loadQuestions(ctx context.Context, q querier, faqIDs []int64) (map[int64][]models.FAQQuestionVariant, error) {
	rows, err := q.Query(ctx, `
		SELECT id, faq_id, question_text
		FROM faq_questions
		WHERE faq_id = ANY($1)
		ORDER BY id`, faqIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load faq questions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.FAQQuestionVariant)
	for rows.Next() {
		var v models.FAQQuestionVariant
		if err := rows.Scan(&v.ID, &v.FAQID, &v.QuestionText); err != nil {
			return nil, fmt.Errorf("failed to scan faq question: %w", err)
		}
		out[v.FAQID] = append(out[v.FAQID], v)
	}
	return out, rows.Err()
}

func (pg *Postgres) CreateFAQ(ctx context.Context, faq models.FAQAnswer, variants []models.FAQQuestionVariant) (*models.FAQAnswer, error) {
	var created *models.FAQAnswer
	err := pg.inTx(ctx, func(tx pgx.Tx) error {
		id, err := insertFAQ(ctx, tx, faq, variants)
		if err != nil {
			return err
		}
		created, err = loadFAQ(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (pg *Postgres) UpdateFAQ(ctx context.Context, faq models.FAQAnswer, variants []models.FAQQuestionVariant, replaceVariants bool) (*models.FAQAnswer, error) {
	var updated *models.FAQAnswer
	err := pg.inTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM faqs WHERE id = $1 FOR UPDATE`, faq.ID).Scan(&id)
		if err != nil {
			return notFound(err, fmt.Sprintf("faq %d", faq.ID))
		}

		_, err = tx.Exec(ctx,
			`UPDATE faqs SET canonical_question = $2, answer = $3, updated_at = now() WHERE id = $1`,
			faq.ID, faq.CanonicalQuestion, faq.Answer)
		if isUniqueViolation(err) {
			return fmt.Errorf("%q: %w", faq.CanonicalQuestion, apperr.ErrDuplicateFAQ)
		}
		if err != nil {
			return fmt.Errorf("failed to update faq: %w", err)
		}

		if replaceVariants {
			if _, err := tx.Exec(ctx, `DELETE FROM faq_questions WHERE faq_id = $1`, faq.ID); err != nil {
				return fmt.Errorf("failed to delete faq questions: %w", err)
			}
			if err := insertVariants(ctx, tx, faq.ID, variants); err != nil {
				return err
			}
		}

		updated, err = loadFAQ(ctx, tx, faq.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (pg *Postgres) AddFAQQuestion(ctx context.Context, faqID int64, variant models.FAQQuestionVariant) (*models.FAQQuestionVariant, error) {
	added := variant
	added.FAQID = faqID
	err := pg.inTx(ctx, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `SELECT id FROM faqs WHERE id = $1 FOR UPDATE`, faqID).Scan(&id); err != nil {
			return notFound(err, fmt.Sprintf("faq %d", faqID))
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO faq_questions (faq_id, question_text, embedding) VALUES ($1, $2, $3) RETURNING id`,
			faqID, variant.QuestionText, pgvector.NewVector(variant.Embedding)).Scan(&added.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("%q: %w", variant.QuestionText, apperr.ErrDuplicateQuestion)
		}
		if err != nil {
			return fmt.Errorf("failed to insert faq question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

func (pg *Postgres) GetFAQ(ctx context.Context, id int64) (*models.FAQAnswer, error) {
	return loadFAQ(ctx, pg.pool, id)
}

func (pg *Postgres) FindFAQByQuestion(ctx context.Context, canonical string) (*models.FAQAnswer, error) {
	var id int64
	err := pg.pool.QueryRow(ctx, `SELECT id FROM faqs WHERE canonical_question = $1`, canonical).Scan(&id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("faq %q", canonical))
	}
	return loadFAQ(ctx, pg.pool, id)
}

func (pg *Postgres) ListFAQs(ctx context.Context) ([]models.FAQAnswer, error) {
	rows, err := pg.pool.Query(ctx,
		`SELECT id, canonical_question, answer, created_at, updated_at FROM faqs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list faqs: %w", err)
	}
	defer rows.Close()

	var (
		out []models.FAQAnswer
		ids []int64
	)
	for rows.Next() {
		var f models.FAQAnswer
		if err := rows.Scan(&f.ID, &f.CanonicalQuestion, &f.Answer, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan faq: %w", err)
		}
		out = append(out, f)
		ids = append(ids, f.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	questions, err := loadQuestions(ctx, pg.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Questions = questions[out[i].ID]
	}
	return out, nil
}

func (pg *Postgres) DeleteFAQ(ctx context.Context, id int64) error {
	return pg.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM faq_questions WHERE faq_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete faq questions: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM faqs WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete faq: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("faq %d: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

func (pg *Postgres) SearchFAQ(ctx context.Context, query []float32, k int) ([]models.FAQMatch, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := pg.pool.Query(ctx, `
		SELECT q.faq_id, q.id, f.canonical_question, q.question_text, f.answer,
			q.embedding <-> $1 AS distance
		FROM faq_questions q
		JOIN faqs f ON f.id = q.faq_id
		ORDER BY distance, q.id
		LIMIT $2`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search faqs: %w", err)
	}
	defer rows.Close()

	var out []models.FAQMatch
	for rows.Next() {
		var m models.FAQMatch
		if err := rows.Scan(&m.FAQID, &m.VariantID, &m.CanonicalQuestion, &m.MatchedQuestion, &m.Answer, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan faq match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- documents ---

func (pg *Postgres) ReplaceDocument(ctx context.Context, doc models.Document, chunks []models.ChunkInput) (*models.Document, error) {
	err := pg.inTx(ctx, func(tx pgx.Tx) error {
		if doc.ID == uuid.Nil {
			doc.ID = uuid.New()
			err := tx.QueryRow(ctx, `
				INSERT INTO documents (id, title, source_type, final_text)
				VALUES ($1, $2, $3, $4)
				RETURNING created_at, updated_at`,
				doc.ID, doc.Title, doc.SourceType, doc.FinalText).Scan(&doc.CreatedAt, &doc.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert document: %w", err)
			}
		} else {
			// The row lock serializes reindexing of one document.
			err := tx.QueryRow(ctx,
				`SELECT created_at FROM documents WHERE id = $1 FOR UPDATE`, doc.ID).Scan(&doc.CreatedAt)
			if err != nil {
				return notFound(err, fmt.Sprintf("document %s", doc.ID))
			}
			err = tx.QueryRow(ctx, `
				UPDATE documents SET title = $2, source_type = $3, final_text = $4, updated_at = now()
				WHERE id = $1
				RETURNING updated_at`,
				doc.ID, doc.Title, doc.SourceType, doc.FinalText).Scan(&doc.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to update document: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}

		for i, c := range chunks {
			_, err := tx.Exec(ctx, `
				INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding)
				VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), doc.ID, i, c.Content, pgvector.NewVector(c.Embedding))
			if err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (pg *Postgres) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	d := models.Document{ID: id}
	err := pg.pool.QueryRow(ctx, `
		SELECT title, source_type, final_text, created_at, updated_at
		FROM documents WHERE id = $1`, id).
		Scan(&d.Title, &d.SourceType, &d.FinalText, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("document %s", id))
	}
	return &d, nil
}

func (pg *Postgres) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := pg.pool.Query(ctx, `
		SELECT id, title, source_type, final_text, created_at, updated_at
		FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.SourceType, &d.FinalText, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (pg *Postgres) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return pg.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

func (pg *Postgres) Chunks(ctx context.Context, documentID uuid.UUID) ([]models.DocumentChunk, error) {
	rows, err := pg.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (pg *Postgres) SearchChunks(ctx context.Context, query []float32, k int) ([]models.ChunkMatch, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := pg.pool.Query(ctx, `
		SELECT c.id, c.document_id, d.title, c.chunk_index, c.content,
			c.embedding <-> $1 AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY distance, c.document_id, c.chunk_index
		LIMIT $2`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var out []models.ChunkMatch
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.DocumentTitle, &m.ChunkIndex, &m.Content, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- escalations ---

const escalationColumns = `id, session_id, question, bot_answer, admin_answer, confidence, status, created_at, resolved_at`

func scanEscalation(row pgx.Row) (*models.Escalation, error) {
	var (
		e      models.Escalation
		status string
	)
	err := row.Scan(&e.ID, &e.SessionID, &e.Question, &e.BotAnswer, &e.AdminAnswer,
		&e.Confidence, &status, &e.CreatedAt, &e.ResolvedAt)
	if err != nil {
		return nil, err
	}
	e.Status = models.EscalationStatus(status)
	return &e, nil
}

func (pg *Postgres) CreateEscalation(ctx context.Context, e models.Escalation) (*models.Escalation, error) {
	if e.Status == "" {
		e.Status = models.EscalationOpen
	}
	created, err := scanEscalation(pg.pool.QueryRow(ctx, `
		INSERT INTO escalations (session_id, question, bot_answer, confidence, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+escalationColumns,
		e.SessionID, e.Question, e.BotAnswer, e.Confidence, string(e.Status)))
	if err != nil {
		return nil, fmt.Errorf("failed to create escalation: %w", err)
	}
	return created, nil
}

func (pg *Postgres) GetEscalation(ctx context.Context, id int64) (*models.Escalation, error) {
	e, err := scanEscalation(pg.pool.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("escalation %d", id))
	}
	return e, nil
}

func (pg *Postgres) ListEscalations(ctx context.Context, status models.EscalationStatus) ([]models.Escalation, error) {
	rows, err := pg.pool.Query(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE $1::text = '' OR status = $1::text
		ORDER BY created_at DESC, id DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	var out []models.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (pg *Postgres) LatestEscalation(ctx context.Context, sessionID uuid.UUID) (*models.Escalation, error) {
	e, err := scanEscalation(pg.pool.QueryRow(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, sessionID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("escalation for session %s", sessionID))
	}
	return e, nil
}

func lockEscalation(ctx context.Context, tx pgx.Tx, id int64) (*models.Escalation, error) {
	e, err := scanEscalation(tx.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("escalation %d", id))
	}
	return e, nil
}

func (pg *Postgres) ResolveEscalation(ctx context.Context, id int64, answer string, at time.Time) (*models.Escalation, error) {
	var resolved *models.Escalation
	err := pg.inTx(ctx, func(tx pgx.Tx) error {
		e, err := lockEscalation(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.Status != models.EscalationOpen {
			return fmt.Errorf("escalation %d is %s: %w", id, e.Status, apperr.ErrInvalidTransition)
		}

		resolved, err = scanEscalation(tx.QueryRow(ctx, `
			UPDATE escalations
			SET admin_answer = $2, resolved_at = $3, status = $4
			WHERE id = $1
			RETURNING `+escalationColumns,
			id, answer, at, string(models.EscalationResolved)))
		if err != nil {
			return fmt.Errorf("failed to resolve escalation: %w", err)
		}

		if e.SessionID != nil {
			_, err := tx.Exec(ctx,
				`INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3)`,
				*e.SessionID, string(models.RoleAdmin), answer)
			if err != nil {
				return fmt.Errorf("failed to save admin message: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (pg *Postgres) PromoteEscalation(ctx context.Context, id int64, embedding []float32) (*models.FAQAnswer, error) {
	var faq *models.FAQAnswer
	err := pg.inTx(ctx, func(tx pgx.Tx) error {
		e, err := lockEscalation(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.Status != models.EscalationResolved {
			return fmt.Errorf("escalation %d is %s: %w", id, e.Status, apperr.ErrInvalidTransition)
		}
		if !e.HasAdminAnswer() {
			return fmt.Errorf("escalation %d: %w", id, apperr.ErrMissingAnswer)
		}

		faqID, err := insertFAQ(ctx, tx,
			models.FAQAnswer{CanonicalQuestion: e.Question, Answer: *e.AdminAnswer},
			[]models.FAQQuestionVariant{{QuestionText: e.Question, Embedding: embedding}})
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE escalations SET status = $2 WHERE id = $1`,
			id, string(models.EscalationPromoted)); err != nil {
			return fmt.Errorf("failed to mark escalation promoted: %w", err)
		}

		faq, err = loadFAQ(ctx, tx, faqID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return faq, nil
}
