package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/extract"
	"github.com/xhad/campusconnect/pkg/faq"
)

type sendRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// parseSessionID accepts an empty id, which starts a new session.
func parseSessionID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session_id: %w", apperr.ErrEmptyInput)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, apperr.ErrEmptyInput)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, apperr.ErrEmptyInput)
	}
	return id, nil
}

func intParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, apperr.ErrEmptyInput)
	}
	return id, nil
}

// --- chat ---

func (s *Server) answer(ctx context.Context, question string, sessionID uuid.UUID) (*models.AnswerResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	return s.services.Pipeline.AnswerQuestion(ctx, question, sessionID)
}

func (s *Server) sendQuestion(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sessionID, err := parseSessionID(req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.answer(r.Context(), req.Question, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) newSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.services.Chat.NewSession(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID.String()})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("user_id: %w", apperr.ErrEmptyInput))
		return
	}
	sessions, err := s.services.Chat.ListSessions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.services.Chat.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) manualEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.services.Escalations.CreateManual(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "escalated", "escalation_id": e.ID})
}

// --- faqs ---

func (s *Server) listFAQs(w http.ResponseWriter, r *http.Request) {
	faqs, err := s.services.FAQs.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, faqs)
}

func (s *Server) createFAQ(w http.ResponseWriter, r *http.Request) {
	var in faq.FAQInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.services.FAQs.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) updateFAQ(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in faq.FAQUpdate
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.services.FAQs.Update(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteFAQ(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.services.FAQs.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) addFAQQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		QuestionText string `json:"question_text"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.services.FAQs.AddQuestion(r.Context(), id, req.QuestionText)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added", "question": v.QuestionText})
}

func (s *Server) bulkUploadFAQs(w http.ResponseWriter, r *http.Request) {
	var items []faq.FAQInput
	if err := decode(r, &items); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.services.FAQs.BulkImport(r.Context(), items, nil))
}

// --- documents ---

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.services.Documents.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// readUpload returns the multipart "file" field of the request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (extract.RawContent, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		return extract.RawContent{}, fmt.Errorf("file: %v: %w", err, apperr.ErrEmptyInput)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return extract.RawContent{}, fmt.Errorf("read upload: %w", err)
	}
	return extract.RawContent{Filename: header.Filename, Data: data}, nil
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.services.Documents.Ingest(r.Context(), nil, raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// updateDocument re-indexes a document from either a new file upload or a
// JSON body carrying edited text.
func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		raw, err := s.readUpload(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.services.Documents.Ingest(r.Context(), &id, raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	var req struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.services.Documents.UpdateText(r.Context(), id, req.Title, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.services.Documents.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- escalations ---

func (s *Server) listEscalations(w http.ResponseWriter, r *http.Request) {
	status := models.EscalationStatus(r.URL.Query().Get("status"))
	escs, err := s.services.Escalations.List(r.Context(), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, escs)
}

func (s *Server) getEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.services.Escalations.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) replyEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Answer string `json:"answer"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.services.Escalations.Resolve(r.Context(), id, req.Answer); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) promoteEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.services.Escalations.Promote(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "promoted", "faq_id": created.ID})
}

// errorMessage is the client-facing text of err.
func errorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}
