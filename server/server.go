// Package server exposes the chat, escalation and admin operations over
// HTTP and a websocket chat endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/chat"
	"github.com/xhad/campusconnect/pkg/escalation"
	"github.com/xhad/campusconnect/pkg/faq"
	"github.com/xhad/campusconnect/pkg/ingest"
	"github.com/xhad/campusconnect/pkg/pipeline"
	"github.com/xhad/campusconnect/pkg/ratelimit"
)

type Config struct {
	Addr           string
	RequestTimeout time.Duration // bound on one answered question
	MaxUploadBytes int64
}

// Services are the operations the server routes to.
type Services struct {
	Pipeline    *pipeline.Pipeline
	Chat        *chat.Service
	Escalations *escalation.Manager
	FAQs        *faq.Service
	Documents   *ingest.Manager
}

type Server struct {
	config   Config
	services Services
	limiter  ratelimit.Limiter
	logger   zerolog.Logger
}

func New(config Config, services Services, limiter ratelimit.Limiter, logger zerolog.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 32 << 20
	}
	if limiter == nil {
		limiter = ratelimit.NewMemory(ratelimit.DefaultRequests, ratelimit.DefaultWindow)
	}
	return &Server{config: config, services: services, limiter: limiter, logger: logger}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "campusconnect"})
	})

	limited := ratelimit.Middleware(s.limiter, ratelimit.ClientIP)
	// /ws is limited per message inside the handler.
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.With(limited).Post("/chat/send", s.sendQuestion)
		r.Post("/chat/new", s.newSession)
		r.Get("/chat/sessions", s.listSessions)
		r.Get("/chat/{sessionID}", s.sessionHistory)
		r.Post("/escalation/manual/{sessionID}", s.manualEscalation)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Route("/faqs", func(r chi.Router) {
			r.Get("/", s.listFAQs)
			r.Post("/", s.createFAQ)
			r.Post("/bulk-upload", s.bulkUploadFAQs)
			r.Put("/{id}", s.updateFAQ)
			r.Delete("/{id}", s.deleteFAQ)
			r.Post("/{id}/questions", s.addFAQQuestion)
		})
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.listDocuments)
			r.Post("/", s.uploadDocument)
			r.Put("/{id}", s.updateDocument)
			r.Delete("/{id}", s.deleteDocument)
		})
		r.Route("/escalations", func(r chi.Router) {
			r.Get("/", s.listEscalations)
			r.Get("/{id}", s.getEscalation)
			r.Post("/{id}/reply", s.replyEscalation)
			r.Post("/{id}/promote/faq", s.promoteEscalation)
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("graceful shutdown failed")
		return srv.Close()
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(err)})
}
