package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/ratelimit"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one websocket frame in either direction. Clients send
// {"type":"question","content":"...","session_id":"..."}; the server
// replies with "answer" (Data holds the AnswerResult) or "error".
type Message struct {
	Type      string      `json:"type"`
	Content   string      `json:"content,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// handleWebSocket answers questions over one connection. Each question is
// counted against the same rate limit as /api/chat/send and answered in
// order, so a session's messages stay sequential.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := ratelimit.ClientIP(r)
	ctx := r.Context()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.WriteJSON(Message{Type: "error", Content: "invalid message"})
			continue
		}
		if msg.Type != "question" {
			_ = conn.WriteJSON(Message{Type: "error", Content: "unsupported message type " + msg.Type})
			continue
		}

		if ok, err := s.limiter.Allow(ctx, client); err == nil && !ok {
			_ = conn.WriteJSON(Message{Type: "error", Content: apperr.ErrRateLimited.Error(), SessionID: msg.SessionID})
			continue
		}

		sessionID, err := parseSessionID(msg.SessionID)
		if err != nil {
			_ = conn.WriteJSON(Message{Type: "error", Content: err.Error()})
			continue
		}
		res, err := s.answer(ctx, msg.Content, sessionID)
		if err != nil {
			_ = conn.WriteJSON(Message{Type: "error", Content: errorMessage(err), SessionID: msg.SessionID})
			continue
		}
		if err := conn.WriteJSON(Message{Type: "answer", Content: res.Answer, SessionID: res.SessionID.String(), Data: res}); err != nil {
			s.logger.Debug().Err(err).Msg("websocket write")
			return
		}
	}
}
