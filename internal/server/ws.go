package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/ragcore/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	ConversationID string `json:"conversation_id"` // empty starts a new conversation
	Message        string `json:"message"`
}

// wsFrame is the outgoing WebSocket message format. Type is one of
// sources, content, complete, or error.
type wsFrame struct {
	Type           string       `json:"type"`
	ConversationID string       `json:"conversation_id"`
	Delta          string       `json:"delta,omitempty"`
	Content        string       `json:"content,omitempty"`
	Sources        []sourceJSON `json:"sources,omitempty"`
	Confidence     float64      `json:"confidence,omitempty"`
	Usage          *usageJSON   `json:"usage,omitempty"`
	Error          string       `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	tenantID := tenantFrom(r)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendFrame(conn, wsFrame{Type: "error", Error: "invalid message format"})
			continue
		}
		if req.Message == "" {
			s.sendFrame(conn, wsFrame{Type: "error", ConversationID: req.ConversationID, Error: "message is required"})
			continue
		}
		if req.ConversationID == "" {
			req.ConversationID = uuid.NewString()
		}

		s.streamTurn(conn, r, tenantID, req)
	}
}

// streamTurn runs one streaming chat turn over the open connection. Frames
// arrive in order: sources, zero or more content, then complete or error.
func (s *Server) streamTurn(conn *websocket.Conn, r *http.Request, tenantID string, req wsRequest) {
	events, err := s.engine.RespondStream(r.Context(), engine.ChatRequest{
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		s.logger.Warn("starting stream failed",
			"conversation_id", req.ConversationID,
			"error", err,
		)
		s.sendFrame(conn, wsFrame{Type: "error", ConversationID: req.ConversationID, Error: err.Error()})
		return
	}

	for event := range events {
		frame := wsFrame{ConversationID: req.ConversationID}
		switch event.Type {
		case engine.EventSources:
			frame.Type = "sources"
			frame.Sources = sourcesJSON(event.Sources)
			frame.Confidence = event.Confidence.Overall
		case engine.EventContent:
			frame.Type = "content"
			frame.Delta = event.Delta
			frame.Content = event.Content
		case engine.EventComplete:
			frame.Type = "complete"
			frame.Content = event.Content
			if event.Usage != nil {
				frame.Usage = &usageJSON{
					InputTokens:  event.Usage.InputTokens,
					OutputTokens: event.Usage.OutputTokens,
					TotalTokens:  event.Usage.TotalTokens,
					Estimated:    event.Usage.Estimated,
				}
			}
		case engine.EventError:
			frame.Type = "error"
			frame.Error = event.Err.Error()
		}
		s.sendFrame(conn, frame)
	}
}

func (s *Server) sendFrame(conn *websocket.Conn, frame wsFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Warn("websocket write failed", "error", err)
	}
}
