package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
	"github.com/tonyzinh/system-hospital-backend/pkg/orchestrator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame is a websocket message in either direction.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// The socket keeps its own conversation so follow-up questions are sent
// with history. Questions are answered one at a time, in order.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	var history []models.Message
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read ended", "error", err)
			}
			return
		}

		if frame.Type != "question" {
			s.send(conn, "error", "Tipo de mensagem não suportado: "+frame.Type)
			continue
		}

		answer, err := s.svc.Orchestrator.Complete(ctx, orchestrator.Request{
			Question: frame.Content,
			History:  history,
		})
		if err != nil {
			s.send(conn, "error", detail(err))
			continue
		}
		history = append(history,
			models.Message{Role: models.RoleUser, Content: frame.Content},
			models.Message{Role: models.RoleAssistant, Content: answer},
		)
		s.send(conn, "answer", answer)
	}
}

func (s *Server) send(conn *websocket.Conn, kind, content string) {
	if err := conn.WriteJSON(Frame{Type: kind, Content: content}); err != nil {
		s.logger.Warn("Error sending websocket message", "error", err)
	}
}
