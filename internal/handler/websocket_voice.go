package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser test consoles connect cross-origin; auth happens at the
	// session level, not the socket level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handlers) registerWebSocketRoutes(engine *gin.Engine) {
	engine.GET("/ws/voice/:callId", h.handleVoiceSocket)
}

// VoiceSocketMessage is the frame format on the live transcript feed.
// Clients push transcript frames; the server answers with reply
// frames carrying the assistant's utterance.
type VoiceSocketMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Final  bool   `json:"final,omitempty"`
	Hangup bool   `json:"hangup,omitempty"`
}

// handleVoiceSocket is the websocket twin of the gather webhook: each
// final transcript frame runs one turn of the conversation.
func (h *Handlers) handleVoiceSocket(c *gin.Context) {
	callID := c.Param("callId")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("callId", callID),
			zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	ctx := c.Request.Context()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		var msg VoiceSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read failed",
					zap.String("callId", callID),
					zap.Error(err))
			}
			return
		}

		if msg.Type != "transcript" || !msg.Final || msg.Text == "" {
			continue
		}

		in := h.controller.HandleInput(ctx, callID, "", msg.Text, "")
		reply := VoiceSocketMessage{
			Type:   "reply",
			Text:   in.Say,
			Hangup: in.Hangup,
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("WebSocket write failed",
				zap.String("callId", callID),
				zap.Error(err))
			return
		}
		if in.Hangup {
			return
		}
	}
}
