package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/llm"
	"github.com/seenimoa/futurenews/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced on the HTTP routes
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// WebSocket message types sent by the server.
const (
	WSTypeFragment = "fragment"
	WSTypeDone     = "done"
	WSTypeError    = "error"
)

// WSMessage is a message sent over the generation WebSocket.
type WSMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// handleGenerationWS upgrades to a WebSocket, reads one GenerationRequest
// and relays the model stream as fragment messages, ending with a done or
// error message. Closing the socket cancels generation.
func (s *Server) handleGenerationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	var req models.GenerationRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.log.Debug("websocket request read failed", zap.Error(err))
		wsWrite(conn, WSMessage{Type: WSTypeError, Data: "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	fragments, err := s.gen.Stream(ctx, req)
	if err != nil {
		if generationStatus(err) >= http.StatusInternalServerError {
			s.log.Error("websocket generation failed", zap.Error(err))
		}
		wsWrite(conn, WSMessage{Type: WSTypeError, Data: err.Error()})
		return
	}

	go wsReadPump(conn, cancel)
	wsWritePump(conn, fragments, s.log)
}

// wsReadPump keeps the read side alive for pongs and close frames. It
// cancels generation when the peer goes away.
func wsReadPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsWritePump relays fragments until the stream closes, pinging the peer
// while the model is quiet.
func wsWritePump(conn *websocket.Conn, fragments <-chan llm.Fragment, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frag, ok := <-fragments:
			if !ok {
				wsWrite(conn, WSMessage{Type: WSTypeDone})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if frag.Err != nil {
				log.Warn("websocket stream ended with error", zap.Error(frag.Err))
				wsWrite(conn, WSMessage{Type: WSTypeError, Data: frag.Err.Error()})
				return
			}
			if err := wsWrite(conn, WSMessage{Type: WSTypeFragment, Data: frag.Text}); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func wsWrite(conn *websocket.Conn, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
