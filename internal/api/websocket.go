package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/kisan-sarthi/backend/internal/auth"
	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

// WebSocket message types of the wizard progress stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSnapshot  = "snapshot"
	MsgTypeSettled   = "settled"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const wsWriteTimeout = 10 * time.Second

// WSMessage is the envelope of every stream message
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error message
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams wizard views to a browser or CLI
type WebSocketHandler struct {
	wizards  *wizard.Manager
	sessions auth.SessionValidator
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewWebSocketHandler creates a new wizard stream handler
func NewWebSocketHandler(wizards *wizard.Manager, sessions auth.SessionValidator, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		wizards:  wizards,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// CORS is handled by middleware; the token check below gates access
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		log: log,
	}
}

// tokenOf accepts the bearer header or, for browsers that cannot set headers
// on an upgrade, the "token" query parameter.
func tokenOf(c echo.Context) (string, bool) {
	if token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); ok {
		return token, true
	}
	token := c.QueryParam("token")
	return token, token != ""
}

// HandleWizardStream sends the current view of a wizard and then every change
// until a submission settles or the client goes away.
func (wsh *WebSocketHandler) HandleWizardStream(c echo.Context) error {
	token, ok := tokenOf(c)
	if !ok {
		return NewUnauthorizedError("missing bearer token")
	}
	sess, err := wsh.sessions.CurrentSession(c.Request().Context(), token)
	if err != nil {
		return err
	}

	id := c.Param("id")
	current, err := wsh.wizards.Get(id)
	if err != nil {
		return err
	}
	if current.OwnerID != sess.Principal.ID {
		return wizard.ErrNotFound
	}

	views, cancel, err := wsh.wizards.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()
	// Re-read after subscribing so no change falls between the two.
	if current, err = wsh.wizards.Get(id); err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := wsh.log.With(logger.String("wizard", id))
	log.Debug("progress stream connected")

	conn := &wsConn{ws: ws}
	conn.send(WSMessage{Type: MsgTypeConnected, ID: id})

	// Reader: answers pings and notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("progress stream read failed", logger.Error(err))
				}
				return
			}
			switch msg.Type {
			case MsgTypePing:
				conn.send(WSMessage{Type: MsgTypePong})
			default:
				conn.sendError("unknown message type: "+msg.Type, "INVALID_TYPE")
			}
		}
	}()

	// A submission that is already settled is reported once and the stream ends.
	submitting := current.Status == wizard.StatusSubmitting
	if err := conn.sendView(MsgTypeSnapshot, current); err != nil {
		return nil
	}

	for {
		select {
		case <-closed:
			log.Debug("progress stream closed by client")
			return nil
		case <-c.Request().Context().Done():
			return nil
		case v := <-views:
			if v.Status == wizard.StatusSubmitting {
				submitting = true
			}
			if submitting && v.Settled() {
				_ = conn.sendView(MsgTypeSettled, v)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(v.Status)),
					time.Now().Add(wsWriteTimeout))
				return nil
			}
			if err := conn.sendView(MsgTypeSnapshot, v); err != nil {
				return nil
			}
		}
	}
}

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) sendView(typ string, v wizard.View) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(WSMessage{Type: typ, ID: v.ID, Payload: payload})
}

func (c *wsConn) sendError(message, code string) {
	payload, _ := json.Marshal(WSErrorResponse{Message: message, Code: code})
	_ = c.send(WSMessage{Type: MsgTypeError, Payload: payload})
}
