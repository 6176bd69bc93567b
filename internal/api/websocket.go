package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/interaction"
	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/session"
)

// WebSocket message types for the live editing protocol
const (
	// Client -> Server messages
	MsgTypePointerDown = "pointer:down"
	MsgTypePointerMove = "pointer:move"
	MsgTypePointerUp   = "pointer:up"
	MsgTypeWheel       = "wheel"
	MsgTypeKey         = "key"
	MsgTypeViewport    = "viewport"
	MsgTypePing        = "ping"

	// Server -> Client messages
	MsgTypeView  = "view"
	MsgTypePong  = "pong"
	MsgTypeError = "error"
)

// defaultMaxMessageKB caps a single client message when no limit is set.
const defaultMaxMessageKB = 64

const writeWait = 10 * time.Second

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams an editing session over a WebSocket. Clients send
// pointer, wheel and key events; every committed change pushes a fresh view.
type WebSocketHandler struct {
	sessionMgr SessionManager
	upgrader   websocket.Upgrader
	readLimit  int64
	logger     *log.Logger
}

// NewWebSocketHandler creates a new WebSocket session handler. maxMessageKB
// <= 0 uses 64KB.
func NewWebSocketHandler(sessionMgr SessionManager, maxMessageKB int, logger *log.Logger) *WebSocketHandler {
	if maxMessageKB <= 0 {
		maxMessageKB = defaultMaxMessageKB
	}
	return &WebSocketHandler{
		sessionMgr: sessionMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		readLimit: int64(maxMessageKB) * 1024,
		logger:    logging.OrDefault(logger).WithPrefix("ws"),
	}
}

// wsConn serializes writes to one connection.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Timestamp = time.Now().UnixMilli()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) sendView(id string, view interaction.View) error {
	return c.send(WSMessage{Type: MsgTypeView, ID: id, Payload: mustJSON(view)})
}

func (c *wsConn) sendError(id, message, code string) error {
	return c.send(WSMessage{Type: MsgTypeError, ID: id, Payload: mustJSON(WSErrorResponse{Message: message, Code: code})})
}

// HandleWebSocket upgrades HTTP connection to WebSocket and runs the editing protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("sessionId")
	events, cancel, err := wsh.sessionMgr.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.readLimit)

	conn := &wsConn{ws: ws}
	logger := wsh.logger.With("session", shortID(id))
	logger.Debug("client connected")

	view, err := wsh.sessionMgr.View(id)
	if err != nil {
		return nil
	}
	if err := conn.sendView("", view); err != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		wsh.pushViews(conn, id, events, stop, logger)
	}()

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("connection error", "err", err)
			}
			break
		}
		if err := wsh.handleMessage(conn, id, msg); err != nil {
			logger.Debug("write failed", "err", err)
			break
		}
	}

	// stop the pusher before the deferred Close tears the socket down
	close(stop)
	cancel()
	<-done
	logger.Debug("client disconnected")
	return nil
}

// pushViews sends one view per burst of change events until the session
// closes or stop is closed.
func (wsh *WebSocketHandler) pushViews(conn *wsConn, id string, events <-chan session.Event, stop <-chan struct{}, logger *log.Logger) {
pump:
	for range events {
		// coalesce whatever queued up meanwhile
	drain:
		for {
			select {
			case _, ok := <-events:
				if !ok {
					break pump
				}
			default:
				break drain
			}
		}

		view, err := wsh.sessionMgr.View(id)
		if err != nil {
			return
		}
		if err := conn.sendView("", view); err != nil {
			logger.Debug("push failed", "err", err)
			return
		}
	}
	select {
	case <-stop:
		return
	default:
	}
	// the session was closed or evicted under the client
	_ = conn.sendError("", "session closed", CodeSessionEnded)
	_ = conn.ws.Close()
}

// handleMessage applies one client message. Only write errors are returned.
func (wsh *WebSocketHandler) handleMessage(conn *wsConn, id string, msg WSMessage) error {
	var fn func(*interaction.Controller) error

	switch msg.Type {
	case MsgTypePing:
		wsh.sessionMgr.TouchSession(id)
		return conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID})
	case MsgTypePointerDown:
		var req pointerRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return conn.sendError(msg.ID, "Invalid pointer payload: "+err.Error(), CodeBadPayload)
		}
		if req.Target.Kind == "" {
			req.Target.Kind = interaction.TargetBackground
		}
		fn = pointerDown(req)
	case MsgTypePointerMove:
		var req pointerRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return conn.sendError(msg.ID, "Invalid pointer payload: "+err.Error(), CodeBadPayload)
		}
		fn = pointerMove(req)
	case MsgTypePointerUp:
		fn = pointerUp
	case MsgTypeWheel:
		var req wheelRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return conn.sendError(msg.ID, "Invalid wheel payload: "+err.Error(), CodeBadPayload)
		}
		fn = wheel(req)
	case MsgTypeKey:
		var req interaction.Key
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Key == "" {
			return conn.sendError(msg.ID, "Invalid key payload", CodeBadPayload)
		}
		fn = func(c *interaction.Controller) error {
			c.HandleKey(req)
			return nil
		}
	case MsgTypeViewport:
		var req camera.Viewport
		if err := json.Unmarshal(msg.Payload, &req); err != nil || !validViewport(req) {
			return conn.sendError(msg.ID, "Invalid viewport payload", CodeBadPayload)
		}
		fn = setViewport(req)
	default:
		return conn.sendError(msg.ID, "Unknown message type: "+msg.Type, CodeInvalidType)
	}

	if _, err := wsh.sessionMgr.Do(id, fn); err != nil {
		apiErr := FromError(err)
		return conn.sendError(msg.ID, apiErr.Message, apiErr.Code)
	}
	return nil
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
