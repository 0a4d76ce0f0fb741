package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/handler/view"
	"github.com/retailbot/support-widget/internal/service/engine"
	chatservice "github.com/retailbot/support-widget/internal/service/chat"
	"github.com/retailbot/support-widget/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	outboxSize   = 64
)

// WebSocketHandler 小部件的 WebSocket 通道，一个连接对应一个会话
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, log *logrus.Entry) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/widget/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 用户输入
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connection struct {
	conn      *websocket.Conn
	engine    *engine.Engine
	sessionID string
	outbox    chan outgoingMessage
	ctx       context.Context
	cancel    context.CancelFunc
	log       *logrus.Entry

	// mu orders the initial snapshot ahead of engine events.
	mu sync.Mutex
}

// handleWebSocket 处理WebSocket连接。未携带 sessionId 时新建会话，断开时销毁。
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	owned := false
	if sessionID == "" {
		session, err := h.chatSvc.CreateSession(r.Context(), r.URL.Query().Get("displayName"))
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		sessionID = session.ID
		owned = true
	}

	eng, err := h.chatSvc.Engine(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		if owned {
			_ = h.chatSvc.CloseSession(context.Background(), sessionID)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		conn:      conn,
		engine:    eng,
		sessionID: sessionID,
		outbox:    make(chan outgoingMessage, outboxSize),
		ctx:       ctx,
		cancel:    cancel,
		log:       h.log.WithField("session_id", sessionID),
	}
	c.log.Info("websocket connected")

	c.mu.Lock()
	snapshot, unsubscribe := eng.Subscribe(func(ev engine.Event) {
		frame := view.NewFrame(ev)
		c.send(frame.Type, frame.Data)
	})
	c.enqueueLocked("snapshot", view.NewSnapshot(snapshot))
	c.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop()

	unsubscribe()
	cancel()
	<-writerDone

	if owned {
		if err := h.chatSvc.CloseSession(context.Background(), sessionID); err != nil && !errors.Is(err, chatservice.ErrSessionNotFound) {
			c.log.WithError(err).Warn("failed to close session")
		}
	}
	c.log.Info("websocket disconnected")
}

func (c *connection) send(kind string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(kind, data)
}

// enqueueLocked queues a frame. A client that cannot keep up is disconnected.
func (c *connection) enqueueLocked(kind string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	select {
	case c.outbox <- msg:
	case <-c.ctx.Done():
	default:
		c.log.Warn("websocket outbox full, dropping connection")
		c.cancel()
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]any{
		"message": message,
		"state":   c.engine.State(),
	})
}

func (c *connection) readLoop() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.ctx.Err() == nil {
				c.log.WithError(err).Debug("websocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.handleMessage(&msg)
		if c.ctx.Err() != nil {
			return
		}
	}
}

func (c *connection) handleMessage(msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError("invalid text payload")
			return
		}
		if !c.engine.Submit(text.Text) {
			c.sendError("message not accepted")
		}
	case "reset":
		if !c.engine.Reset() {
			c.sendError("reset not accepted")
		}
	case "ping":
		c.send("pong", nil)
	default:
		c.sendError("unsupported message type")
	}
}

// writeLoop owns every write on the connection.
func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.conn.Close()
			return
		case msg := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.WithError(err).Debug("websocket write failed")
				c.cancel()
				// Unblock the reader.
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				c.conn.Close()
				return
			}
		}
	}
}
