package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/zhouzirui/invoice-relay/backend/internal/model/chat"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/registry"
)

const (
	// ClearedMessage 是清空历史后的确认文本。
	ClearedMessage = "Chat history has been cleared."
	// ErrorMessage 是处理失败时返回给客户端的文本。
	ErrorMessage = "Sorry, I encountered an error processing your message."

	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	// maxMessageSize 是单帧允许的最大字节数，超出时连接被关闭。
	maxMessageSize = 64 * 1024
)

// Processor 执行一次聊天轮次并返回可直接展示给用户的回复。
type Processor interface {
	Process(ctx context.Context, message string) string
}

// HistoryClearer 清空共享会话历史。
type HistoryClearer interface {
	Clear()
}

// WebSocketHandler 处理 /ws/chat 连接：读取一帧、处理、回复一帧，严格串行。
type WebSocketHandler struct {
	processor Processor
	history   HistoryClearer
	registry  *registry.Registry
	upgrader  websocket.Upgrader
	logger    *log.Entry
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(processor Processor, history HistoryClearer, reg *registry.Registry) *WebSocketHandler {
	return &WebSocketHandler{
		processor: processor,
		history:   history,
		registry:  reg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.WithField("component", "websocket"),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

// connection 是一个已注册的 socket。写操作加锁，允许广播与会话回复并发。
type connection struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) ID() string { return c.id }

func (c *connection) WriteText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *connection) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.WriteText(string(data))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{id: uuid.NewString(), conn: conn}
	logger := h.logger.WithField("session", c.id)

	h.registry.Register(c)
	defer h.registry.Deregister(c)
	logger.Info("connection established")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.pingLoop(ctx, c)

	for {
		// The deadline is renewed per frame so a long agent turn does not
		// count against the idle budget.
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.WithError(err).Warn("set read deadline failed")
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.WithError(err).Warn("read error")
			}
			logger.Info("connection closed")
			return
		}

		resp := h.handleFrame(ctx, c.id, string(data))
		if err := c.writeJSON(resp); err != nil {
			logger.WithError(err).Warn("write response failed")
			return
		}
	}
}

// handleFrame 将一帧转换为恰好一个回复信封。处理过程中的 panic 会变成失败信封，连接保持可用。
func (h *WebSocketHandler) handleFrame(ctx context.Context, sessionID, raw string) (resp chat.ChatResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.WithField("session", sessionID).Errorf("panic handling frame: %v", rec)
			resp = chat.NewErrorResponse(sessionID, ErrorMessage, fmt.Errorf("%v", rec))
		}
	}()

	frame := chat.Decode(raw)
	h.logger.WithFields(log.Fields{"session": sessionID, "kind": frame.Kind}).Debug("frame received")

	switch frame.Kind {
	case chat.FrameClear:
		h.history.Clear()
		return chat.NewResponse(frame.Message.SessionID, ClearedMessage)
	case chat.FrameChat:
		reply := h.processor.Process(ctx, frame.Text)
		return chat.NewResponse(frame.Message.SessionID, reply)
	case chat.FrameRawText:
		if chat.IsClearText(frame.Text) {
			h.history.Clear()
			return chat.NewResponse(sessionID, ClearedMessage)
		}
		reply := h.processor.Process(ctx, frame.Text)
		return chat.NewResponse(sessionID, reply)
	default:
		return chat.NewErrorResponse(sessionID, ErrorMessage, frame.Err)
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
