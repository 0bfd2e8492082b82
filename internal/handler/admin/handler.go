package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/zhouzirui/invoice-relay/backend/pkg/utils"
)

// HistoryClearer 清空共享会话历史。
type HistoryClearer interface {
	Clear()
}

// Handler 管理接口的HTTP处理器
type Handler struct {
	history HistoryClearer
	logger  *log.Entry
}

// New 创建管理处理器
func New(history HistoryClearer) *Handler {
	return &Handler{
		history: history,
		logger:  log.WithField("component", "admin"),
	}
}

// RegisterRoutes 注册管理路由，调用方负责挂载鉴权中间件。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Post("/clear-chat", h.handleClearChat)
}

// handleRoot 健康检查
func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "API is working"})
}

// handleClearChat 清空会话历史。不向 socket 推送任何帧，每个连接只收到对自己请求的回复。
func (h *Handler) handleClearChat(w http.ResponseWriter, _ *http.Request) {
	h.history.Clear()
	h.logger.Info("conversation history cleared")

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Chat history cleared successfully",
		"success": true,
	})
}
