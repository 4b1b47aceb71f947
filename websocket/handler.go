package websocket

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512

	// 每个客户端的发送缓冲
	sendBuffer = 256
)

// SnapshotFunc 返回新连接收到的第一条消息，通常是投票的当前状态
type SnapshotFunc func(ctx context.Context, pollID uint64) (interface{}, error)

// Handler WebSocket处理器
type Handler struct {
	hub      *Hub
	snapshot SnapshotFunc
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler 创建WebSocket处理器
// allowedOrigins 为空或包含 "*" 时接受任意来源
func NewHandler(hub *Hub, snapshot SnapshotFunc, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:      hub,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleWebSocketConnection 处理WebSocket连接请求
func (h *Handler) HandleWebSocketConnection(c *gin.Context) {
	pollID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid poll ID", "code": "InvalidRequest"})
		return
	}

	var initial interface{}
	if h.snapshot != nil {
		// 投票不存在时在升级前返回错误
		initial, err = h.snapshot(c.Request.Context(), pollID)
		if err != nil {
			_ = c.Error(err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Uint64("poll_id", pollID), zap.Error(err))
		return
	}

	client := NewClient(pollID, sendBuffer)
	if !h.hub.RegisterClient(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	if initial != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(initial); err != nil {
			h.hub.UnregisterClient(client)
			_ = conn.Close()
			return
		}
	}

	go h.writePump(conn, client)
	go h.readPump(conn, client)

	h.logger.Info("websocket connected", zap.Uint64("poll_id", pollID), zap.String("remote", c.ClientIP()))
}

// readPump 读取并丢弃客户端消息，只用于处理 pong 和关闭
func (h *Handler) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.Uint64("poll_id", client.PollID), zap.Error(err))
			}
			return
		}
	}
}

// writePump 向WebSocket连接发送消息，每个事件一帧
func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
