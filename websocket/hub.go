package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/mq"
)

// Client 代表一个WebSocket连接客户端
type Client struct {
	// 订阅的投票ID
	PollID uint64

	// 消息发送通道
	send chan []byte
}

// NewClient 创建订阅某个投票的客户端
func NewClient(pollID uint64, buffer int) *Client {
	return &Client{PollID: pollID, send: make(chan []byte, buffer)}
}

// Messages 待发送给客户端的消息，注销后关闭
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Hub 维护活跃的客户端集合并向客户端广播事件
type Hub struct {
	// 已注册的客户端，按投票ID分组
	clients map[uint64]map[*Client]bool

	// 注册请求
	register chan *Client

	// 注销请求
	unregister chan *Client

	// Run 退出后关闭
	done chan struct{}

	// 互斥锁保护clients map
	mu     sync.RWMutex
	logger *zap.Logger
}

var _ mq.Publisher = (*Hub)(nil)

// NewHub 创建一个新的Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[uint64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 启动Hub消息处理循环，ctx 结束时断开所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.PollID]; !ok {
				h.clients[client.PollID] = make(map[*Client]bool)
			}
			h.clients[client.PollID][client] = true
			n := len(h.clients[client.PollID])
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.Uint64("poll_id", client.PollID), zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.Uint64("poll_id", client.PollID))

		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// removeLocked 删除客户端并关闭其发送通道，调用方持有写锁
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.PollID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.PollID)
	}
}

// Publish 把事件广播给订阅该投票的客户端
func (h *Hub) Publish(_ context.Context, ev mq.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	h.BroadcastToPoll(ev.PollID, payload)
	return nil
}

// BroadcastToPoll 向特定投票的所有连接客户端广播消息
// 发送缓冲区已满的客户端会被断开
func (h *Hub) BroadcastToPoll(pollID uint64, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[pollID]
	delivered := 0
	for client := range clients {
		select {
		case client.send <- payload:
			delivered++
		default:
			h.removeLocked(client)
			h.logger.Warn("dropping slow client", zap.Uint64("poll_id", pollID))
		}
	}
	h.logger.Debug("broadcast", zap.Uint64("poll_id", pollID), zap.Int("clients", delivered))
}

// ClientCount 返回订阅某个投票的客户端数量
func (h *Hub) ClientCount(pollID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[pollID])
}

// RegisterClient 注册客户端到Hub，Hub 已停止时返回 false
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient 从Hub中注销客户端
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
