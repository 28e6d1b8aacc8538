package handler

import (
	"net/http"
	"sync"
	"time"

	"s3shift-go/internal/model"
	"s3shift-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressHub 把迁移进度快照实时推送给所有 WebSocket 订阅者。
// 它实现了 service.ProgressSink，由状态机在每条记录处理后调用。
type ProgressHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewProgressHub 创建一个新的 ProgressHub 实例。
func NewProgressHub() *ProgressHub {
	return &ProgressHub{clients: make(map[*websocket.Conn]bool)}
}

// Publish 实现 service.ProgressSink。写失败的连接直接摘除。
func (h *ProgressHub) Publish(snapshot model.StateSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snapshot); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Handle 升级连接并订阅进度推送，连接断开时自动退订。
func (h *ProgressHub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("ProgressHub: websocket upgrade failed", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// 订阅方不需要发消息，读循环只用于感知断开
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
