// Package ws pushes post status change events to connected UI clients.
// Delivery is best-effort: a consumer that cannot keep up is dropped.
package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// Event 推送给前端的帖子状态变更
type Event struct {
	Type      string    `json:"type"`
	PostID    int64     `json:"post_id"`
	AccountID int64     `json:"account_id"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	At        time.Time `json:"at"`
}

const eventPostUpdated = "post.updated"

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub 维护全部连接并向它们广播事件；实现 service.StatusNotifier。
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 服务在私有反代之后，跨源检查交给部署层
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// NotifyPostStatus broadcasts one status change. Never blocks the caller:
// clients with a full send buffer are disconnected.
func (h *Hub) NotifyPostStatus(postID, accountID int64, status, errorCode string) {
	event := Event{
		Type:      eventPostUpdated,
		PostID:    postID,
		AccountID: accountID,
		Status:    status,
		ErrorCode: errorCode,
		At:        time.Now().UTC(),
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if len(slow) > 0 {
		log.Printf("[WS] dropped slow consumers: n=%d", len(slow))
	}
}

// ClientCount 当前连接数；测试与系统信息接口用
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and subscribes the connection until it closes.
// GET /api/ws
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	cl := &client{conn: conn, send: make(chan Event, sendBufferSize)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// Close 断开所有连接；服务停机时调用
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop drains client frames so pongs and close frames are processed;
// inbound payloads are ignored.
func (h *Hub) readLoop(cl *client) {
	defer h.drop(cl)
	cl.conn.SetReadLimit(512)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case event, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := cl.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	_ = cl.conn.Close()
}
