package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"musichud/core/channel"
	"musichud/core/codec"
	"musichud/logger"
	"musichud/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var (
	// ErrClientGone 客户端没有活动连接
	ErrClientGone = errors.New("client has no active connection")
	// ErrSendBufferFull 发送缓冲区已满，连接会被断开
	ErrSendBufferFull = errors.New("send buffer full")
)

// ReceiveFunc 入站消息回调，通常为 Dispatcher.Receive
type ReceiveFunc func(client model.Client, channel string, data []byte) error

// Conn 单个 WebSocket 连接
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	send   chan []byte
	client model.Client
}

// Hub 维护 clientID -> 连接，实现 channel.Transport
type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn

	receive ReceiveFunc
	onLeave func(model.Client)

	unregister chan *Conn
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[uuid.UUID]*Conn),
		unregister: make(chan *Conn),
		done:       make(chan struct{}),
	}
}

// Bind 设置入站回调与断开回调，必须在 Run 之前调用
func (h *Hub) Bind(receive ReceiveFunc, onLeave func(model.Client)) {
	h.receive = receive
	h.onLeave = onLeave
}

// Run 启动 Hub 主循环，断开回调在此协程内串行执行
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.unregister:
			h.unregisterConn(c)
		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有连接
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// registerConn 同一 UUID 的新连接替换旧连接，会话保持
func (h *Hub) registerConn(c *Conn) {
	h.mu.Lock()
	old, exists := h.conns[c.client.ID]
	h.conns[c.client.ID] = c
	if exists {
		close(old.send)
	}
	total := len(h.conns)
	h.mu.Unlock()

	if exists {
		logger.Info("connection replaced", logger.String("client", c.client.Name))
	}
	logger.Info("connection registered",
		logger.String("client", c.client.Name),
		logger.String("uuid", c.client.ID.String()),
		logger.Int("connections", total))
}

func (h *Hub) unregisterConn(c *Conn) {
	if !h.remove(c) {
		return
	}
	if h.onLeave != nil {
		h.onLeave(c.client)
	}
	logger.Info("connection unregistered", logger.String("client", c.client.Name))
}

// remove 仅当 c 仍是当前连接时移除，返回是否移除
func (h *Hub) remove(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.conns[c.client.ID]; !ok || cur != c {
		return false
	}
	delete(h.conns, c.client.ID)
	close(c.send)
	return true
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for id, c := range h.conns {
		conns = append(conns, c)
		close(c.send)
		delete(h.conns, id)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if h.onLeave != nil {
			h.onLeave(c.client)
		}
	}
}

// Register 同步注册连接，返回后出站消息即可送达
func (h *Hub) Register(c *Conn) bool {
	select {
	case <-h.done:
		close(c.send)
		return false
	default:
	}
	h.registerConn(c)
	return true
}

// Unregister 注销连接
func (h *Hub) Unregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send 把包体封装为 (频道名, 包体) 帧发往客户端
func (h *Hub) Send(clientID uuid.UUID, ch string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[clientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientGone, clientID)
	}
	select {
	case c.send <- EncodeEnvelope(ch, data):
		return nil
	default:
		go c.ws.Close()
		return fmt.Errorf("%w: %s", ErrSendBufferFull, clientID)
	}
}

// EncodeEnvelope 频道名以 varint 长度字符串写在包体之前
func EncodeEnvelope(ch string, data []byte) []byte {
	w := codec.NewWriter()
	w.WriteString(ch)
	w.WriteRaw(data)
	return w.Bytes()
}

// DecodeEnvelope 拆出频道名与包体
func DecodeEnvelope(frame []byte) (string, []byte, error) {
	r := codec.NewReader(frame)
	ch, err := r.ReadString()
	if err != nil {
		return "", nil, fmt.Errorf("解析频道名失败: %w", err)
	}
	return ch, r.Rest(), nil
}

func newConn(h *Hub, ws *websocket.Conn, client model.Client) *Conn {
	return &Conn{hub: h, ws: ws, send: make(chan []byte, sendBuffer), client: client}
}

// ReadPump 读取入站帧并交给 Dispatcher
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("client", c.client.Name))
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		ch, payload, err := DecodeEnvelope(message)
		if err != nil {
			logger.Warn("invalid frame", logger.String("client", c.client.Name), logger.ErrorField(err))
			continue
		}
		if c.hub.receive == nil {
			continue
		}
		if err := c.hub.receive(c.client, ch, payload); err != nil {
			if errors.Is(err, channel.ErrUnknownChannel) || errors.Is(err, channel.ErrNotConnected) {
				continue
			}
			logger.Warn("inbound frame rejected",
				logger.String("client", c.client.Name),
				logger.String("channel", ch),
				logger.ErrorField(err))
		}
	}
}

// WritePump 发送出站帧并定期 ping
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
