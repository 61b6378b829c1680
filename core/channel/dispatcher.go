package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"musichud/logger"
	"musichud/model"

	"github.com/google/uuid"
)

var (
	// ErrUnknownChannel 未映射的频道名
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrNotConnected 客户端尚未完成兼容的连接握手
	ErrNotConnected = errors.New("client not connected")
)

const outboundBuffer = 256

// Transport 底层消息通道
type Transport interface {
	Send(clientID uuid.UUID, channel string, data []byte) error
}

// Gate 判断客户端是否已完成连接握手
type Gate interface {
	IsConnected(clientID uuid.UUID) bool
}

// Handler 包处理函数
type Handler func(ctx context.Context, client model.Client, pkt Packet) error

type outboundMessage struct {
	clientID uuid.UUID
	channel  string
	data     []byte
}

// Dispatcher 入站解码路由，出站统一经单一协程发送
type Dispatcher struct {
	transport Transport

	mu       sync.RWMutex
	handlers map[Kind]Handler
	gate     Gate

	outbound chan outboundMessage

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	stopped  chan struct{}
	runOnce  sync.Once
	stopOnce sync.Once
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(transport Transport) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		transport: transport,
		handlers:  make(map[Kind]Handler),
		outbound:  make(chan outboundMessage, outboundBuffer),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
}

// Handle 注册入站处理器
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// SetGate 设置连接判定，未设置时不拦截
func (d *Dispatcher) SetGate(g Gate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = g
}

// Run 出站发送循环，阻塞直到 Close
func (d *Dispatcher) Run() {
	d.runOnce.Do(func() {
		defer close(d.stopped)
		for {
			select {
			case msg := <-d.outbound:
				d.deliver(msg)
			case <-d.ctx.Done():
				return
			}
		}
	})
}

func (d *Dispatcher) deliver(msg outboundMessage) {
	if err := d.transport.Send(msg.clientID, msg.channel, msg.data); err != nil {
		logger.Warn("outbound send failed",
			logger.String("client", msg.clientID.String()),
			logger.String("channel", msg.channel),
			logger.ErrorField(err))
	}
}

// Close 停止出站循环并等待进行中的入站处理结束
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.inflight.Wait()
	})
}

// Receive 接收一条入站消息，除握手外解码与处理在独立协程中进行
func (d *Dispatcher) Receive(client model.Client, channel string, data []byte) error {
	kind, ok := KindFromChannel(channel)
	if !ok || kind.Direction() != Inbound {
		logger.Debug("dropping packet on unknown channel",
			logger.String("channel", channel),
			logger.String("client", client.Name))
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	d.mu.RLock()
	handler := d.handlers[kind]
	gate := d.gate
	d.mu.RUnlock()

	if kind != KindConnectRequest && gate != nil && !gate.IsConnected(client.ID) {
		logger.Debug("dropping packet from unconnected client",
			logger.String("kind", kind.String()),
			logger.String("client", client.Name))
		return ErrNotConnected
	}
	if handler == nil {
		logger.Debug("no handler registered", logger.String("kind", kind.String()))
		return nil
	}
	if d.ctx.Err() != nil {
		return d.ctx.Err()
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	// 握手同步处理，保证同一连接随后的消息能通过 gate
	if kind == KindConnectRequest {
		d.inflight.Add(1)
		defer d.inflight.Done()
		d.process(client, kind, handler, payload)
		return nil
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.process(client, kind, handler, payload)
	}()
	return nil
}

func (d *Dispatcher) process(client model.Client, kind Kind, handler Handler, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("packet handler panicked",
				logger.String("kind", kind.String()),
				logger.String("client", client.Name),
				logger.Any("panic", r))
		}
	}()

	pkt, err := DecodeFrame(kind, data)
	if err != nil {
		logger.Warn("malformed packet",
			logger.String("kind", kind.String()),
			logger.String("client", client.Name),
			logger.Int("bytes", len(data)),
			logger.ErrorField(err))
		return
	}
	logger.Debug("packet received",
		logger.String("kind", kind.String()),
		logger.String("client", client.Name))

	if err := handler(d.ctx, client, pkt); err != nil {
		logger.Warn("packet handler failed",
			logger.String("kind", kind.String()),
			logger.String("client", client.Name),
			logger.ErrorField(err))
	}
}

// Send 向单个客户端发送
func (d *Dispatcher) Send(clientID uuid.UUID, pkt Packet) {
	d.enqueue(outboundMessage{clientID: clientID, channel: pkt.Kind().Channel(), data: EncodeFrame(pkt)})
}

// Broadcast 向一组客户端发送同一个包，只编码一次
func (d *Dispatcher) Broadcast(clients []model.Client, pkt Packet) {
	if len(clients) == 0 {
		return
	}
	channel := pkt.Kind().Channel()
	data := EncodeFrame(pkt)
	for _, c := range clients {
		d.enqueue(outboundMessage{clientID: c.ID, channel: channel, data: data})
	}
}

func (d *Dispatcher) enqueue(msg outboundMessage) {
	select {
	case d.outbound <- msg:
	case <-d.ctx.Done():
	}
}
