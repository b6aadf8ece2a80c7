package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mazerun/protocol"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1 << 20
	sendQueueSize  = 64
	inboundSize    = 256
)

var (
	ErrClosed         = errors.New("client: connection closed")
	ErrSendQueueFull  = errors.New("client: send queue full")
	ErrInboundDropped = errors.New("client: inbound queue full")
)

// 可被后续消息覆盖的通知；队列满时丢弃。其余通知改变房间结构，必须送达。
var droppable = map[string]bool{
	protocol.TypePlayerChanged: true,
	protocol.TypePong:          true,
	protocol.TypeMessageTypes:  true,
}

// Transport 房间连接：发送信封，接收状态通知与地图回复
type Transport interface {
	Send(msgType string, payload any) error
	Inbound() <-chan protocol.Envelope
	MapReplies() <-chan protocol.MapPayload
	// Done 连接断开后关闭
	Done() <-chan struct{}
}

// Conn 基于 gorilla/websocket 的客户端连接。
// 读协程把 mapState 直接投递到 MapReplies，其余消息进入 Inbound：
// 位置变更在队列满时丢弃，加入、离开、房主变更等通知阻塞等待送达。
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	inbound chan protocol.Envelope
	maps    chan protocol.MapPayload
	done    chan struct{}
	closing chan struct{}
	log     *zap.SugaredLogger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	readErr   error
}

// Dial 连接服务端，url 形如 ws://host:port/ws?room=xxx
func Dial(ctx context.Context, url string, log *zap.SugaredLogger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := newConn(ws, log)
	go c.writePump()
	go c.readPump()
	return c, nil
}

func newConn(ws *websocket.Conn, log *zap.SugaredLogger) *Conn {
	return &Conn{
		ws:      ws,
		send:    make(chan []byte, sendQueueSize),
		inbound: make(chan protocol.Envelope, inboundSize),
		maps:    make(chan protocol.MapPayload, 1),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		log:     log,
	}
}

// Inbound 状态通知，连接断开后关闭
func (c *Conn) Inbound() <-chan protocol.Envelope { return c.inbound }

// MapReplies 最新一份 mapState 回复
func (c *Conn) MapReplies() <-chan protocol.MapPayload { return c.maps }

// Done 读协程退出后关闭
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err 读协程退出的原因
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Send 编码并入队，不阻塞调用方
func (c *Conn) Send(msgType string, payload any) error {
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrSendQueueFull, msgType)
	}
}

// Close 发送关闭帧，停止写协程并关闭底层连接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		close(c.closing)

		werr := c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		if errors.Is(werr, websocket.ErrCloseSent) {
			werr = nil
		}
		err = multierr.Append(werr, c.ws.Close())
	})
	return err
}

func (c *Conn) writePump() {
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Debugw("write failed", "err", err)
			return
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		close(c.inbound)
		close(c.done)
	}()
	c.ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugw("read loop ended", "err", err)
			}
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			c.log.Warnw("bad message from server", "err", err)
			continue
		}
		if env.Type == protocol.TypeMapState {
			c.deliverMap(env)
			continue
		}
		if droppable[env.Type] {
			select {
			case c.inbound <- env:
			default:
				c.log.Debugw("dropping server message", "type", env.Type, "err", ErrInboundDropped)
			}
			continue
		}
		// 结构性通知等待渲染循环取走，期间读协程暂停
		select {
		case c.inbound <- env:
		case <-c.closing:
			return
		}
	}
}

// deliverMap 只保留最新的一份地图回复
func (c *Conn) deliverMap(env protocol.Envelope) {
	var p protocol.MapPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		c.log.Warnw("bad mapState payload", "err", err)
		return
	}
	select {
	case <-c.maps:
	default:
	}
	c.maps <- p
}
