package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mazerun/protocol"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20 // 1MB，足够容纳大地图
	sendQueueSize  = 64
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewClientConn 包装已升级的连接，需另行启动 writePump
func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）。
// 与 Close 一样只在房间线程中调用。
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃消息（防止阻塞房间线程）
		return false
	}
}

// Close 关闭发送队列，由写协程发送关闭帧并断开连接；不会阻塞房间线程
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.send)
	})
	return nil
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// 队列已关闭：排空的消息已写出，补发关闭帧
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，解码后投递给房间
func (c *ClientConn) readPump(room *Room, sessionID string) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在事件线程中移除该会话
	defer room.RequestLeave(sessionID)
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				room.log.Debugw("read error", "session", sessionID, "error", err)
			}
			return
		}
		env, err := protocol.Decode(payload)
		if err != nil {
			room.metrics.IncIgnored()
			room.log.Warnw("undecodable message", "session", sessionID, "error", err)
			continue
		}
		room.Deliver(sessionID, env)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 浏览器客户端与服务端分开部署，允许所有来源
		return true
	},
}

// HandleWS WebSocket 接入：/ws?room=<id>，不带 room 时自动匹配有空位的房间
func (m *RoomManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnw("upgrade error", "error", err)
		return
	}

	sessionID := uuid.NewString()
	client := NewClientConn(ws)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	var room *Room
	if roomID != "" {
		room, err = m.JoinRoom(ctx, roomID, sessionID, client)
	} else {
		room, err = m.JoinOrCreate(ctx, sessionID, client)
	}
	if err != nil {
		code, reason := websocket.CloseInternalServerErr, "join failed"
		if errors.Is(err, ErrRoomFull) {
			code, reason = websocket.CloseTryAgainLater, ErrRoomFull.Error()
		}
		m.log.Infow("join failed", "room", roomID, "session", sessionID, "error", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	go client.writePump()
	go client.readPump(room, sessionID)
}
