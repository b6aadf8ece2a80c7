package client

import (
	"time"

	"go.uber.org/zap"

	"mazerun/protocol"
	"mazerun/state"
)

// DefaultSmoothing 每帧向目标靠近的比例（位置与朝向共用）
const DefaultSmoothing = 0.15

// Renderer 渲染句柄的生命周期
type Renderer interface {
	Spawn(sessionID string, t Transform, visible bool)
	Move(sessionID string, t Transform)
	Despawn(sessionID string)
}

// InputSource 提供本地玩家当前的位置
type InputSource interface {
	LocalTransform() Transform
}

// SceneLoader 根据地图网格搭建场景
type SceneLoader interface {
	LoadScene(grid [][]int, fog Fog)
}

// Reconciler 把服务端房间状态映射到本地渲染句柄。
// 所有方法都应在同一个渲染协程中调用。
type Reconciler struct {
	tr     Transport
	render Renderer
	input  InputSource
	alpha  float64
	index  *LocalPlayerIndex
	log    *zap.SugaredLogger

	roomID     string
	hostID     string
	maxClients int
	ready      bool
	closed     bool
	rtt        time.Duration
	types      []string
}

// NewReconciler alpha 不在 (0,1] 内时使用 DefaultSmoothing
func NewReconciler(tr Transport, render Renderer, input InputSource, alpha float64, log *zap.SugaredLogger) *Reconciler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultSmoothing
	}
	return &Reconciler{
		tr:     tr,
		render: render,
		input:  input,
		alpha:  alpha,
		index:  NewLocalPlayerIndex(),
		log:    log,
	}
}

// Tick 每帧调用一次：
// 先处理已到达的通知，再推进远端玩家的插值，最后上报本地位置。
func (r *Reconciler) Tick() error {
	r.drain()
	r.advance()
	if r.closed {
		return ErrClosed
	}
	t := r.input.LocalTransform()
	return r.tr.Send(protocol.TypeUpdatePosition, protocol.UpdatePosition{
		X: t.X, Y: t.Y, Z: t.Z, RotationY: t.RotationY,
	})
}

func (r *Reconciler) drain() {
	in := r.tr.Inbound()
	for {
		select {
		case env, ok := <-in:
			if !ok {
				r.closed = true
				return
			}
			r.apply(env)
		default:
			return
		}
	}
}

func (r *Reconciler) advance() {
	for _, id := range r.index.order {
		e := r.index.entries[id]
		if e.local {
			continue
		}
		e.current = Step(e.current, e.target, r.alpha)
		r.render.Move(id, e.current)
	}
}

func (r *Reconciler) apply(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeWelcome:
		var p protocol.Welcome
		if !r.decode(env, &p) {
			return
		}
		r.index.SetLocal(p.SessionID)
		r.roomID = p.RoomID
		r.hostID = p.HostID
		r.maxClients = p.MaxClients
		r.ready = true
		r.log.Infow("joined room", "room", p.RoomID, "session", p.SessionID, "host", p.HostID)
	case protocol.TypeSnapshot:
		var p protocol.Snapshot
		if !r.decode(env, &p) {
			return
		}
		r.hostID = p.HostID
		for _, pl := range p.Players {
			r.added(pl)
		}
	case protocol.TypePlayerAdded:
		var p protocol.PlayerEvent
		if r.decode(env, &p) {
			r.added(p.Player)
		}
	case protocol.TypePlayerChanged:
		var p protocol.PlayerEvent
		if !r.decode(env, &p) {
			return
		}
		e, ok := r.index.entries[p.Player.SessionID]
		if !ok {
			// 可能早于 playerAdded 到达，直接补建
			r.added(p.Player)
			return
		}
		if !e.local {
			e.target = fromState(p.Player)
		}
	case protocol.TypePlayerRemoved:
		var p protocol.PlayerRemoved
		if !r.decode(env, &p) {
			return
		}
		if r.index.remove(p.SessionID) {
			r.render.Despawn(p.SessionID)
		}
	case protocol.TypeHostChanged:
		var p protocol.HostChanged
		if r.decode(env, &p) {
			r.log.Infow("host changed", "from", r.hostID, "to", p.HostID)
			r.hostID = p.HostID
		}
	case protocol.TypePong:
		var p protocol.Pong
		if r.decode(env, &p) {
			r.rtt = time.Since(time.UnixMilli(p.ClientTime))
		}
	case protocol.TypeMessageTypes:
		var p protocol.MessageTypes
		if r.decode(env, &p) {
			r.types = p.Types
		}
	default:
		r.log.Debugw("unhandled message", "type", env.Type)
	}
}

func (r *Reconciler) added(p state.PlayerTransform) {
	t := fromState(p)
	if !r.index.add(p.SessionID, t) {
		return
	}
	// 本地玩家由相机控制，只登记不显示
	r.render.Spawn(p.SessionID, t, p.SessionID != r.index.Local())
}

func (r *Reconciler) decode(env protocol.Envelope, v any) bool {
	if err := protocol.DecodePayload(env, v); err != nil {
		r.log.Warnw("bad payload", "type", env.Type, "err", err)
		return false
	}
	return true
}

// Ping 发送一次延迟探测，结果在后续 Tick 中更新到 RTT
func (r *Reconciler) Ping() error {
	return r.tr.Send(protocol.TypePing, protocol.Ping{ClientTime: time.Now().UnixMilli()})
}

// RequestMessageTypes 请求服务端支持的消息列表
func (r *Reconciler) RequestMessageTypes() error {
	return r.tr.Send(protocol.TypeListMessageTypes, struct{}{})
}

// Ready 是否已收到 welcome
func (r *Reconciler) Ready() bool { return r.ready }

func (r *Reconciler) SessionID() string { return r.index.Local() }

func (r *Reconciler) RoomID() string { return r.roomID }

func (r *Reconciler) HostID() string { return r.hostID }

// IsHost 本地会话是否为房主
func (r *Reconciler) IsHost() bool { return r.ready && r.hostID == r.index.Local() }

func (r *Reconciler) MaxClients() int { return r.maxClients }

// RTT 最近一次 ping 的往返时延
func (r *Reconciler) RTT() time.Duration { return r.rtt }

func (r *Reconciler) MessageTypes() []string { return r.types }

func (r *Reconciler) Index() *LocalPlayerIndex { return r.index }

func fromState(p state.PlayerTransform) Transform {
	return Transform{X: p.X, Y: p.Y, Z: p.Z, RotationY: p.RotationY}
}
