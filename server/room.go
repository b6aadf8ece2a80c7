package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mazerun/protocol"
	"mazerun/state"
)

// RoomConfig 房间参数
type RoomConfig struct {
	MaxClients int
	PatchRate  int           // 每秒广播 playerChanged 的次数
	DrainGrace time.Duration // 无人后保留多久
	HostPolicy HostPolicy
}

// DefaultRoomConfig 参考配置：4 人房间，20Hz 广播
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		MaxClients: 4,
		PatchRate:  DefaultPatchRate,
		DrainGrace: 5 * time.Second,
		HostPolicy: HostFreeze,
	}
}

// Room 房间会话控制器：独占 RoomState，单 goroutine 按到达顺序处理事件
type Room struct {
	ID string

	cfg     RoomConfig
	state   *state.RoomState
	players map[string]*Player
	dirty   map[string]bool // 本 Tick 内位置变化过的会话

	events    chan any
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once

	phase   atomic.Int32
	tickSeq atomic.Int64
	drain   *time.Timer
	drainC  <-chan time.Time

	metrics   *RoomMetrics
	log       *zap.SugaredLogger
	onDispose func(*Room)
}

// NewRoom 创建房间，初始化数据结构；需调用 Start 启动事件循环
func NewRoom(id string, cfg RoomConfig, log *zap.SugaredLogger) *Room {
	if log == nil {
		log = Log
	}
	if cfg.MaxClients < 1 {
		cfg.MaxClients = 1
	}
	if cfg.PatchRate < 1 {
		cfg.PatchRate = DefaultPatchRate
	}
	log = log.With("room", id)
	return &Room{
		ID:      id,
		cfg:     cfg,
		state:   state.New(log),
		players: make(map[string]*Player),
		dirty:   make(map[string]bool),
		events:  make(chan any, 256), // 足够缓冲，避免网络读阻塞
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: &RoomMetrics{},
		log:     log,
	}
}

// Phase 当前生命周期阶段（可在任意协程读取）
func (r *Room) Phase() Phase { return Phase(r.phase.Load()) }

// Metrics 房间运行指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Tick 已执行的广播帧数
func (r *Room) Tick() int64 { return r.tickSeq.Load() }

// Done 房间销毁后关闭
func (r *Room) Done() <-chan struct{} { return r.done }

// Close 请求销毁房间（断开所有会话）
func (r *Room) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Join 加入房间；满员返回 ErrRoomFull
func (r *Room) Join(ctx context.Context, sessionID string, conn Sender) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, joinEvent{sessionID: sessionID, conn: conn, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomDisposed
		}
	case <-ctx.Done():
		// 事件已入队，房间线程稍后仍可能接纳该会话；接纳成功则立即请求离开，以免占位
		go func() {
			select {
			case err := <-reply:
				if err == nil {
					r.RequestLeave(sessionID)
				}
			case <-r.done:
			}
		}()
		return ctx.Err()
	}
}

// RequestLeave 请求在房间线程中移除会话，避免并发改动房间状态
func (r *Room) RequestLeave(sessionID string) {
	select {
	case r.events <- leaveEvent{sessionID: sessionID}:
	case <-r.done:
	}
}

// Deliver 入站消息。位置更新拥塞时直接丢弃（后写覆盖前写，下一帧会补上），其余消息等待入队。
func (r *Room) Deliver(sessionID string, env protocol.Envelope) {
	ev := messageEvent{sessionID: sessionID, env: env}
	if env.Type == protocol.TypeUpdatePosition {
		select {
		case r.events <- ev:
		case <-r.done:
		default:
			r.metrics.IncPositionsDropped()
		}
		return
	}
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Inspect 在房间线程中生成概要
func (r *Room) Inspect(ctx context.Context) (RoomInfo, error) {
	reply := make(chan RoomInfo, 1)
	if err := r.send(ctx, inspectEvent{reply: reply}); err != nil {
		return RoomInfo{ID: r.ID, Phase: PhaseDisposed.String()}, err
	}
	select {
	case info := <-reply:
		return info, nil
	case <-r.done:
		return RoomInfo{ID: r.ID, Phase: PhaseDisposed.String()}, ErrRoomDisposed
	case <-ctx.Done():
		return RoomInfo{}, ctx.Err()
	}
}

// Configure 运行时更新房间参数，返回更新后的配置
func (r *Room) Configure(ctx context.Context, u ConfigUpdate) (RoomConfig, error) {
	reply := make(chan RoomConfig, 1)
	if err := r.send(ctx, configEvent{update: u, reply: reply}); err != nil {
		return RoomConfig{}, err
	}
	select {
	case cfg := <-reply:
		return cfg, nil
	case <-r.done:
		return RoomConfig{}, ErrRoomDisposed
	case <-ctx.Done():
		return RoomConfig{}, ctx.Err()
	}
}

func (r *Room) send(ctx context.Context, ev any) error {
	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return ErrRoomDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle 在房间线程中执行一个事件
func (r *Room) handle(ev any) {
	switch e := ev.(type) {
	case joinEvent:
		e.reply <- r.handleJoin(e.sessionID, e.conn)
	case leaveEvent:
		r.handleLeave(e.sessionID)
	case messageEvent:
		r.handleMessage(e)
	case inspectEvent:
		e.reply <- r.info()
	case configEvent:
		if e.update.MaxClients != nil && *e.update.MaxClients > 0 {
			r.cfg.MaxClients = *e.update.MaxClients
		}
		if e.update.HostPolicy != nil {
			r.cfg.HostPolicy = *e.update.HostPolicy
		}
		r.log.Infow("config updated", "maxClients", r.cfg.MaxClients, "hostPolicy", r.cfg.HostPolicy)
		e.reply <- r.cfg
	default:
		r.log.Errorw("unexpected room event", "event", fmt.Sprintf("%T", ev))
	}
}

func (r *Room) handleJoin(sessionID string, conn Sender) error {
	if r.state.Len() >= r.cfg.MaxClients {
		r.metrics.IncJoinsRejected()
		r.log.Warnw("join rejected: room full", "session", sessionID, "clients", r.state.Len(), "max", r.cfg.MaxClients)
		return fmt.Errorf("%w: %d/%d", ErrRoomFull, r.state.Len(), r.cfg.MaxClients)
	}
	if _, ok := r.players[sessionID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, sessionID)
	}

	transform := r.state.AddPlayer(sessionID)
	r.players[sessionID] = &Player{SessionID: sessionID, JoinedAt: time.Now(), Conn: conn}

	switch r.Phase() {
	case PhaseEmpty:
		r.stopDrain()
		r.setPhase(PhaseFilling)
		// 先到先得，之后不再重新选举
		r.state.SetHost(sessionID)
		r.log.Infow("host assigned", "session", sessionID)
		r.setPhase(PhaseActive)
	case PhaseDraining:
		r.stopDrain()
		r.setPhase(PhaseActive)
		if r.cfg.HostPolicy == HostPromote {
			r.state.SetHost(sessionID)
			r.log.Infow("host assigned", "session", sessionID)
		}
	}

	r.sendTo(conn, protocol.TypeWelcome, protocol.Welcome{
		SessionID:  sessionID,
		RoomID:     r.ID,
		HostID:     r.state.HostID(),
		MaxClients: r.cfg.MaxClients,
	})
	r.sendTo(conn, protocol.TypeSnapshot, protocol.Snapshot{
		HostID:  r.state.HostID(),
		Players: r.state.Players(),
	})
	r.broadcastExcept(sessionID, protocol.TypePlayerAdded, protocol.PlayerEvent{Player: transform})
	r.log.Infow("player joined", "session", sessionID, "clients", r.state.Len())
	return nil
}

func (r *Room) handleLeave(sessionID string) {
	p, ok := r.players[sessionID]
	if !ok {
		r.metrics.IncUnknownSession()
		r.log.Warnw("leave for unknown session", "session", sessionID)
		return
	}
	delete(r.players, sessionID)
	delete(r.dirty, sessionID)
	r.state.RemovePlayer(sessionID)
	if err := p.Conn.Close(); err != nil {
		r.log.Debugw("closing connection", "session", sessionID, "error", err)
	}
	r.broadcast(protocol.TypePlayerRemoved, protocol.PlayerRemoved{SessionID: sessionID})
	r.log.Infow("player left", "session", sessionID, "clients", r.state.Len())

	if sessionID == r.state.HostID() {
		switch r.cfg.HostPolicy {
		case HostDispose:
			r.dispose("host left")
			return
		case HostPromote:
			if ids := r.state.SessionIDs(); len(ids) > 0 {
				r.state.SetHost(ids[0])
				r.broadcast(protocol.TypeHostChanged, protocol.HostChanged{HostID: ids[0]})
				r.log.Infow("host promoted", "from", sessionID, "to", ids[0])
			}
		default:
			r.log.Warnw("host left, host id kept", "host", sessionID)
		}
	}

	if len(r.players) == 0 {
		r.setPhase(PhaseDraining)
		r.armDrain()
	}
}

func (r *Room) handleMessage(e messageEvent) {
	p, ok := r.players[e.sessionID]
	if !ok {
		// 已离开的会话的残留消息
		r.metrics.IncUnknownSession()
		r.log.Warnw("message from unknown session", "session", e.sessionID, "type", e.env.Type)
		return
	}

	switch e.env.Type {
	case protocol.TypeUpdatePosition:
		var m protocol.UpdatePosition
		if err := protocol.DecodePayload(e.env, &m); err != nil {
			r.ignore(e, err)
			return
		}
		if r.state.UpdatePlayerTransform(e.sessionID, m.X, m.Y, m.Z, m.RotationY) {
			r.dirty[e.sessionID] = true
		}
		r.metrics.IncApplied()

	case protocol.TypeSetMapState:
		var m protocol.MapPayload
		if err := protocol.DecodePayload(e.env, &m); err != nil {
			r.ignore(e, err)
			return
		}
		w, err := r.state.WriterFor(e.sessionID)
		if err != nil {
			r.ignore(e, err)
			return
		}
		if err := w.SetMap(m.ToState()); err != nil {
			r.ignore(e, err)
			return
		}
		r.metrics.IncApplied()
		r.log.Infow("map stored", "session", e.sessionID, "width", m.Width, "height", m.Height)

	case protocol.TypeGetMapState:
		r.metrics.IncMapRequests()
		m, ok := r.state.GetMap()
		if !ok {
			// 房主尚未上传，不回复；客户端按超时重试
			r.ignore(e, errors.New("no map stored yet"))
			return
		}
		r.sendTo(p.Conn, protocol.TypeMapState, protocol.MapPayloadFrom(m))
		r.metrics.IncApplied()

	case protocol.TypeListMessageTypes:
		r.sendTo(p.Conn, protocol.TypeMessageTypes, protocol.MessageTypes{Types: protocol.ClientMessageTypes})
		r.metrics.IncApplied()

	case protocol.TypePing:
		var m protocol.Ping
		if err := protocol.DecodePayload(e.env, &m); err != nil {
			r.ignore(e, err)
			return
		}
		r.sendTo(p.Conn, protocol.TypePong, protocol.Pong{ClientTime: m.ClientTime, ServerTime: time.Now().UnixMilli()})
		r.metrics.IncApplied()

	default:
		r.ignore(e, fmt.Errorf("unrecognized message %q", e.env.Type))
	}
}

func (r *Room) ignore(e messageEvent, reason error) {
	r.metrics.IncIgnored()
	r.log.Warnw("message ignored",
		"session", e.sessionID,
		"type", e.env.Type,
		"error", fmt.Errorf("%w: %w", ErrProtocolIgnored, reason))
}

func (r *Room) info() RoomInfo {
	_, hasMap := r.state.GetMap()
	return RoomInfo{
		ID:         r.ID,
		Phase:      r.Phase().String(),
		Clients:    r.state.Len(),
		MaxClients: r.cfg.MaxClients,
		HostID:     r.state.HostID(),
		HasMap:     hasMap,
		Sessions:   r.state.SessionIDs(),
		Tick:       r.tickSeq.Load(),
		HostPolicy: r.cfg.HostPolicy.String(),
	}
}

func (r *Room) sendTo(conn Sender, msgType string, payload any) {
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		r.log.Errorw("encoding message", "type", msgType, "error", err)
		return
	}
	if !conn.Enqueue(b) {
		r.metrics.IncSendQueueFull()
	}
}

// broadcast 按加入顺序发给所有会话，只编码一次
func (r *Room) broadcast(msgType string, payload any) {
	r.broadcastExcept("", msgType, payload)
}

func (r *Room) broadcastExcept(skip string, msgType string, payload any) {
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		r.log.Errorw("encoding message", "type", msgType, "error", err)
		return
	}
	for _, id := range r.state.SessionIDs() {
		if id == skip {
			continue
		}
		if p := r.players[id]; p != nil && !p.Conn.Enqueue(b) {
			r.metrics.IncSendQueueFull()
		}
	}
}

func (r *Room) setPhase(p Phase) {
	old := Phase(r.phase.Swap(int32(p)))
	if old != p {
		r.log.Debugw("phase", "from", old, "to", p)
	}
}

func (r *Room) armDrain() {
	r.stopDrain()
	r.drain = time.NewTimer(r.cfg.DrainGrace)
	r.drainC = r.drain.C
}

func (r *Room) stopDrain() {
	if r.drain != nil {
		r.drain.Stop()
	}
	r.drain = nil
	r.drainC = nil
}

// dispose 断开所有连接并释放房间
func (r *Room) dispose(reason string) {
	if r.Phase() == PhaseDisposed {
		return
	}
	r.stopDrain()
	r.setPhase(PhaseDisposed)

	var err error
	for _, id := range r.state.SessionIDs() {
		if p := r.players[id]; p != nil {
			err = multierr.Append(err, p.Conn.Close())
		}
	}
	if err != nil {
		r.log.Warnw("closing connections", "error", err)
	}
	r.players = make(map[string]*Player)
	clear(r.dirty)
	r.log.Infow("room disposed", "reason", reason)
	close(r.done)
	if r.onDispose != nil {
		r.onDispose(r)
	}
}
