package state

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mazerun/maze"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrNotHost        = errors.New("session is not the room host")
	ErrInvalidMap     = errors.New("invalid map state")
)

// PlayerTransform 玩家的位置与朝向（rotationY 为弧度）
type PlayerTransform struct {
	SessionID string  `json:"sessionId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	RotationY float64 `json:"rotationY"`
}

// MapState 房间共享地图：行优先一维格子 + 雾参数
type MapState struct {
	Data       []int      `json:"data"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	FogColor   [3]float64 `json:"fogColor"`
	FogDensity float64    `json:"fogDensity"`
}

// Validate 检查 len(data) == width*height 且格子编码合法
func (m MapState) Validate() error {
	if m.Width < 1 || m.Height < 1 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidMap, m.Width, m.Height)
	}
	if len(m.Data) != m.Width*m.Height {
		return fmt.Errorf("%w: %d cells for %dx%d", ErrInvalidMap, len(m.Data), m.Width, m.Height)
	}
	for i, c := range m.Data {
		if !maze.IsValidCell(c) {
			return fmt.Errorf("%w: cell %d has code %d", ErrInvalidMap, i, c)
		}
	}
	if m.FogDensity < 0 {
		return fmt.Errorf("%w: negative fog density", ErrInvalidMap)
	}
	return nil
}

// Clone 深拷贝，避免调用方持有内部切片
func (m MapState) Clone() MapState {
	out := m
	out.Data = append([]int(nil), m.Data...)
	return out
}

// RoomState 服务端权威房间状态。只由所属房间的事件循环访问，不加锁。
type RoomState struct {
	order   []string
	players map[string]*PlayerTransform
	hostID  string
	m       MapState
	hasMap  bool

	log *zap.SugaredLogger
}

// New 创建空房间状态；log 为 nil 时不输出
func New(log *zap.SugaredLogger) *RoomState {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RoomState{
		players: make(map[string]*PlayerTransform),
		log:     log,
	}
}

// AddPlayer 在原点创建玩家；已存在时返回现有值
func (s *RoomState) AddPlayer(sessionID string) PlayerTransform {
	if p, ok := s.players[sessionID]; ok {
		return *p
	}
	p := &PlayerTransform{SessionID: sessionID}
	s.players[sessionID] = p
	s.order = append(s.order, sessionID)
	return *p
}

// RemovePlayer 移除玩家，未知会话只记录警告
func (s *RoomState) RemovePlayer(sessionID string) bool {
	if _, ok := s.players[sessionID]; !ok {
		s.log.Warnw("remove for unknown session", "session", sessionID)
		return false
	}
	delete(s.players, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// UpdatePlayerTransform 覆盖写入（last-write-wins），返回是否有字段变化。
// 过期或乱序消息可能指向已离开的会话，此时忽略并记录警告。
func (s *RoomState) UpdatePlayerTransform(sessionID string, x, y, z, rotationY float64) bool {
	p, ok := s.players[sessionID]
	if !ok {
		s.log.Warnw("transform update for unknown session", "session", sessionID)
		return false
	}
	if p.X == x && p.Y == y && p.Z == z && p.RotationY == rotationY {
		return false
	}
	p.X, p.Y, p.Z, p.RotationY = x, y, z, rotationY
	return true
}

// Player 按会话读取
func (s *RoomState) Player(sessionID string) (PlayerTransform, bool) {
	p, ok := s.players[sessionID]
	if !ok {
		return PlayerTransform{}, false
	}
	return *p, true
}

// Players 按加入顺序返回副本
func (s *RoomState) Players() []PlayerTransform {
	out := make([]PlayerTransform, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.players[id])
	}
	return out
}

// SessionIDs 按加入顺序
func (s *RoomState) SessionIDs() []string {
	return append([]string(nil), s.order...)
}

func (s *RoomState) Len() int { return len(s.order) }

func (s *RoomState) SetHost(sessionID string) { s.hostID = sessionID }

// HostID 当前房主；房主离开后可能指向已不在房间的会话
func (s *RoomState) HostID() string { return s.hostID }

// GetMap 只读视图，返回副本
func (s *RoomState) GetMap() (MapState, bool) {
	if !s.hasMap {
		return MapState{}, false
	}
	return s.m.Clone(), true
}

// WriterFor 只有当前房主能拿到地图写入句柄
func (s *RoomState) WriterFor(sessionID string) (*MapWriter, error) {
	if sessionID == "" || sessionID != s.hostID {
		return nil, fmt.Errorf("%w: %q (host %q)", ErrNotHost, sessionID, s.hostID)
	}
	return &MapWriter{state: s, sessionID: sessionID}, nil
}

// MapWriter 房主专属的写入能力；地图只能经由它修改
type MapWriter struct {
	state     *RoomState
	sessionID string
}

func (w *MapWriter) SessionID() string { return w.sessionID }

// SetMap 校验后整体替换地图。房主变更后旧句柄失效。
func (w *MapWriter) SetMap(m MapState) error {
	if w.state.hostID != w.sessionID {
		return fmt.Errorf("%w: writer for %q, host is %q", ErrNotHost, w.sessionID, w.state.hostID)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	w.state.m = m.Clone()
	w.state.hasMap = true
	return nil
}
