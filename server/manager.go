package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomManager 管理多个房间的生命周期
type RoomManager struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	created map[string]time.Time
	cfg     RoomConfig
	log     *zap.SugaredLogger
}

// NewRoomManager 创建房间管理器；log 为 nil 时使用全局 Log
func NewRoomManager(cfg RoomConfig, log *zap.SugaredLogger) *RoomManager {
	if log == nil {
		log = Log
	}
	return &RoomManager{
		rooms:   make(map[string]*Room),
		created: make(map[string]time.Time),
		cfg:     cfg,
		log:     log,
	}
}

// GetOrCreateRoom 获取或创建房间，并确保事件循环已启动
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok || r.Phase() == PhaseDisposed {
		r = m.newRoomLocked(id)
	}
	return r
}

func (m *RoomManager) newRoomLocked(id string) *Room {
	r := NewRoom(id, m.cfg, m.log)
	r.onDispose = m.remove
	m.rooms[id] = r
	m.created[id] = time.Now()
	r.Start()
	m.log.Infow("room created", "room", id)
	return r
}

// Get 按 ID 查找
func (m *RoomManager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// JoinRoom 加入指定房间；房间恰好被销毁时重建后重试
func (m *RoomManager) JoinRoom(ctx context.Context, roomID, sessionID string, conn Sender) (*Room, error) {
	for attempt := 0; attempt < 3; attempt++ {
		r := m.GetOrCreateRoom(roomID)
		err := r.Join(ctx, sessionID, conn)
		if errors.Is(err, ErrRoomDisposed) {
			continue
		}
		return r, err
	}
	return nil, ErrRoomDisposed
}

// JoinOrCreate 加入最早创建且有空位的房间，都满时新建一个
func (m *RoomManager) JoinOrCreate(ctx context.Context, sessionID string, conn Sender) (*Room, error) {
	for _, r := range m.ordered() {
		if r.Phase() == PhaseDisposed {
			continue
		}
		err := r.Join(ctx, sessionID, conn)
		if err == nil {
			return r, nil
		}
		if errors.Is(err, ErrRoomFull) || errors.Is(err, ErrRoomDisposed) {
			continue
		}
		return nil, err
	}
	return m.JoinRoom(ctx, uuid.NewString(), sessionID, conn)
}

func (m *RoomManager) ordered() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := m.created[out[i].ID], m.created[out[j].ID]
		if ci.Equal(cj) {
			return out[i].ID < out[j].ID
		}
		return ci.Before(cj)
	})
	return out
}

// Rooms 所有存活房间的概要，按创建时间排序
func (m *RoomManager) Rooms(ctx context.Context) []RoomInfo {
	rooms := m.ordered()
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		info, err := r.Inspect(ctx)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out
}

// remove 房间销毁回调；只移除同一个实例
func (m *RoomManager) remove(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.ID]; ok && cur == r {
		delete(m.rooms, r.ID)
		delete(m.created, r.ID)
	}
}

// Shutdown 关闭所有房间并等待其退出
func (m *RoomManager) Shutdown(ctx context.Context) error {
	rooms := m.ordered()
	for _, r := range rooms {
		r.Close()
	}
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
