package server

import (
	"fmt"
	"time"
)

// Sender 房间向某个会话发送数据的出口，由网络连接实现
type Sender interface {
	// Enqueue 非阻塞入队，队列满时返回 false
	Enqueue(b []byte) bool
	Close() error
}

// Player 房间内的一个会话（连接身份 + 发送端）
type Player struct {
	SessionID string
	JoinedAt  time.Time
	Conn      Sender
}

// HostPolicy 房主离开后的处理方式
type HostPolicy int

const (
	// HostFreeze 保留失效的 hostId，不再选举（参考实现的行为）
	HostFreeze HostPolicy = iota
	// HostPromote 由加入最早的剩余会话接任
	HostPromote
	// HostDispose 直接销毁房间
	HostDispose
)

// String 策略名，与配置取值一致
func (p HostPolicy) String() string {
	switch p {
	case HostFreeze:
		return "freeze"
	case HostPromote:
		return "promote"
	case HostDispose:
		return "dispose"
	}
	return fmt.Sprintf("HostPolicy(%d)", int(p))
}

// ParseHostPolicy 解析 freeze/promote/dispose
func ParseHostPolicy(s string) (HostPolicy, error) {
	switch s {
	case "", "freeze":
		return HostFreeze, nil
	case "promote":
		return HostPromote, nil
	case "dispose":
		return HostDispose, nil
	}
	return HostFreeze, fmt.Errorf("unknown host policy %q", s)
}

// Phase 房间生命周期：Empty → Filling → Active → Draining → Disposed
type Phase int32

const (
	PhaseEmpty Phase = iota
	PhaseFilling
	PhaseActive
	PhaseDraining
	PhaseDisposed
)

// String 阶段名（监控输出用）
func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseFilling:
		return "filling"
	case PhaseActive:
		return "active"
	case PhaseDraining:
		return "draining"
	case PhaseDisposed:
		return "disposed"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}
