package server

import "mazerun/protocol"

// 进入房间事件循环的请求。所有对房间状态的修改都经由事件通道，在房间 goroutine 中按到达顺序执行。

type joinEvent struct {
	sessionID string
	conn      Sender
	reply     chan error
}

type leaveEvent struct {
	sessionID string
}

// messageEvent 某会话发来的一条协议消息
type messageEvent struct {
	sessionID string
	env       protocol.Envelope
}

type inspectEvent struct {
	reply chan RoomInfo
}

type configEvent struct {
	update ConfigUpdate
	reply  chan RoomConfig
}

// ConfigUpdate 运行时可调整的房间参数，nil 字段保持不变
type ConfigUpdate struct {
	MaxClients *int        `json:"maxClients,omitempty"`
	HostPolicy *HostPolicy `json:"-"`
}

// RoomInfo 房间只读概要（列表、监控用）
type RoomInfo struct {
	ID         string   `json:"id"`
	Phase      string   `json:"phase"`
	Clients    int      `json:"clients"`
	MaxClients int      `json:"maxClients"`
	HostID     string   `json:"hostId"`
	HasMap     bool     `json:"hasMap"`
	Sessions   []string `json:"sessions"`
	Tick       int64    `json:"tick"`
	HostPolicy string   `json:"hostPolicy"`
}
