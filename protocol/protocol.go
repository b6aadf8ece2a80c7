// Package protocol 定义房间连接上双向传输的消息。
// 每条 WebSocket 文本帧是一个 JSON 信封：{"type": "...", "payload": {...}}。
package protocol

import (
	"encoding/json"
	"fmt"

	"mazerun/state"
)

// 客户端 → 服务端
const (
	TypeUpdatePosition   = "updatePosition"
	TypeSetMapState      = "setMapState"
	TypeGetMapState      = "getMapState"
	TypeListMessageTypes = "listMessageTypes"
	TypePing             = "ping"
)

// 服务端 → 客户端
const (
	TypeWelcome       = "welcome"
	TypeSnapshot      = "snapshot"
	TypePlayerAdded   = "playerAdded"
	TypePlayerChanged = "playerChanged"
	TypePlayerRemoved = "playerRemoved"
	TypeHostChanged   = "hostChanged"
	TypeMapState      = "mapState"
	TypeMessageTypes  = "messageTypes"
	TypePong          = "pong"
)

// ClientMessageTypes 服务端接受的消息名（诊断用）
var ClientMessageTypes = []string{
	TypeUpdatePosition,
	TypeSetMapState,
	TypeGetMapState,
	TypeListMessageTypes,
	TypePing,
}

// Envelope 线上信封，payload 延迟解码
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UpdatePosition 本地玩家每帧上报的位置
type UpdatePosition struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	RotationY float64 `json:"rotationY"`
}

// MapPayload setMapState 与 mapState 共用的载荷
type MapPayload struct {
	Data       []int      `json:"data"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	FogColor   [3]float64 `json:"fogColor"`
	FogDensity float64    `json:"fogDensity"`
}

// ToState 转为房间状态中保存的地图
func (p MapPayload) ToState() state.MapState {
	return state.MapState{
		Data:       p.Data,
		Width:      p.Width,
		Height:     p.Height,
		FogColor:   p.FogColor,
		FogDensity: p.FogDensity,
	}
}

// MapPayloadFrom 由房间地图构造 mapState 载荷
func MapPayloadFrom(m state.MapState) MapPayload {
	return MapPayload{
		Data:       m.Data,
		Width:      m.Width,
		Height:     m.Height,
		FogColor:   m.FogColor,
		FogDensity: m.FogDensity,
	}
}

// Welcome 加入成功后首先发给新会话
type Welcome struct {
	SessionID  string `json:"sessionId"`
	RoomID     string `json:"roomId"`
	HostID     string `json:"hostId"`
	MaxClients int    `json:"maxClients"`
}

// Snapshot 新会话加入时的全量玩家列表（按加入顺序）
type Snapshot struct {
	HostID  string                  `json:"hostId"`
	Players []state.PlayerTransform `json:"players"`
}

// PlayerEvent playerAdded 与 playerChanged 共用
type PlayerEvent struct {
	Player state.PlayerTransform `json:"player"`
}

// PlayerRemoved 会话离开
type PlayerRemoved struct {
	SessionID string `json:"sessionId"`
}

// HostChanged 房主转移
type HostChanged struct {
	HostID string `json:"hostId"`
}

// MessageTypes listMessageTypes 的回复
type MessageTypes struct {
	Types []string `json:"types"`
}

// Ping 延迟探测，clientTime 为客户端毫秒时间戳
type Ping struct {
	ClientTime int64 `json:"clientTime"`
}

// Pong 原样带回 clientTime，并附服务端时间
type Pong struct {
	ClientTime int64 `json:"clientTime"`
	ServerTime int64 `json:"serverTime"`
}

// Encode 打包为信封字节
func Encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", msgType, err)
		}
		env.Payload = b
	}
	return json.Marshal(env)
}

// MustEncode 用于载荷类型固定、不可能失败的场景
func MustEncode(msgType string, payload any) []byte {
	b, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode 解析信封
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// DecodePayload 将信封载荷解码到 v；空载荷视为 {}
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
