package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount        int64 // 统计的 Tick 次数
	MessagesApplied  int64 // 被应用的消息数
	ProtocolIgnored  int64 // 非法/越权/未知消息
	UnknownSession   int64 // 指向已离开会话的消息
	JoinsRejected    int64 // 因满员被拒绝的加入
	PatchesSent      int64 // 广播出去的 playerChanged 条数
	PositionsDropped int64 // 因事件通道满被丢弃的位置更新
	SendQueueFull    int64 // 因发送队列满被丢弃的出站消息
	MapRequests      int64 // getMapState 请求数
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
}

func (m *RoomMetrics) IncApplied()          { atomic.AddInt64(&m.MessagesApplied, 1) }
func (m *RoomMetrics) IncIgnored()          { atomic.AddInt64(&m.ProtocolIgnored, 1) }
func (m *RoomMetrics) IncUnknownSession()   { atomic.AddInt64(&m.UnknownSession, 1) }
func (m *RoomMetrics) IncJoinsRejected()    { atomic.AddInt64(&m.JoinsRejected, 1) }
func (m *RoomMetrics) AddPatches(n int)     { atomic.AddInt64(&m.PatchesSent, int64(n)) }
func (m *RoomMetrics) IncPositionsDropped() { atomic.AddInt64(&m.PositionsDropped, 1) }
func (m *RoomMetrics) IncSendQueueFull()    { atomic.AddInt64(&m.SendQueueFull, 1) }
func (m *RoomMetrics) IncMapRequests()      { atomic.AddInt64(&m.MapRequests, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"messages_applied":  atomic.LoadInt64(&m.MessagesApplied),
		"protocol_ignored":  atomic.LoadInt64(&m.ProtocolIgnored),
		"unknown_session":   atomic.LoadInt64(&m.UnknownSession),
		"joins_rejected":    atomic.LoadInt64(&m.JoinsRejected),
		"patches_sent":      atomic.LoadInt64(&m.PatchesSent),
		"positions_dropped": atomic.LoadInt64(&m.PositionsDropped),
		"send_queue_full":   atomic.LoadInt64(&m.SendQueueFull),
		"map_requests":      atomic.LoadInt64(&m.MapRequests),
		"avg_tick_ms":       avgMs,
	}
}
