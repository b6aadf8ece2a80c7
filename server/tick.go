package server

import (
	"time"

	"mazerun/protocol"
)

const (
	// DefaultPatchRate 位置变更广播频率（20 次/秒）
	DefaultPatchRate = 20
)

func patchInterval(rate int) time.Duration {
	return time.Second / time.Duration(rate)
}

// Start 启动房间事件循环（单线程推进房间状态）
func (r *Room) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

func (r *Room) run() {
	ticker := time.NewTicker(patchInterval(r.cfg.PatchRate))
	defer ticker.Stop()
	// 从未有人加入的房间同样按空闲超时销毁
	r.armDrain()

	for r.Phase() != PhaseDisposed {
		select {
		case ev := <-r.events:
			r.handle(ev)
		case <-ticker.C:
			r.flushPatches()
		case <-r.drainC:
			r.drainC = nil
			if len(r.players) == 0 {
				r.dispose("idle")
			}
		case <-r.stop:
			r.dispose("shutdown")
		}
	}
}

// flushPatches 把本 Tick 内变化过的位置广播给所有会话；同一会话多次更新只发最后一次
func (r *Room) flushPatches() {
	start := time.Now()
	r.tickSeq.Add(1)
	if len(r.dirty) > 0 {
		sent := 0
		for _, p := range r.state.Players() {
			if !r.dirty[p.SessionID] {
				continue
			}
			r.broadcast(protocol.TypePlayerChanged, protocol.PlayerEvent{Player: p})
			sent++
		}
		clear(r.dirty)
		r.metrics.AddPatches(sent)
	}
	r.metrics.AddTick(time.Since(start).Nanoseconds())
}
