package sync

import (
	"context"
	"log"
	"time"
)

// HeartbeatMonitor 周期性向已连接对端发送心跳, 并把超时的对端
// 降级为 Stale、长期失联的驱逐。
type HeartbeatMonitor struct {
	s          *Synchronizer
	interval   time.Duration
	staleAfter time.Duration
	evictAfter time.Duration
}

// NewHeartbeatMonitor 创建心跳监控。
func NewHeartbeatMonitor(s *Synchronizer, cfg Config) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		s:          s,
		interval:   cfg.HeartbeatInterval,
		staleAfter: cfg.StaleThreshold,
		evictAfter: cfg.EvictThreshold,
	}
}

// Run 运行心跳循环直到 ctx 取消。
func (hm *HeartbeatMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	log.Printf("[Heartbeat] ✅ 心跳监控已启动: 间隔=%v, 超时=%v", hm.interval, hm.staleAfter)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Heartbeat] 🛑 心跳监控已停止")
			return ctx.Err()
		case <-ticker.C:
			hm.broadcast(ctx)
			hm.check()
		}
	}
}

// broadcast 向所有 Connected 对端发送心跳。
func (hm *HeartbeatMonitor) broadcast(ctx context.Context) {
	for _, p := range hm.s.peers.Connected() {
		msg := hm.s.newMessage(MsgHeartbeat, p.ID)
		if err := hm.s.send(ctx, p, msg); err != nil {
			log.Printf("[Heartbeat] 发送到 %s 失败: %v", p.ID, err)
		}
	}
}

// check 扫描超时, 关闭被驱逐对端的连接并更新指标。
func (hm *HeartbeatMonitor) check() {
	for _, p := range hm.s.peers.CheckTimeouts(hm.staleAfter, hm.evictAfter) {
		if err := hm.s.transport.ClosePeer(p.Addr); err != nil {
			log.Printf("[Heartbeat] 关闭 %s 连接失败: %v", p.ID, err)
		}
	}
	hm.s.metrics.PeersConnected.Set(float64(len(hm.s.peers.Connected())))
}

// OnHeartbeat 处理一条入站心跳。
func (hm *HeartbeatMonitor) OnHeartbeat(nodeID string) {
	hm.s.peers.Touch(nodeID)
}
