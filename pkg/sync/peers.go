package sync

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// PeerManager 维护对端表和连接状态机。
// 状态迁移集中在 transition 中校验, 非法迁移直接报错而不是悄悄忽略。
type PeerManager struct {
	mu    sync.RWMutex
	peers map[string]*PeerInfo

	// onConnected 在对端进入 Connected 时触发, 用于连接时摘要交换。
	onConnected func(peer PeerInfo)
}

// NewPeerManager 创建对端管理器。
func NewPeerManager() *PeerManager {
	return &PeerManager{
		peers: make(map[string]*PeerInfo),
	}
}

// OnConnected 注册对端上线回调。
func (pm *PeerManager) OnConnected(fn func(peer PeerInfo)) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.onConnected = fn
}

// Discover 登记一个新发现的对端。已知对端只刷新地址与能力。
// 已驱逐的对端不在表中, 重新被发现时从头走状态机。
func (pm *PeerManager) Discover(id, addr, protocolVersion string, capabilities []string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if p, ok := pm.peers[id]; ok {
		p.Addr = addr
		p.ProtocolVersion = protocolVersion
		p.Capabilities = capabilities
		p.LastSeen = time.Now()
		return
	}

	pm.peers[id] = &PeerInfo{
		ID:              id,
		Addr:            addr,
		State:           PeerDiscovered,
		ProtocolVersion: protocolVersion,
		Capabilities:    capabilities,
		LastSeen:        time.Now(),
	}
	log.Printf("[Peers] ✨ 发现新节点: %s (%s)", id, addr)
}

// transition 执行一次状态迁移。调用方持有 pm.mu。
func (pm *PeerManager) transition(p *PeerInfo, to PeerState) error {
	if !validTransition(p.State, to) {
		return fmt.Errorf("非法状态迁移: %s → %s (节点 %s)", p.State, to, p.ID)
	}
	from := p.State
	p.State = to
	log.Printf("[Peers] 节点 %s: %s → %s", p.ID, from, to)
	return nil
}

// MarkConnecting 把对端从 Discovered 推进到 Connecting。
func (pm *PeerManager) MarkConnecting(id string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	p, ok := pm.peers[id]
	if !ok {
		return fmt.Errorf("未知节点: %s", id)
	}
	return pm.transition(p, PeerConnecting)
}

// MarkConnected 把对端推进到 Connected 并触发上线回调。
// Stale 的对端恢复心跳后也走这里。
func (pm *PeerManager) MarkConnected(id string) error {
	pm.mu.Lock()
	p, ok := pm.peers[id]
	if !ok {
		pm.mu.Unlock()
		return fmt.Errorf("未知节点: %s", id)
	}
	if err := pm.transition(p, PeerConnected); err != nil {
		pm.mu.Unlock()
		return err
	}
	p.Failures = 0
	p.LastSeen = time.Now()
	cb := pm.onConnected
	snapshot := *p
	pm.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return nil
}

// MarkFailed 记一次连接失败, Connecting 的对端退回 Discovered。
func (pm *PeerManager) MarkFailed(id string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	p, ok := pm.peers[id]
	if !ok {
		return
	}
	p.Failures++
	if p.State == PeerConnecting {
		_ = pm.transition(p, PeerDiscovered)
	}
}

// Touch 刷新对端的最近活跃时间, Stale 对端恢复为 Connected。
func (pm *PeerManager) Touch(id string) {
	pm.mu.Lock()
	p, ok := pm.peers[id]
	if !ok {
		pm.mu.Unlock()
		return
	}
	p.LastSeen = time.Now()
	if p.State != PeerStale {
		pm.mu.Unlock()
		return
	}
	if err := pm.transition(p, PeerConnected); err != nil {
		pm.mu.Unlock()
		return
	}
	p.Failures = 0
	cb := pm.onConnected
	snapshot := *p
	pm.mu.Unlock()

	log.Printf("[Peers] ✅ 节点 %s 恢复在线", id)
	if cb != nil {
		cb(snapshot)
	}
}

// MarkSynced 记录一次成功同步的时间。
func (pm *PeerManager) MarkSynced(id string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if p, ok := pm.peers[id]; ok {
		p.LastSync = time.Now()
	}
}

// CheckTimeouts 扫描对端表, 超时的 Connected 降为 Stale,
// 长期 Stale 的驱逐并从表中移除。返回本轮被驱逐的对端快照,
// 调用方负责关闭它们的连接。
func (pm *PeerManager) CheckTimeouts(staleAfter, evictAfter time.Duration) []PeerInfo {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := time.Now()
	var evicted []PeerInfo
	for id, p := range pm.peers {
		idle := now.Sub(p.LastSeen)
		switch p.State {
		case PeerConnected:
			if idle > staleAfter {
				_ = pm.transition(p, PeerStale)
				log.Printf("[Peers] ⚠️ 节点 %s 心跳超时 (%v)", p.ID, idle.Round(time.Second))
			}
		case PeerStale:
			if idle > evictAfter {
				_ = pm.transition(p, PeerEvicted)
				evicted = append(evicted, *p)
				delete(pm.peers, id)
				log.Printf("[Peers] 🗑️ 节点 %s 已驱逐", p.ID)
			}
		}
	}
	return evicted
}

// Get 返回对端信息的副本。
func (pm *PeerManager) Get(id string) (PeerInfo, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	p, ok := pm.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return *p, true
}

// Connected 返回所有 Connected 状态的对端, 按 ID 排序。
func (pm *PeerManager) Connected() []PeerInfo {
	return pm.inState(PeerConnected)
}

// Discovered 返回所有待连接的对端, 按 ID 排序。
func (pm *PeerManager) Discovered() []PeerInfo {
	return pm.inState(PeerDiscovered)
}

func (pm *PeerManager) inState(s PeerState) []PeerInfo {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	var out []PeerInfo
	for _, p := range pm.peers {
		if p.State == s {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All 返回全部对端, 按 ID 排序。
func (pm *PeerManager) All() []PeerInfo {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]PeerInfo, 0, len(pm.peers))
	for _, p := range pm.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
