package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
)

// MemNetwork 是测试用的进程内网络, 按地址注册端点, 支持按概率丢包
// 和分区隔离两侧端点。
type MemNetwork struct {
	mu        sync.Mutex
	endpoints map[string]*MemTransport
	lossRate  float64
	rng       *rand.Rand
	partition map[string]int // 地址 → 分区编号, 不同编号互不可达
}

// NewMemNetwork 创建内存网络。
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{
		endpoints: make(map[string]*MemTransport),
		partition: make(map[string]int),
		rng:       rand.New(rand.NewSource(42)),
	}
}

// SetLossRate 设置丢包概率, 取值 [0,1)。
func (n *MemNetwork) SetLossRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lossRate = rate
}

// Partition 把一组地址划入指定分区, 不同分区之间消息全部丢弃。
func (n *MemNetwork) Partition(group int, addrs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, addr := range addrs {
		n.partition[addr] = group
	}
}

// Heal 解除所有分区。
func (n *MemNetwork) Heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partition = make(map[string]int)
}

// Endpoint 创建并注册一个地址的端点。
func (n *MemNetwork) Endpoint(addr string) *MemTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := &MemTransport{net: n, addr: addr}
	n.endpoints[addr] = t
	return t
}

// deliver 执行丢包与分区判定后投递消息。
func (n *MemNetwork) deliver(from, to string, msg *SyncMessage) error {
	n.mu.Lock()
	target, ok := n.endpoints[to]
	if ok && n.partition[from] != n.partition[to] {
		ok = false // 跨分区不可达
	}
	dropped := ok && n.lossRate > 0 && n.rng.Float64() < n.lossRate
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("地址不可达: %s", to)
	}
	if dropped {
		return nil // 丢包对发送方是静默的
	}

	// 穿过编解码往返, 和真实链路一致
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var copied SyncMessage
	if err := json.Unmarshal(data, &copied); err != nil {
		return err
	}

	target.mu.Lock()
	handler := target.handler
	target.mu.Unlock()
	if handler != nil {
		handler(&copied)
	}
	return nil
}

// MemTransport 是 MemNetwork 上的一个端点。
type MemTransport struct {
	net  *MemNetwork
	addr string

	mu      sync.Mutex
	handler func(msg *SyncMessage)
	closed  bool
}

// Start 注册入站消息处理器。
func (t *MemTransport) Start(ctx context.Context, handler func(msg *SyncMessage)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.handler = handler
	return nil
}

// Send 投递一条消息到目标端点。
func (t *MemTransport) Send(ctx context.Context, addr string, msg *SyncMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()
	return t.net.deliver(t.addr, addr, msg)
}

// Addr 返回端点地址。
func (t *MemTransport) Addr() string {
	return t.addr
}

// ClosePeer 在内存网络上没有连接可关, 为空操作。
func (t *MemTransport) ClosePeer(addr string) error {
	return nil
}

// Close 停止接收。
func (t *MemTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.handler = nil
	return nil
}
