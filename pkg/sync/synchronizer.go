package sync

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/manager"
)

// Synchronizer 是同步子系统的中枢: 持有传输层、对端表和实例管理器,
// 负责消息路由、周期同步和增量广播。
//
// 同步协议是状态型的: 请求方带上本地摘要, 对方摘要一致就只回一个
// 确认, 不一致才传完整状态。收到状态后合并并把合并结果推回,
// 一次往返加一次回推即可双向收敛。
type Synchronizer struct {
	nodeID string
	cfg    Config
	mgr    *manager.Manager

	transport Transport
	peers     *PeerManager
	discovery *Discovery
	heartbeat *HeartbeatMonitor
	metrics   *Metrics

	seq      atomic.Uint64
	changes  chan string
	handlers map[string]func(ctx context.Context, msg *SyncMessage)

	mu         sync.Mutex
	priorities map[string]Priority
	lastSync   map[string]time.Time

	cancel context.CancelFunc
	group  *errgroup.Group
}

// SyncOption 配置 Synchronizer 的可选组件。
type SyncOption func(*Synchronizer)

// WithTransport 替换传输层, 测试时注入内存实现。
func WithTransport(t Transport) SyncOption {
	return func(s *Synchronizer) { s.transport = t }
}

// WithRegisterer 指定 Prometheus 注册器, nil 表示不注册。
func WithRegisterer(reg prometheus.Registerer) SyncOption {
	return func(s *Synchronizer) { s.metrics = NewMetrics(reg) }
}

// NewSynchronizer 创建同步器。
func NewSynchronizer(nodeID string, mgr *manager.Manager, cfg Config, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		nodeID:     nodeID,
		cfg:        cfg,
		mgr:        mgr,
		peers:      NewPeerManager(),
		metrics:    NewMetrics(nil),
		changes:    make(chan string, 256),
		priorities: make(map[string]Priority),
		lastSync:   make(map[string]time.Time),
	}
	s.transport = NewTCPTransport(cfg.ListenAddr, cfg.DialTimeout)
	s.heartbeat = NewHeartbeatMonitor(s, cfg)
	s.handlers = map[string]func(ctx context.Context, msg *SyncMessage){
		MsgSyncRequest:  s.handleSyncRequest,
		MsgSyncResponse: s.handleSyncResponse,
		MsgDelta:        s.handleDelta,
		MsgHeartbeat:    s.handleHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	// 对端上线即交换摘要, 差异在第一轮就补齐
	s.peers.OnConnected(func(p PeerInfo) {
		s.requestAll(context.Background(), p)
	})
	return s
}

// Peers 返回对端管理器。
func (s *Synchronizer) Peers() *PeerManager {
	return s.peers
}

// AddPeer 手工登记一个对端, 用于静态配置的种子节点。
func (s *Synchronizer) AddPeer(id, addr string) {
	s.peers.Discover(id, addr, s.cfg.ProtocolVersion, nil)
}

// SetPriority 设置某个实例的同步优先级。
func (s *Synchronizer) SetPriority(name string, p Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priorities[name] = p
}

// EnableDiscovery 挂载 UDP 发现组件。tcpPort 是本节点同步端口。
func (s *Synchronizer) EnableDiscovery(tcpPort int) {
	s.discovery = NewDiscovery(s.nodeID, tcpPort, s.peers, s.cfg)
}

// Start 启动传输层和各后台循环。
func (s *Synchronizer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.transport.Start(ctx, func(msg *SyncMessage) {
		s.route(ctx, msg)
	}); err != nil {
		cancel()
		return err
	}
	if s.discovery != nil {
		if err := s.discovery.Start(ctx); err != nil {
			cancel()
			s.transport.Close()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error { return s.heartbeat.Run(gctx) })
	g.Go(func() error { return s.connectLoop(gctx) })
	g.Go(func() error { return s.syncLoop(gctx) })
	g.Go(func() error { return s.publishLoop(gctx) })

	log.Printf("[Sync] ✅ 同步器已启动: 节点=%s, 地址=%s", s.nodeID, s.transport.Addr())
	return nil
}

// Stop 停止所有循环并关闭传输层。
func (s *Synchronizer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		// 循环以 ctx.Err() 退出, 不算故障
		if err := s.group.Wait(); err != nil && err != context.Canceled {
			log.Printf("[Sync] 后台循环退出: %v", err)
		}
	}
	err := s.transport.Close()
	log.Printf("[Sync] 🛑 同步器已停止: 节点=%s", s.nodeID)
	return err
}

// newMessage 构造一条出站消息。
func (s *Synchronizer) newMessage(msgType, target string) *SyncMessage {
	return &SyncMessage{
		MessageID:      uuid.NewString(),
		MessageType:    msgType,
		SourceNode:     s.nodeID,
		TargetNode:     target,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		HLC:            s.mgr.Clock().Now(),
		SequenceNumber: s.seq.Add(1),
	}
}

// send 发送一条消息并维护失败计数。
func (s *Synchronizer) send(ctx context.Context, p PeerInfo, msg *SyncMessage) error {
	if err := s.transport.Send(ctx, p.Addr, msg); err != nil {
		s.metrics.SendFailures.Inc()
		s.peers.MarkFailed(p.ID)
		return err
	}
	s.metrics.MessagesSent.WithLabelValues(msg.MessageType).Inc()
	return nil
}

// route 把入站消息派发给对应处理器, 未知类型丢弃并记录。
func (s *Synchronizer) route(ctx context.Context, msg *SyncMessage) {
	if msg.TargetNode != "" && msg.TargetNode != s.nodeID {
		return // 不是发给本节点的
	}
	h, ok := s.handlers[msg.MessageType]
	if !ok {
		s.metrics.MessagesDropped.Inc()
		log.Printf("[Sync] ⚠️ 未知消息类型, 丢弃: %s (来自 %s)", msg.MessageType, msg.SourceNode)
		return
	}
	s.metrics.MessagesReceived.WithLabelValues(msg.MessageType).Inc()
	// 吸收对端时钟, 保证本地后续写入的时间戳排在对端已见写入之后
	if msg.HLC > 0 {
		s.mgr.Clock().Update(msg.HLC)
	}
	s.peers.Touch(msg.SourceNode)
	h(ctx, msg)
}

// connectLoop 把 Discovered 的对端推进到 Connected。
// 用一次心跳探测连通性, 成功即认为连接建立。
func (s *Synchronizer) connectLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, p := range s.peers.Discovered() {
				if err := s.peers.MarkConnecting(p.ID); err != nil {
					continue
				}
				msg := s.newMessage(MsgHeartbeat, p.ID)
				if err := s.send(ctx, p, msg); err != nil {
					log.Printf("[Sync] 连接 %s 失败: %v", p.ID, err)
					continue
				}
				if err := s.peers.MarkConnected(p.ID); err != nil {
					log.Printf("[Sync] %v", err)
				}
			}
		}
	}
}

// syncLoop 按优先级间隔发起周期同步。
// 循环节拍取最高优先级的间隔, 每拍只同步到期的实例。
func (s *Synchronizer) syncLoop(ctx context.Context) error {
	tick := s.cfg.SyncInterval / time.Duration(s.cfg.HighMultiplier)
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SyncRound(ctx)
		}
	}
}

// intervalFor 返回某个实例的同步间隔。
func (s *Synchronizer) intervalFor(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.priorities[name] {
	case PriorityHigh:
		return s.cfg.SyncInterval / time.Duration(s.cfg.HighMultiplier)
	case PriorityLow:
		return s.cfg.SyncInterval * time.Duration(s.cfg.LowMultiplier)
	default:
		return s.cfg.SyncInterval
	}
}

// dueNames 返回本拍到期的实例名。
func (s *Synchronizer) dueNames() []string {
	now := time.Now()
	var due []string
	for _, name := range s.mgr.Names() {
		interval := s.intervalFor(name)
		s.mu.Lock()
		last := s.lastSync[name]
		if now.Sub(last) >= interval {
			s.lastSync[name] = now
			due = append(due, name)
		}
		s.mu.Unlock()
	}
	return due
}

// SyncRound 对所有 Connected 对端发起一轮到期实例的摘要比对。
func (s *Synchronizer) SyncRound(ctx context.Context) SyncResult {
	var result SyncResult
	peers := s.peers.Connected()
	if len(peers) == 0 {
		return result
	}
	due := s.dueNames()
	if len(due) == 0 {
		return result
	}

	for _, p := range peers {
		result.PeersContacted++
		for _, name := range due {
			if err := s.requestOne(ctx, p, name); err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
	}
	return result
}

// requestOne 向对端发送一个实例的摘要比对请求。
func (s *Synchronizer) requestOne(ctx context.Context, p PeerInfo, name string) error {
	digest, err := s.mgr.Digest(name)
	if err != nil {
		return err
	}
	typ, err := s.mgr.TypeOf(name)
	if err != nil {
		return err
	}
	msg := s.newMessage(MsgSyncRequest, p.ID)
	msg.CRDTName = name
	msg.CRDTType = byte(typ)
	msg.Digest = digest
	return s.send(ctx, p, msg)
}

// requestAll 对端刚上线时交换全部实例的摘要。
func (s *Synchronizer) requestAll(ctx context.Context, p PeerInfo) {
	for _, name := range s.mgr.Names() {
		if err := s.requestOne(ctx, p, name); err != nil {
			log.Printf("[Sync] 向 %s 请求 %s 失败: %v", p.ID, name, err)
		}
	}
}

// QueueUpdate 把一次本地变更排队, 由发布循环异步广播。
// 队列满时丢弃即时广播, 留给下一轮周期同步补齐。
func (s *Synchronizer) QueueUpdate(name string) {
	select {
	case s.changes <- name:
	default:
		log.Printf("[Sync] ⚠️ 变更队列已满, 丢弃 %s 的即时广播", name)
	}
}

// publishLoop 消费变更队列并广播。
func (s *Synchronizer) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case name := <-s.changes:
			s.PublishUpdate(ctx, name)
		}
	}
}

// Stats 是同步器的运行时快照。
type Stats struct {
	NodeID         string
	PeerStates     map[string]int
	MessagesSent   uint64
	PendingChanges int
}

// SyncStats 汇总当前对端分布和发送量。
func (s *Synchronizer) SyncStats() Stats {
	st := Stats{
		NodeID:         s.nodeID,
		PeerStates:     make(map[string]int),
		MessagesSent:   s.seq.Load(),
		PendingChanges: len(s.changes),
	}
	for _, p := range s.peers.All() {
		st.PeerStates[p.State.String()]++
	}
	return st
}

// PublishUpdate 把一个实例的最新状态广播给所有 Connected 对端。
// 本地写入后调用, 让更新即时扩散而不是等下一轮周期同步。
func (s *Synchronizer) PublishUpdate(ctx context.Context, name string) {
	data, err := s.mgr.Export(name)
	if err != nil {
		log.Printf("[Sync] 导出 %s 失败: %v", name, err)
		return
	}
	typ, err := s.mgr.TypeOf(name)
	if err != nil {
		return
	}
	for _, p := range s.peers.Connected() {
		msg := s.newMessage(MsgDelta, p.ID)
		msg.CRDTName = name
		msg.CRDTType = byte(typ)
		msg.Data = data
		if err := s.send(ctx, p, msg); err != nil {
			log.Printf("[Sync] 广播 %s 到 %s 失败: %v", name, p.ID, err)
		}
	}
}
