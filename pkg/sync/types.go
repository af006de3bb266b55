package sync

import (
	"time"
)

// MessageType 是同步消息的路由类型, 封闭集合, 未知类型会被丢弃并记录。
const (
	MsgSyncRequest      = "sync_request"      // 请求对方某个实例的状态
	MsgSyncResponse     = "sync_response"     // 回复完整状态或"已同步"标记
	MsgDelta            = "delta"             // 本地更新后的增量广播
	MsgHeartbeat        = "heartbeat"         // 节点存活心跳
	MsgPeerDiscovery    = "peer_discovery"    // UDP 发现请求
	MsgPeerAnnouncement = "peer_announcement" // UDP 发现应答
)

// SyncMessage 是 TCP 通道上的统一消息封装, JSON 编码, 换行分隔。
// Data 的内容由 MessageType 决定: 状态消息携带序列化 CRDT 字节,
// 请求消息携带摘要。
type SyncMessage struct {
	MessageID      string `json:"message_id"`
	MessageType    string `json:"message_type"`
	SourceNode     string `json:"source_node"`
	TargetNode     string `json:"target_node,omitempty"`
	Timestamp      string `json:"timestamp"` // ISO-8601
	HLC            int64  `json:"hlc,omitempty"`
	CRDTName       string `json:"crdt_name,omitempty"`
	CRDTType       byte   `json:"crdt_type,omitempty"`
	Data           []byte `json:"data,omitempty"`
	Digest         uint64 `json:"digest,omitempty"`
	SequenceNumber uint64 `json:"sequence_number"`
}

// PeerState 表示对端在连接状态机中的位置。
// 合法迁移: Discovered→Connecting→Connected→Stale→(Connected|Evicted),
// Connecting 失败退回 Discovered。Evicted 为终态。
type PeerState int

const (
	PeerDiscovered PeerState = iota
	PeerConnecting
	PeerConnected
	PeerStale
	PeerEvicted
)

// String 返回可读状态字符串。
func (s PeerState) String() string {
	switch s {
	case PeerDiscovered:
		return "Discovered"
	case PeerConnecting:
		return "Connecting"
	case PeerConnected:
		return "Connected"
	case PeerStale:
		return "Stale"
	case PeerEvicted:
		return "Evicted"
	default:
		return "Unknown"
	}
}

// validTransition 判断一次状态迁移是否合法。
func validTransition(from, to PeerState) bool {
	switch from {
	case PeerDiscovered:
		return to == PeerConnecting
	case PeerConnecting:
		return to == PeerConnected || to == PeerDiscovered
	case PeerConnected:
		return to == PeerStale
	case PeerStale:
		return to == PeerConnected || to == PeerEvicted
	default:
		return false
	}
}

// PeerInfo 保存单个对端的运行时信息。
type PeerInfo struct {
	ID              string    // 对端节点 ID。
	Addr            string    // TCP 地址 host:port。
	State           PeerState // 连接状态。
	ProtocolVersion string    // 对端宣告的协议版本。
	Capabilities    []string  // 对端宣告的能力集合。
	LastSeen        time.Time // 最近一次收到消息的时间。
	LastSync        time.Time // 最近一次完成同步的时间。
	Failures        int       // 连续失败次数。
}

// Priority 控制单个实例的同步频率。
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityLow
)

// Config 控制同步子系统参数。
type Config struct {
	ListenAddr        string        // TCP 监听地址。
	DiscoveryPort     int           // UDP 发现端口。
	DiscoveryInterval time.Duration // 发现广播间隔。
	SyncInterval      time.Duration // 普通优先级的同步间隔。
	HighMultiplier    int           // 高优先级间隔 = SyncInterval / HighMultiplier。
	LowMultiplier     int           // 低优先级间隔 = SyncInterval * LowMultiplier。
	HeartbeatInterval time.Duration // 心跳发送间隔。
	StaleThreshold    time.Duration // 判定 Stale 的心跳超时阈值。
	EvictThreshold    time.Duration // 从 Stale 判定 Evicted 的阈值。
	DialTimeout       time.Duration // TCP 拨号超时。
	ProtocolVersion   string        // 本节点宣告的协议版本。
	Capabilities      []string      // 本节点宣告的能力集合。
}

// Option 用于修改 Config。
type Option func(*Config)

// WithListenAddr 设置 TCP 监听地址。
func WithListenAddr(addr string) Option {
	return func(c *Config) {
		c.ListenAddr = addr
	}
}

// WithDiscoveryPort 设置 UDP 发现端口。
func WithDiscoveryPort(port int) Option {
	return func(c *Config) {
		c.DiscoveryPort = port
	}
}

// WithSyncInterval 设置普通优先级同步间隔。
func WithSyncInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.SyncInterval = interval
	}
}

// WithHeartbeatInterval 设置心跳间隔。
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithStaleThreshold 设置心跳超时阈值。
func WithStaleThreshold(threshold time.Duration) Option {
	return func(c *Config) {
		c.StaleThreshold = threshold
	}
}

// WithEvictThreshold 设置对端驱逐阈值。
func WithEvictThreshold(threshold time.Duration) Option {
	return func(c *Config) {
		c.EvictThreshold = threshold
	}
}

// WithCapabilities 设置本节点宣告的能力集合。
func WithCapabilities(caps ...string) Option {
	return func(c *Config) {
		c.Capabilities = caps
	}
}

// DefaultConfig 返回默认同步配置。
func DefaultConfig() Config {
	return Config{
		ListenAddr:        "0.0.0.0:7946",
		DiscoveryPort:     7947,
		DiscoveryInterval: 30 * time.Second,
		SyncInterval:      10 * time.Second,
		HighMultiplier:    2,
		LowMultiplier:     4,
		HeartbeatInterval: 5 * time.Second,
		StaleThreshold:    30 * time.Second,
		EvictThreshold:    2 * time.Minute,
		DialTimeout:       3 * time.Second,
		ProtocolVersion:   "1.0",
		Capabilities:      []string{"sync", "delta", "digest"},
	}
}

// SyncResult 汇总一轮同步的执行结果。
type SyncResult struct {
	PeersContacted int     // 联系的对端数量。
	NamesSynced    int     // 实际传输状态的实例数量。
	NamesSkipped   int     // 摘要一致而跳过的实例数量。
	Errors         []error // 过程中的错误。
}
