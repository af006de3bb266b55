package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

// discoveryRequest 是 UDP 广播的发现请求。
type discoveryRequest struct {
	Type      string `json:"type"`
	NodeID    string `json:"node_id"`
	Timestamp string `json:"timestamp"`
}

// discoveryAnnouncement 是针对请求方的单播应答。
type discoveryAnnouncement struct {
	Type            string   `json:"type"`
	NodeID          string   `json:"node_id"`
	Port            int      `json:"port"` // TCP 同步端口
	ProtocolVersion string   `json:"protocol_version"`
	Capabilities    []string `json:"capabilities"`
	Timestamp       string   `json:"timestamp"`
}

// Discovery 通过 UDP 广播在局域网内发现对端。
// 收到请求的节点把自己的 TCP 端口和能力单播回请求方,
// 请求方据此把对端登记进 PeerManager。
type Discovery struct {
	nodeID  string
	tcpPort int
	cfg     Config
	peers   *PeerManager

	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool
}

// NewDiscovery 创建发现组件。tcpPort 是本节点的同步端口。
func NewDiscovery(nodeID string, tcpPort int, peers *PeerManager, cfg Config) *Discovery {
	return &Discovery{
		nodeID:  nodeID,
		tcpPort: tcpPort,
		cfg:     cfg,
		peers:   peers,
	}
}

// Start 监听发现端口并周期性广播发现请求。
func (d *Discovery) Start(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: d.cfg.DiscoveryPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("UDP 监听失败: %w", err)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		conn.Close()
		return ErrTransportClosed
	}
	d.conn = conn
	d.mu.Unlock()

	log.Printf("[Discovery] ✅ UDP 发现已启动: 端口=%d, 间隔=%v", d.cfg.DiscoveryPort, d.cfg.DiscoveryInterval)

	go d.readLoop(conn)
	go d.probeLoop(ctx)
	go func() {
		<-ctx.Done()
		d.Close()
	}()
	return nil
}

// readLoop 处理入站的发现请求和应答。
func (d *Discovery) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 64*1024)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			log.Printf("[Discovery] 读取失败: %v", err)
			continue
		}
		d.handlePacket(buf[:n], from)
	}
}

func (d *Discovery) handlePacket(data []byte, from *net.UDPAddr) {
	var probe struct {
		Type   string `json:"type"`
		NodeID string `json:"node_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return // 非本协议的广播噪声, 忽略
	}
	if probe.NodeID == d.nodeID {
		return // 自己的广播
	}

	switch probe.Type {
	case MsgPeerDiscovery:
		d.answer(from)
	case MsgPeerAnnouncement:
		var ann discoveryAnnouncement
		if err := json.Unmarshal(data, &ann); err != nil {
			log.Printf("[Discovery] ⚠️ 应答解码失败: %v", err)
			return
		}
		peerAddr := net.JoinHostPort(from.IP.String(), strconv.Itoa(ann.Port))
		d.peers.Discover(ann.NodeID, peerAddr, ann.ProtocolVersion, ann.Capabilities)
	default:
		log.Printf("[Discovery] ⚠️ 未知消息类型, 丢弃: %s", probe.Type)
	}
}

// answer 向请求方单播本节点的宣告。
func (d *Discovery) answer(to *net.UDPAddr) {
	ann := discoveryAnnouncement{
		Type:            MsgPeerAnnouncement,
		NodeID:          d.nodeID,
		Port:            d.tcpPort,
		ProtocolVersion: d.cfg.ProtocolVersion,
		Capabilities:    d.cfg.Capabilities,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ann)
	if err != nil {
		return
	}
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.WriteToUDP(data, to); err != nil {
		log.Printf("[Discovery] 应答 %s 失败: %v", to, err)
	}
}

// probeLoop 周期性广播发现请求。启动时立即广播一次。
func (d *Discovery) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.DiscoveryInterval)
	defer ticker.Stop()

	d.Probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Probe()
		}
	}
}

// Probe 广播一次发现请求。
func (d *Discovery) Probe() {
	req := discoveryRequest{
		Type:      MsgPeerDiscovery,
		NodeID:    d.nodeID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return
	}
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return
	}
	bcast := &net.UDPAddr{IP: net.IPv4bcast, Port: d.cfg.DiscoveryPort}
	if _, err := conn.WriteToUDP(data, bcast); err != nil {
		log.Printf("[Discovery] 广播失败: %v", err)
	}
}

// Close 停止发现。
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
