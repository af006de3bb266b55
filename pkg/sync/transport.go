package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// ErrTransportClosed 表示传输层已关闭。
var ErrTransportClosed = errors.New("传输层已关闭")

// Transport 抽象同步消息的点对点传输。
// 生产实现是 TCP, 测试用内存实现替换。
type Transport interface {
	// Start 开始接收消息, 每条入站消息交给 handler。
	Start(ctx context.Context, handler func(msg *SyncMessage)) error

	// Send 向 addr 发送一条消息。
	Send(ctx context.Context, addr string, msg *SyncMessage) error

	// Addr 返回本端的监听地址。
	Addr() string

	// ClosePeer 关闭与 addr 的出站连接(若存在)。节点被驱逐时调用。
	ClosePeer(addr string) error

	// Close 停止接收并释放资源。
	Close() error
}

// peerConn 是到单个对端的长连接。写锁保证换行分隔的消息不交错。
type peerConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// TCPTransport 在 TCP 上传输换行分隔的 JSON 消息。
// 每个对端维持一条长的出站连接, 写失败时关闭并在下次发送重拨。
// 入站连接按行解码直到对端关闭。
type TCPTransport struct {
	listenAddr  string
	dialTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	dialed   map[string]*peerConn
	inbound  map[net.Conn]struct{}
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewTCPTransport 创建 TCP 传输。
func NewTCPTransport(listenAddr string, dialTimeout time.Duration) *TCPTransport {
	return &TCPTransport{
		listenAddr:  listenAddr,
		dialTimeout: dialTimeout,
		dialed:      make(map[string]*peerConn),
		inbound:     make(map[net.Conn]struct{}),
		done:        make(chan struct{}),
	}
}

// Start 监听并循环接受入站连接。
func (t *TCPTransport) Start(ctx context.Context, handler func(msg *SyncMessage)) error {
	ln, err := net.Listen("tcp", t.listenAddr)
	if err != nil {
		return fmt.Errorf("TCP 监听失败: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		ln.Close()
		return ErrTransportClosed
	}
	t.listener = ln
	t.mu.Unlock()

	log.Printf("[Transport] ✅ TCP 已监听: %s", ln.Addr())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		select {
		case <-ctx.Done():
			go t.Close()
		case <-t.done:
		}
	}()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				t.mu.Lock()
				closed := t.closed
				t.mu.Unlock()
				if closed {
					return
				}
				log.Printf("[Transport] accept 失败: %v", err)
				continue
			}
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				conn.Close()
				return
			}
			t.inbound[conn] = struct{}{}
			t.mu.Unlock()
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.serveConn(conn, handler)
			}()
		}
	}()
	return nil
}

// serveConn 按行解码一条入站连接上的所有消息。
func (t *TCPTransport) serveConn(conn net.Conn, handler func(msg *SyncMessage)) {
	defer func() {
		t.mu.Lock()
		delete(t.inbound, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg SyncMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Printf("[Transport] ⚠️ 入站消息解码失败, 丢弃: %v", err)
			continue
		}
		handler(&msg)
	}
}

// Send 在到 addr 的长连接上写入一条消息, 没有连接时先拨号。
func (t *TCPTransport) Send(ctx context.Context, addr string, msg *SyncMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("消息编码失败: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	pc := t.dialed[addr]
	if pc == nil {
		pc = &peerConn{}
		t.dialed[addr] = pc
	}
	t.mu.Unlock()

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.conn == nil {
		d := net.Dialer{Timeout: t.dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("拨号 %s 失败: %w", addr, err)
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return ErrTransportClosed
		}
		t.mu.Unlock()
		pc.conn = conn
	}

	if deadline, ok := ctx.Deadline(); ok {
		pc.conn.SetWriteDeadline(deadline)
	} else {
		pc.conn.SetWriteDeadline(time.Now().Add(t.dialTimeout))
	}

	if _, err := pc.conn.Write(data); err != nil {
		pc.conn.Close()
		pc.conn = nil
		return fmt.Errorf("写入 %s 失败: %w", addr, err)
	}
	return nil
}

// Addr 返回实际监听地址, 未启动时返回配置地址。
func (t *TCPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.listenAddr
}

// ClosePeer 关闭并移除到 addr 的出站连接。
func (t *TCPTransport) ClosePeer(addr string) error {
	t.mu.Lock()
	pc := t.dialed[addr]
	delete(t.dialed, addr)
	t.mu.Unlock()

	if pc == nil {
		return nil
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.conn != nil {
		pc.conn.Close()
		pc.conn = nil
	}
	return nil
}

// Close 关闭监听和所有连接, 等待连接处理结束。
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	ln := t.listener
	dialed := t.dialed
	t.dialed = make(map[string]*peerConn)
	for conn := range t.inbound {
		conn.Close()
	}
	t.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, pc := range dialed {
		pc.mu.Lock()
		if pc.conn != nil {
			pc.conn.Close()
			pc.conn = nil
		}
		pc.mu.Unlock()
	}
	t.wg.Wait()
	return err
}
