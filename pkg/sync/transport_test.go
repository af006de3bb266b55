package sync

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTCP(t *testing.T, handler func(msg *SyncMessage)) *TCPTransport {
	t.Helper()
	tr := NewTCPTransport("127.0.0.1:0", time.Second)
	require.NoError(t, tr.Start(context.Background(), handler))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTCPTransportCloseWithIdleInbound(t *testing.T) {
	tr := startTCP(t, func(msg *SyncMessage) {})

	// 一条挂着不发任何数据的入站连接不应阻塞 Close
	conn, err := net.Dial("tcp", tr.Addr())
	require.NoError(t, err)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond) // 等 accept 完成

	done := make(chan error, 1)
	go func() { done <- tr.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close 被空闲入站连接阻塞")
	}
}

func TestTCPTransportReusesPeerConn(t *testing.T) {
	got := make(chan *SyncMessage, 4)
	recv := startTCP(t, func(msg *SyncMessage) { got <- msg })

	sender := NewTCPTransport("127.0.0.1:0", time.Second)
	defer sender.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		msg := &SyncMessage{MessageID: "m", MessageType: MsgHeartbeat, SourceNode: "node-a"}
		require.NoError(t, sender.Send(ctx, recv.Addr(), msg))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("消息未送达")
		}
	}

	// 对同一对端的多次发送复用同一条长连接
	sender.mu.Lock()
	assert.Len(t, sender.dialed, 1)
	sender.mu.Unlock()
	recv.mu.Lock()
	assert.Len(t, recv.inbound, 1)
	recv.mu.Unlock()
}

func TestTCPTransportClosePeer(t *testing.T) {
	got := make(chan *SyncMessage, 4)
	recv := startTCP(t, func(msg *SyncMessage) { got <- msg })

	sender := NewTCPTransport("127.0.0.1:0", time.Second)
	defer sender.Close()

	ctx := context.Background()
	msg := &SyncMessage{MessageID: "m1", MessageType: MsgHeartbeat, SourceNode: "node-a"}
	require.NoError(t, sender.Send(ctx, recv.Addr(), msg))

	require.NoError(t, sender.ClosePeer(recv.Addr()))
	sender.mu.Lock()
	assert.Empty(t, sender.dialed)
	sender.mu.Unlock()

	// 驱逐后重新发现: 下一次发送重新拨号
	msg2 := &SyncMessage{MessageID: "m2", MessageType: MsgHeartbeat, SourceNode: "node-a"}
	require.NoError(t, sender.Send(ctx, recv.Addr(), msg2))

	seen := 0
	for seen < 2 {
		select {
		case <-got:
			seen++
		case <-time.After(2 * time.Second):
			t.Fatalf("只收到 %d 条消息", seen)
		}
	}
}
