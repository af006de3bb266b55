package crdt

import (
	"errors"
	"testing"
)

func TestPNCounter_Basic(t *testing.T) {
	c := NewPNCounter("node1")

	if c.Value().(int64) != 0 {
		t.Fatalf("预期 0, 实际得到 %v", c.Value())
	}

	c.Increment(10)
	c.Decrement(4)
	if c.Value().(int64) != 6 {
		t.Fatalf("预期 6, 实际得到 %v", c.Value())
	}
}

func TestPNCounter_RejectNegative(t *testing.T) {
	c := NewPNCounter("node1")
	if err := c.Increment(-1); !errors.Is(err, ErrNegativeDelta) {
		t.Fatalf("Increment(-1) 预期 ErrNegativeDelta, 实际得到 %v", err)
	}
	if err := c.Decrement(-1); !errors.Is(err, ErrNegativeDelta) {
		t.Fatalf("Decrement(-1) 预期 ErrNegativeDelta, 实际得到 %v", err)
	}
	if c.Value().(int64) != 0 {
		t.Errorf("拒绝后值应保持 0, 实际得到 %v", c.Value())
	}
}

func TestPNCounter_Merge(t *testing.T) {
	c1 := NewPNCounter("node1")
	c2 := NewPNCounter("node2")

	c1.Increment(10)
	c2.Increment(20)
	c2.Decrement(5)

	if err := c1.Merge(c2); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	if c1.Value().(int64) != 25 {
		t.Errorf("预期 25, 实际得到 %v", c1.Value())
	}

	// 幂等
	c1.Merge(c2)
	if c1.Value().(int64) != 25 {
		t.Errorf("重复合并后预期 25, 实际得到 %v", c1.Value())
	}
}

func TestPNCounter_RoundTrip(t *testing.T) {
	c := NewPNCounter("node1")
	c.Increment(7)
	c.Decrement(2)

	data, err := c.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	restored, err := PNCounterFromBytes(data)
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if restored.Value().(int64) != 5 {
		t.Errorf("往返后预期 5, 实际得到 %v", restored.Value())
	}
}
