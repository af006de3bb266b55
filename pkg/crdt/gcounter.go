package crdt

import "github.com/vmihailenco/msgpack/v5"

// GCounter 实现只增计数器。
// 每个节点只递增自己的条目，合并取逐项最大值。
type GCounter struct {
	Meta   Meta             `msgpack:"meta"`
	Counts map[string]int64 `msgpack:"counts"` // 节点 ID -> 该节点的累计增量
}

// NewGCounter 创建一个新的 GCounter。
func NewGCounter(nodeID string) *GCounter {
	return &GCounter{
		Meta:   newMeta(nodeID),
		Counts: make(map[string]int64),
	}
}

// Metadata 返回副本元信息。
func (c *GCounter) Metadata() Meta {
	return c.Meta
}

func (c *GCounter) Type() Type {
	return TypeGCounter
}

// Value 返回所有节点条目之和。
func (c *GCounter) Value() any {
	var total int64
	for _, v := range c.Counts {
		total += v
	}
	return total
}

// Increment 增加本节点的条目。负增量被拒绝而不是截断。
func (c *GCounter) Increment(delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	c.Counts[c.Meta.NodeID] += delta
	c.Meta.touch()
	return nil
}

func (c *GCounter) Merge(other CRDT) error {
	o, ok := other.(*GCounter)
	if !ok {
		return ErrTypeMismatch
	}
	for node, v := range o.Counts {
		if c.Counts[node] < v {
			c.Counts[node] = v
		}
	}
	c.Meta.touch()
	return nil
}

func (c *GCounter) Bytes() ([]byte, error) {
	return msgpack.Marshal(c)
}

// GCounterFromBytes 反序列化 GCounter。
func GCounterFromBytes(data []byte) (*GCounter, error) {
	c := &GCounter{}
	if err := msgpack.Unmarshal(data, c); err != nil {
		return nil, ErrCorruptState
	}
	if c.Counts == nil {
		c.Counts = make(map[string]int64)
	}
	return c, nil
}
