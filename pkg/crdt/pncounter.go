package crdt

import "github.com/vmihailenco/msgpack/v5"

// PNCounter 实现正负计数器：一对 GCounter，值为正向减去负向。
type PNCounter struct {
	Meta Meta             `msgpack:"meta"`
	Inc  map[string]int64 `msgpack:"inc"` // 每个节点的累计增量
	Dec  map[string]int64 `msgpack:"dec"` // 每个节点的累计减量
}

// NewPNCounter 创建一个新的 PNCounter。
func NewPNCounter(nodeID string) *PNCounter {
	return &PNCounter{
		Meta: newMeta(nodeID),
		Inc:  make(map[string]int64),
		Dec:  make(map[string]int64),
	}
}

// Metadata 返回副本元信息。
func (c *PNCounter) Metadata() Meta {
	return c.Meta
}

func (c *PNCounter) Type() Type {
	return TypePNCounter
}

func (c *PNCounter) Value() any {
	var total int64
	for _, v := range c.Inc {
		total += v
	}
	for _, v := range c.Dec {
		total -= v
	}
	return total
}

// Increment 增加计数。负增量被拒绝。
func (c *PNCounter) Increment(delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	c.Inc[c.Meta.NodeID] += delta
	c.Meta.touch()
	return nil
}

// Decrement 减少计数。负增量被拒绝。
func (c *PNCounter) Decrement(delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	c.Dec[c.Meta.NodeID] += delta
	c.Meta.touch()
	return nil
}

func (c *PNCounter) Merge(other CRDT) error {
	o, ok := other.(*PNCounter)
	if !ok {
		return ErrTypeMismatch
	}
	mergeCounts(c.Inc, o.Inc)
	mergeCounts(c.Dec, o.Dec)
	c.Meta.touch()
	return nil
}

// mergeCounts 按节点取最大值合并。
func mergeCounts(dst, src map[string]int64) {
	for node, v := range src {
		if dst[node] < v {
			dst[node] = v
		}
	}
}

func (c *PNCounter) Bytes() ([]byte, error) {
	return msgpack.Marshal(c)
}

// PNCounterFromBytes 反序列化 PNCounter。
func PNCounterFromBytes(data []byte) (*PNCounter, error) {
	c := &PNCounter{}
	if err := msgpack.Unmarshal(data, c); err != nil {
		return nil, ErrCorruptState
	}
	if c.Inc == nil {
		c.Inc = make(map[string]int64)
	}
	if c.Dec == nil {
		c.Dec = make(map[string]int64)
	}
	return c, nil
}
