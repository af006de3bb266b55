package crdt

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

const defaultTimeSeriesCapacity = 1000

// TSEntry 是时间序列中的一个数据点。
// (Ts, Node, Seq) 三元组是全局唯一键。
type TSEntry struct {
	Ts   int64             `msgpack:"ts"`
	Node string            `msgpack:"node"`
	Seq  uint64            `msgpack:"seq"`
	Val  float64           `msgpack:"val"`
	Tags map[string]string `msgpack:"tags,omitempty"`
}

// Aggregate 是聚合快照。
type Aggregate struct {
	Count int64   `msgpack:"count"`
	Sum   float64 `msgpack:"sum"`
	Avg   float64 `msgpack:"avg"`
	Min   float64 `msgpack:"min"`
	Max   float64 `msgpack:"max"`
}

// TimeSeries 实现有界的按时间排序的追加日志。
// 超出容量时最旧的数据点先被淘汰；聚合快照存放在 LWW 寄存器中，
// 读取聚合为 O(1)。
type TimeSeries struct {
	Meta     Meta              `msgpack:"meta"`
	Capacity int               `msgpack:"capacity"`
	Entries  []TSEntry         `msgpack:"entries"` // 按 (Ts, Node, Seq) 升序
	Seqs     map[string]uint64 `msgpack:"seqs"`    // 每节点已分配的序列号
	Agg      *LWWRegister      `msgpack:"agg"`
}

// NewTimeSeries 创建一个新的 TimeSeries。capacity <= 0 时取默认容量。
func NewTimeSeries(nodeID string, capacity int) *TimeSeries {
	if capacity <= 0 {
		capacity = defaultTimeSeriesCapacity
	}
	return &TimeSeries{
		Meta:     newMeta(nodeID),
		Capacity: capacity,
		Seqs:     make(map[string]uint64),
		Agg:      NewLWWRegister(nodeID),
	}
}

// Metadata 返回副本元信息。
func (ts *TimeSeries) Metadata() Meta {
	return ts.Meta
}

func (ts *TimeSeries) Type() Type {
	return TypeTimeSeries
}

// Value 返回 (数据点数量, 聚合快照)。
func (ts *TimeSeries) Value() any {
	return ts.Aggregate()
}

// Append 追加一个数据点：分配本节点的下一个序列号，
// 插入后淘汰超出容量的最旧数据，并重算聚合快照。
func (ts *TimeSeries) Append(t int64, val float64, tags map[string]string) TSEntry {
	node := ts.Meta.NodeID
	ts.Seqs[node]++
	e := TSEntry{Ts: t, Node: node, Seq: ts.Seqs[node], Val: val, Tags: tags}
	ts.Entries = append(ts.Entries, e)
	ts.sortAndEvict()
	ts.Meta.touch()
	ts.recomputeAgg(t)
	return e
}

// Range 返回 [start, end] 区间内数据点的惰性迭代器。
// 迭代顺序为时间戳升序，相同时间戳按节点 ID、序列号排序。
// 再次调用 Range 即可重新开始迭代。
func (ts *TimeSeries) Range(start, end int64) func() (TSEntry, bool) {
	// Entries 始终有序，二分定位区间后按快照迭代
	lo := sort.Search(len(ts.Entries), func(i int) bool { return ts.Entries[i].Ts >= start })
	hi := sort.Search(len(ts.Entries), func(i int) bool { return ts.Entries[i].Ts > end })
	window := make([]TSEntry, hi-lo)
	copy(window, ts.Entries[lo:hi])

	i := 0
	return func() (TSEntry, bool) {
		if i >= len(window) {
			return TSEntry{}, false
		}
		e := window[i]
		i++
		return e, true
	}
}

// Aggregate 返回缓存的聚合快照。
func (ts *TimeSeries) Aggregate() Aggregate {
	raw, _ := ts.Agg.Value().([]byte)
	if len(raw) == 0 {
		return Aggregate{}
	}
	var agg Aggregate
	if err := msgpack.Unmarshal(raw, &agg); err != nil {
		return Aggregate{}
	}
	return agg
}

// AggregateSince 对 [start, +inf) 区间即时计算聚合。
func (ts *TimeSeries) AggregateSince(start int64) Aggregate {
	lo := sort.Search(len(ts.Entries), func(i int) bool { return ts.Entries[i].Ts >= start })
	return computeAggregate(ts.Entries[lo:])
}

// Len 返回当前保留的数据点数量。
func (ts *TimeSeries) Len() int {
	return len(ts.Entries)
}

func (ts *TimeSeries) Merge(other CRDT) error {
	o, ok := other.(*TimeSeries)
	if !ok {
		return ErrTypeMismatch
	}

	// 取键集并集去重
	type tsKey struct {
		ts   int64
		node string
		seq  uint64
	}
	seen := make(map[tsKey]struct{}, len(ts.Entries)+len(o.Entries))
	keyOf := func(e TSEntry) tsKey { return tsKey{ts: e.Ts, node: e.Node, seq: e.Seq} }
	merged := make([]TSEntry, 0, len(ts.Entries)+len(o.Entries))
	for _, e := range ts.Entries {
		if _, dup := seen[keyOf(e)]; !dup {
			seen[keyOf(e)] = struct{}{}
			merged = append(merged, e)
		}
	}
	for _, e := range o.Entries {
		if _, dup := seen[keyOf(e)]; !dup {
			seen[keyOf(e)] = struct{}{}
			merged = append(merged, e)
		}
	}
	ts.Entries = merged

	// 序列号按节点取最大值，避免合并后本地再分配出重复键
	for node, seq := range o.Seqs {
		if ts.Seqs[node] < seq {
			ts.Seqs[node] = seq
		}
	}
	if o.Capacity > ts.Capacity {
		ts.Capacity = o.Capacity
	}
	ts.sortAndEvict()
	ts.Meta.touch()
	ts.recomputeAgg(o.Agg.WriteTimestamp())
	return nil
}

func (ts *TimeSeries) sortAndEvict() {
	sort.Slice(ts.Entries, func(i, j int) bool {
		a, b := ts.Entries[i], ts.Entries[j]
		if a.Ts != b.Ts {
			return a.Ts < b.Ts
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.Seq < b.Seq
	})
	if len(ts.Entries) > ts.Capacity {
		// 最旧的先淘汰
		ts.Entries = append(ts.Entries[:0:0], ts.Entries[len(ts.Entries)-ts.Capacity:]...)
	}
}

// recomputeAgg 用 stamp 重写聚合快照。寄存器只接受更大的时间戳,
// 所以落后的 stamp 先推进到当前写入时间之后, 快照才不会卡在旧值上。
func (ts *TimeSeries) recomputeAgg(stamp int64) {
	agg := computeAggregate(ts.Entries)
	raw, err := msgpack.Marshal(&agg)
	if err != nil {
		return
	}
	if stamp <= ts.Agg.WriteTimestamp() {
		stamp = ts.Agg.WriteTimestamp() + 1
	}
	ts.Agg.Set(raw, stamp, ts.Meta.NodeID)
}

func computeAggregate(entries []TSEntry) Aggregate {
	if len(entries) == 0 {
		return Aggregate{}
	}
	agg := Aggregate{
		Count: int64(len(entries)),
		Min:   entries[0].Val,
		Max:   entries[0].Val,
	}
	for _, e := range entries {
		agg.Sum += e.Val
		if e.Val < agg.Min {
			agg.Min = e.Val
		}
		if e.Val > agg.Max {
			agg.Max = e.Val
		}
	}
	agg.Avg = agg.Sum / float64(agg.Count)
	return agg
}

func (ts *TimeSeries) Bytes() ([]byte, error) {
	return msgpack.Marshal(ts)
}

// TimeSeriesFromBytes 反序列化 TimeSeries。
func TimeSeriesFromBytes(data []byte) (*TimeSeries, error) {
	ts := &TimeSeries{}
	if err := msgpack.Unmarshal(data, ts); err != nil {
		return nil, ErrCorruptState
	}
	if ts.Seqs == nil {
		ts.Seqs = make(map[string]uint64)
	}
	if ts.Agg == nil {
		ts.Agg = NewLWWRegister(ts.Meta.NodeID)
	}
	if ts.Capacity <= 0 {
		ts.Capacity = defaultTimeSeriesCapacity
	}
	return ts, nil
}
