package crdt

import (
	"github.com/vmihailenco/msgpack/v5"
)

// LWWRegister 实现最后写入胜出寄存器。
// 时间戳相同时，按写入者节点 ID 的字典序取较大者，保证两侧合并结果一致。
// 注意：时钟漂移下"最后"并非因果意义上的最后，只是确定性的全序。
type LWWRegister struct {
	Meta      Meta   `msgpack:"meta"`
	Val       []byte `msgpack:"val"`
	Timestamp int64  `msgpack:"ts"`
	Writer    string `msgpack:"writer"` // 最近一次写入的节点 ID
}

// NewLWWRegister 创建一个新的 LWWRegister。
func NewLWWRegister(nodeID string) *LWWRegister {
	return &LWWRegister{
		Meta: newMeta(nodeID),
	}
}

// Metadata 返回副本元信息。
func (r *LWWRegister) Metadata() Meta {
	return r.Meta
}

func (r *LWWRegister) Type() Type {
	return TypeLWW
}

func (r *LWWRegister) Value() any {
	return r.Val
}

// WriterID 返回当前值的写入者。
func (r *LWWRegister) WriterID() string {
	return r.Writer
}

// WriteTimestamp 返回当前值的写入时间戳。
func (r *LWWRegister) WriteTimestamp() int64 {
	return r.Timestamp
}

// Set 写入新值。写入总是成功；旧值是否被覆盖由 LWW 全序决定。
func (r *LWWRegister) Set(val []byte, ts int64, writer string) {
	if wins(ts, writer, r.Timestamp, r.Writer) {
		r.Val = val
		r.Timestamp = ts
		r.Writer = writer
	}
	r.Meta.touch()
}

// wins 判断 (ts, writer) 是否胜过 (otherTs, otherWriter)。
func wins(ts int64, writer string, otherTs int64, otherWriter string) bool {
	if ts != otherTs {
		return ts > otherTs
	}
	return writer > otherWriter
}

func (r *LWWRegister) Merge(other CRDT) error {
	o, ok := other.(*LWWRegister)
	if !ok {
		return ErrTypeMismatch
	}
	if wins(o.Timestamp, o.Writer, r.Timestamp, r.Writer) {
		r.Val = o.Val
		r.Timestamp = o.Timestamp
		r.Writer = o.Writer
	}
	r.Meta.touch()
	return nil
}

func (r *LWWRegister) Bytes() ([]byte, error) {
	return msgpack.Marshal(r)
}

// LWWFromBytes 反序列化 LWWRegister。
func LWWFromBytes(data []byte) (*LWWRegister, error) {
	r := &LWWRegister{}
	if err := msgpack.Unmarshal(data, r); err != nil {
		return nil, ErrCorruptState
	}
	return r, nil
}
