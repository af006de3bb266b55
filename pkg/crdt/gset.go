package crdt

import (
	"github.com/vmihailenco/msgpack/v5"
)

// GSet 实现只增集合，合并即并集，元素永不移除。
type GSet struct {
	Meta     Meta              `msgpack:"meta"`
	Elements map[string]Scalar `msgpack:"elements"` // 规范化键 -> 元素
}

// NewGSet 创建一个新的 GSet。
func NewGSet(nodeID string) *GSet {
	return &GSet{
		Meta:     newMeta(nodeID),
		Elements: make(map[string]Scalar),
	}
}

// Metadata 返回副本元信息。
func (s *GSet) Metadata() Meta {
	return s.Meta
}

func (s *GSet) Type() Type {
	return TypeGSet
}

// Value 返回所有元素的原生值切片。
func (s *GSet) Value() any {
	out := make([]any, 0, len(s.Elements))
	for _, e := range s.Elements {
		out = append(out, e.Interface())
	}
	return out
}

// Add 添加一个元素。重复添加是幂等的。
func (s *GSet) Add(e Scalar) {
	s.Elements[e.Key()] = e
	s.Meta.touch()
}

// Contains 判断元素是否存在。
func (s *GSet) Contains(e Scalar) bool {
	_, ok := s.Elements[e.Key()]
	return ok
}

// Len 返回元素数量。
func (s *GSet) Len() int {
	return len(s.Elements)
}

func (s *GSet) Merge(other CRDT) error {
	o, ok := other.(*GSet)
	if !ok {
		return ErrTypeMismatch
	}
	for k, e := range o.Elements {
		s.Elements[k] = e
	}
	s.Meta.touch()
	return nil
}

func (s *GSet) Bytes() ([]byte, error) {
	return msgpack.Marshal(s)
}

// GSetFromBytes 反序列化 GSet。
func GSetFromBytes(data []byte) (*GSet, error) {
	s := &GSet{}
	if err := msgpack.Unmarshal(data, s); err != nil {
		return nil, ErrCorruptState
	}
	if s.Elements == nil {
		s.Elements = make(map[string]Scalar)
	}
	return s, nil
}
