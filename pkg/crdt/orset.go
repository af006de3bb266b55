package crdt

import (
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ORSet 实现观察-移除 (Observed-Remove) 集合。
// 每次添加产生唯一标签；移除只对调用者当前观察到的标签打墓碑，
// 因此并发的重新添加（新标签）总能在合并后存活——add-wins 语义。
type ORSet struct {
	Meta       Meta                           `msgpack:"meta"`
	Values     map[string]Scalar              `msgpack:"values"`  // 规范化键 -> 元素值
	AddSet     map[string]map[string]struct{} `msgpack:"add_set"` // 规范化键 -> 活动标签集合
	Tombstones map[string]struct{}            `msgpack:"tombstones"`
}

// NewORSet 创建一个新的 ORSet。
func NewORSet(nodeID string) *ORSet {
	return &ORSet{
		Meta:       newMeta(nodeID),
		Values:     make(map[string]Scalar),
		AddSet:     make(map[string]map[string]struct{}),
		Tombstones: make(map[string]struct{}),
	}
}

// Metadata 返回副本元信息。
func (s *ORSet) Metadata() Meta {
	return s.Meta
}

func (s *ORSet) Type() Type {
	return TypeORSet
}

// Value 返回当前存在的元素（至少有一个未被墓碑化的标签）。
func (s *ORSet) Value() any {
	out := make([]any, 0, len(s.AddSet))
	for key, tags := range s.AddSet {
		if s.alive(tags) {
			out = append(out, s.Values[key].Interface())
		}
	}
	return out
}

func (s *ORSet) alive(tags map[string]struct{}) bool {
	for tag := range tags {
		if _, dead := s.Tombstones[tag]; !dead {
			return true
		}
	}
	return false
}

// Add 添加元素并返回新分配的唯一标签。添加总是成功。
func (s *ORSet) Add(e Scalar) string {
	key := e.Key()
	tag := uuid.NewString()
	if s.AddSet[key] == nil {
		s.AddSet[key] = make(map[string]struct{})
	}
	s.AddSet[key][tag] = struct{}{}
	s.Values[key] = e
	s.Meta.touch()
	return tag
}

// Remove 移除元素：只对当前快照可见的标签打墓碑。
// 其他副本并发添加的标签不受影响。
func (s *ORSet) Remove(e Scalar) {
	key := e.Key()
	tags, ok := s.AddSet[key]
	if !ok {
		return
	}
	for tag := range tags {
		s.Tombstones[tag] = struct{}{}
	}
	delete(s.AddSet, key)
	delete(s.Values, key)
	s.Meta.touch()
}

// Contains 判断元素当前是否存在。
func (s *ORSet) Contains(e Scalar) bool {
	tags, ok := s.AddSet[e.Key()]
	return ok && s.alive(tags)
}

// Elements 返回当前存在的元素标量。
func (s *ORSet) Elements() []Scalar {
	out := make([]Scalar, 0, len(s.AddSet))
	for key, tags := range s.AddSet {
		if s.alive(tags) {
			out = append(out, s.Values[key])
		}
	}
	return out
}

// Len 返回当前存在的元素数量。
func (s *ORSet) Len() int {
	n := 0
	for _, tags := range s.AddSet {
		if s.alive(tags) {
			n++
		}
	}
	return n
}

func (s *ORSet) Merge(other CRDT) error {
	o, ok := other.(*ORSet)
	if !ok {
		return ErrTypeMismatch
	}

	// 1. 合并墓碑
	for tag := range o.Tombstones {
		s.Tombstones[tag] = struct{}{}
	}

	// 2. 合并标签集合与元素值
	for key, tags := range o.AddSet {
		if s.AddSet[key] == nil {
			s.AddSet[key] = make(map[string]struct{})
		}
		for tag := range tags {
			s.AddSet[key][tag] = struct{}{}
		}
		s.Values[key] = o.Values[key]
	}

	// 3. 清理已全部墓碑化的标签，节省空间
	for key, tags := range s.AddSet {
		for tag := range tags {
			if _, dead := s.Tombstones[tag]; dead {
				delete(tags, tag)
			}
		}
		if len(tags) == 0 {
			delete(s.AddSet, key)
			delete(s.Values, key)
		}
	}
	s.Meta.touch()
	return nil
}

func (s *ORSet) Bytes() ([]byte, error) {
	return msgpack.Marshal(s)
}

// ORSetFromBytes 反序列化 ORSet。
func ORSetFromBytes(data []byte) (*ORSet, error) {
	s := &ORSet{}
	if err := msgpack.Unmarshal(data, s); err != nil {
		return nil, ErrCorruptState
	}
	if s.Values == nil {
		s.Values = make(map[string]Scalar)
	}
	if s.AddSet == nil {
		s.AddSet = make(map[string]map[string]struct{})
	}
	if s.Tombstones == nil {
		s.Tombstones = make(map[string]struct{})
	}
	return s, nil
}
