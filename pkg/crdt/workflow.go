package crdt

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// TransitionSpec 声明一条合法的状态迁移。
type TransitionSpec struct {
	From string `msgpack:"from"`
	To   string `msgpack:"to"`
	Name string `msgpack:"name,omitempty"`
}

// TransitionRecord 是一条已发生的迁移记录。
type TransitionRecord struct {
	From    string            `msgpack:"from"`
	To      string            `msgpack:"to"`
	Node    string            `msgpack:"node"`
	Ts      int64             `msgpack:"ts"`
	Context map[string]string `msgpack:"context,omitempty"`
}

// Workflow 实现可合并的工作流状态机：
// 状态集与迁移声明集是 OR-Set，当前状态是 LWW 寄存器，
// 迁移历史是只追加的 OR-Set，步数是 PN 计数器。
// 没有匹配迁移声明的 TransitionTo 被拒绝，不产生任何状态变化。
type Workflow struct {
	Meta    Meta         `msgpack:"meta"`
	States  *ORSet       `msgpack:"states"`
	Specs   *ORSet       `msgpack:"specs"`
	Current *LWWRegister `msgpack:"current"`
	History *ORSet       `msgpack:"history"`
	Steps   *PNCounter   `msgpack:"steps"`
}

// NewWorkflow 创建一个新的 Workflow。
func NewWorkflow(nodeID string) *Workflow {
	return &Workflow{
		Meta:    newMeta(nodeID),
		States:  NewORSet(nodeID),
		Specs:   NewORSet(nodeID),
		Current: NewLWWRegister(nodeID),
		History: NewORSet(nodeID),
		Steps:   NewPNCounter(nodeID),
	}
}

// Metadata 返回副本元信息。
func (w *Workflow) Metadata() Meta {
	return w.Meta
}

func (w *Workflow) Type() Type {
	return TypeWorkflow
}

// Value 返回当前状态名。
func (w *Workflow) Value() any {
	return w.CurrentState()
}

// CurrentState 返回当前状态名，尚未进入任何状态时为空串。
func (w *Workflow) CurrentState() string {
	raw, _ := w.Current.Value().([]byte)
	return string(raw)
}

// AddState 注册一个状态。
func (w *Workflow) AddState(name string) {
	w.States.Add(String(name))
	w.Meta.touch()
}

// HasState 判断状态是否已注册。
func (w *Workflow) HasState(name string) bool {
	return w.States.Contains(String(name))
}

// AddTransition 注册一条迁移声明。
func (w *Workflow) AddTransition(spec TransitionSpec) error {
	raw, err := msgpack.Marshal(&spec)
	if err != nil {
		return err
	}
	w.Specs.Add(Bytes(raw))
	w.Meta.touch()
	return nil
}

// hasSpec 判断是否存在 from -> to 的迁移声明。
func (w *Workflow) hasSpec(from, to string) bool {
	for _, e := range w.Specs.Elements() {
		raw, _ := e.Interface().([]byte)
		var spec TransitionSpec
		if err := msgpack.Unmarshal(raw, &spec); err != nil {
			continue
		}
		if spec.From == from && spec.To == to {
			return true
		}
	}
	return false
}

// TransitionTo 尝试在时间戳 ts 迁移到目标状态。ts 由调用方的 HLC 提供；
// 落后于当前状态写入时间的 ts 会被推进, 保证本地迁移严格递增。
// 首次迁移（尚无当前状态）只要求目标状态已注册；
// 其余情况要求存在 (当前状态 -> 目标) 的迁移声明。
// 校验失败返回 false：当前状态与历史均保持不变。
func (w *Workflow) TransitionTo(target string, ts int64, context map[string]string) bool {
	if !w.HasState(target) {
		return false
	}
	current := w.CurrentState()
	if current != "" && !w.hasSpec(current, target) {
		return false
	}

	if ts <= w.Current.WriteTimestamp() {
		ts = w.Current.WriteTimestamp() + 1
	}
	record := TransitionRecord{
		From:    current,
		To:      target,
		Node:    w.Meta.NodeID,
		Ts:      ts,
		Context: context,
	}
	raw, err := msgpack.Marshal(&record)
	if err != nil {
		return false
	}
	w.History.Add(Bytes(raw))
	w.Current.Set([]byte(target), ts, w.Meta.NodeID)
	_ = w.Steps.Increment(1)
	w.Meta.touch()
	return true
}

// HistoryRecords 返回全部迁移记录，按时间戳升序。
func (w *Workflow) HistoryRecords() []TransitionRecord {
	elems := w.History.Elements()
	out := make([]TransitionRecord, 0, len(elems))
	for _, e := range elems {
		raw, _ := e.Interface().([]byte)
		var rec TransitionRecord
		if err := msgpack.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ts != out[j].Ts {
			return out[i].Ts < out[j].Ts
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// StepCount 返回已执行的迁移步数。
func (w *Workflow) StepCount() int64 {
	v, _ := w.Steps.Value().(int64)
	return v
}

func (w *Workflow) Merge(other CRDT) error {
	o, ok := other.(*Workflow)
	if !ok {
		return ErrTypeMismatch
	}
	if err := w.States.Merge(o.States); err != nil {
		return err
	}
	if err := w.Specs.Merge(o.Specs); err != nil {
		return err
	}
	if err := w.Current.Merge(o.Current); err != nil {
		return err
	}
	if err := w.History.Merge(o.History); err != nil {
		return err
	}
	if err := w.Steps.Merge(o.Steps); err != nil {
		return err
	}
	w.Meta.touch()
	return nil
}

func (w *Workflow) Bytes() ([]byte, error) {
	return msgpack.Marshal(w)
}

// WorkflowFromBytes 反序列化 Workflow。
func WorkflowFromBytes(data []byte) (*Workflow, error) {
	w := &Workflow{}
	if err := msgpack.Unmarshal(data, w); err != nil {
		return nil, ErrCorruptState
	}
	node := w.Meta.NodeID
	if w.States == nil {
		w.States = NewORSet(node)
	}
	if w.Specs == nil {
		w.Specs = NewORSet(node)
	}
	if w.Current == nil {
		w.Current = NewLWWRegister(node)
	}
	if w.History == nil {
		w.History = NewORSet(node)
	}
	if w.Steps == nil {
		w.Steps = NewPNCounter(node)
	}
	return w, nil
}
