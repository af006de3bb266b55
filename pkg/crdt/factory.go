package crdt

import "fmt"

// New 根据类型标签创建空的 CRDT 实例。
// 对封闭类型集合做穷尽 switch；新增变体时编译器会在这里报未处理分支。
func New(typ Type, nodeID string) (CRDT, error) {
	switch typ {
	case TypeGCounter:
		return NewGCounter(nodeID), nil
	case TypeGSet:
		return NewGSet(nodeID), nil
	case TypeLWW:
		return NewLWWRegister(nodeID), nil
	case TypeORSet:
		return NewORSet(nodeID), nil
	case TypePNCounter:
		return NewPNCounter(nodeID), nil
	case TypeTimeSeries:
		return NewTimeSeries(nodeID, 0), nil
	case TypeGraph:
		return NewGraph(nodeID), nil
	case TypeWorkflow:
		return NewWorkflow(nodeID), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(typ))
	}
}

// FromBytes 根据类型标签反序列化 CRDT 状态。
func FromBytes(typ Type, data []byte) (CRDT, error) {
	switch typ {
	case TypeGCounter:
		return GCounterFromBytes(data)
	case TypeGSet:
		return GSetFromBytes(data)
	case TypeLWW:
		return LWWFromBytes(data)
	case TypeORSet:
		return ORSetFromBytes(data)
	case TypePNCounter:
		return PNCounterFromBytes(data)
	case TypeTimeSeries:
		return TimeSeriesFromBytes(data)
	case TypeGraph:
		return GraphFromBytes(data)
	case TypeWorkflow:
		return WorkflowFromBytes(data)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(typ))
	}
}
