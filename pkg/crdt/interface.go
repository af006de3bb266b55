package crdt

import "fmt"

// Type 标识 CRDT 的类型。
// 八种变体构成封闭集合，工厂与反序列化必须对其做穷尽 switch。
type Type byte

const (
	TypeGCounter   Type = 0x01
	TypeGSet       Type = 0x02
	TypeLWW        Type = 0x03
	TypeORSet      Type = 0x04
	TypePNCounter  Type = 0x05
	TypeTimeSeries Type = 0x06
	TypeGraph      Type = 0x07
	TypeWorkflow   Type = 0x08
)

// String 返回类型的可读名称。
func (t Type) String() string {
	switch t {
	case TypeGCounter:
		return "gcounter"
	case TypeGSet:
		return "gset"
	case TypeLWW:
		return "lww_register"
	case TypeORSet:
		return "orset"
	case TypePNCounter:
		return "pncounter"
	case TypeTimeSeries:
		return "timeseries"
	case TypeGraph:
		return "graph"
	case TypeWorkflow:
		return "workflow"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// ParseType 将类型名称解析为 Type。
// 未知名称返回 ErrUnknownType。
func ParseType(name string) (Type, error) {
	switch name {
	case "gcounter":
		return TypeGCounter, nil
	case "gset":
		return TypeGSet, nil
	case "lww_register":
		return TypeLWW, nil
	case "orset":
		return TypeORSet, nil
	case "pncounter":
		return TypePNCounter, nil
	case "timeseries":
		return TypeTimeSeries, nil
	case "graph":
		return TypeGraph, nil
	case "workflow":
		return TypeWorkflow, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
}

// CRDT 是所有变体的通用接口。
//
// Merge 必须满足交换律、结合律与幂等性；除 OR-Set 的按标签移除
// 和 LWW 的全序覆盖之外，任何变体都不得丢弃已观察到的信息。
type CRDT interface {
	// Type 返回 CRDT 的类型标签。
	Type() Type

	// Value 返回面向用户的当前值。
	Value() any

	// Metadata 返回副本元信息（节点、创建/更新时间、本地版本号）。
	Metadata() Meta

	// Merge 将另一个同类型副本的状态合并进来。
	// 类型不匹配返回 ErrTypeMismatch，且不产生任何副作用。
	Merge(other CRDT) error

	// Bytes 将完整状态序列化为字节（msgpack）。
	Bytes() ([]byte, error)
}
