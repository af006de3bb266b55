package crdt

import "errors"

var (
	// ErrUnknownType 表示请求了封闭集合之外的 CRDT 类型。
	ErrUnknownType = errors.New("未知的 CRDT 类型")

	// ErrTypeMismatch 表示两个不同变体之间的合并被拒绝。
	ErrTypeMismatch = errors.New("CRDT 类型不匹配")

	// ErrNegativeDelta 表示计数器收到负增量。拒绝而不是静默截断。
	ErrNegativeDelta = errors.New("计数器增量不能为负数")

	// ErrCorruptState 表示序列化状态无法还原。
	ErrCorruptState = errors.New("CRDT 状态数据损坏")
)
