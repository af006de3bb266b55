package crdt

import "time"

// Meta 保存所有变体共享的副本元信息。
type Meta struct {
	NodeID    string `msgpack:"node_id"`    // 持有该副本的节点 ID
	CreatedAt int64  `msgpack:"created_at"` // 创建时间（毫秒）
	UpdatedAt int64  `msgpack:"updated_at"` // 最近一次本地变更时间（毫秒）
	Version   uint64 `msgpack:"version"`    // 本地单调递增版本号
}

func newMeta(nodeID string) Meta {
	now := time.Now().UnixMilli()
	return Meta{
		NodeID:    nodeID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// touch 在每次变更（本地操作或合并）后推进版本与更新时间。
func (m *Meta) touch() {
	now := time.Now().UnixMilli()
	if now <= m.UpdatedAt {
		now = m.UpdatedAt + 1
	}
	m.UpdatedAt = now
	m.Version++
}
