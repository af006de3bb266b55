package manager

import (
	"fmt"
	"log"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/crdt"
)

const (
	rowPrefix        = "crdt/"
	quarantinePrefix = "quarantine/"

	// 隔离行的保留时间。确认无法修复的损坏数据最终自动过期。
	quarantineTTLSeconds = 7 * 24 * 3600
)

// row 是每个命名实例的持久化行。
// 行本身是最后写入覆盖：并发正确性来自内存中的 CRDT 合并。
type row struct {
	Name        string    `msgpack:"name"`
	Type        crdt.Type `msgpack:"type"`
	State       []byte    `msgpack:"state"`
	LastUpdated int64     `msgpack:"last_updated"`
	Version     uint64    `msgpack:"version"`
	Owner       string    `msgpack:"owner"`
}

func rowKey(name string) []byte {
	return []byte(rowPrefix + name)
}

// persistLocked 序列化并写入当前状态。调用方必须持有 e.mu。
func (m *Manager) persistLocked(e *entry) error {
	state, err := e.c.Bytes()
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", e.name, err)
	}
	meta := e.c.Metadata()
	r := row{
		Name:        e.name,
		Type:        e.typ,
		State:       state,
		LastUpdated: meta.UpdatedAt,
		Version:     meta.Version,
		Owner:       meta.NodeID,
	}
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return err
	}
	return m.store.Set(rowKey(e.name), data, 0)
}

// loadAll 在启动时把全部持久化行还原为活动实例。
// 无法还原的行被隔离（移动到隔离前缀并带 TTL），而不是静默丢弃；
// 其余行继续加载。
func (m *Manager) loadAll() error {
	type bad struct {
		key  []byte
		val  []byte
		name string
		err  error
	}
	var corrupt []bad

	err := m.store.Scan([]byte(rowPrefix), func(k, v []byte) error {
		name := string(k[len(rowPrefix):])

		var r row
		if err := msgpack.Unmarshal(v, &r); err != nil {
			corrupt = append(corrupt, bad{key: append([]byte{}, k...), val: append([]byte{}, v...), name: name, err: err})
			return nil
		}
		c, err := crdt.FromBytes(r.Type, r.State)
		if err != nil {
			corrupt = append(corrupt, bad{key: append([]byte{}, k...), val: append([]byte{}, v...), name: name, err: err})
			return nil
		}
		m.entries[name] = &entry{c: c, typ: r.Type, name: name}
		return nil
	})
	if err != nil {
		return err
	}

	for _, b := range corrupt {
		log.Printf("[Manager] ⚠️ 行 %s 数据损坏, 已隔离: %v", b.name, b.err)
		if err := m.store.Set([]byte(quarantinePrefix+b.name), b.val, quarantineTTLSeconds); err != nil {
			log.Printf("[Manager] 隔离 %s 失败: %v", b.name, err)
			continue
		}
		if err := m.store.Delete(b.key); err != nil {
			log.Printf("[Manager] 删除损坏行 %s 失败: %v", b.name, err)
		}
	}
	if len(m.entries) > 0 || len(corrupt) > 0 {
		log.Printf("[Manager] 已加载 %d 个实例, 隔离 %d 个损坏行", len(m.entries), len(corrupt))
	}
	return nil
}

// QuarantinedNames 返回当前处于隔离区的行名。
func (m *Manager) QuarantinedNames() ([]string, error) {
	var names []string
	err := m.store.Scan([]byte(quarantinePrefix), func(k, v []byte) error {
		names = append(names, string(k[len(quarantinePrefix):]))
		return nil
	})
	return names, err
}
