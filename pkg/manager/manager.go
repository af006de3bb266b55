package manager

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/crdt"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/hlc"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/store"
)

var (
	// ErrNotFound 表示命名实例不存在。
	ErrNotFound = errors.New("CRDT 实例不存在")
)

// entry 是一个命名实例及其专属锁。
// 锁的粒度是单个实例：不相关的 CRDT 可以并行变更。
type entry struct {
	mu   sync.Mutex
	c    crdt.CRDT
	typ  crdt.Type
	name string
}

// Manager 持有所有命名 CRDT 实例并负责持久化。
// 每次变更都会立即序列化写入存储行（本地行是最后写入覆盖，
// 正确性来自内存中的 CRDT 合并，而不是存储层的并发控制）。
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	store   store.Store
	clock   *hlc.Clock
	nodeID  string
}

// New 创建管理器并从存储加载全部持久化行。
// 损坏的行会被隔离并继续加载其余行，不会中断启动。
func New(nodeID string, s store.Store) (*Manager, error) {
	m := &Manager{
		entries: make(map[string]*entry),
		store:   s,
		clock:   hlc.New(),
		nodeID:  nodeID,
	}
	if err := m.loadAll(); err != nil {
		return nil, err
	}
	return m, nil
}

// NodeID 返回本地节点 ID。
func (m *Manager) NodeID() string {
	return m.nodeID
}

// Clock 返回管理器的 HLC 时钟，用于给 LWW 写入打时间戳。
func (m *Manager) Clock() *hlc.Clock {
	return m.clock
}

// GetOrCreate 返回命名实例，不存在时按类型创建并立即持久化。
// 已存在但类型不同时返回 ErrTypeMismatch。
func (m *Manager) GetOrCreate(name string, typ crdt.Type) (crdt.CRDT, error) {
	m.mu.Lock()
	e, ok := m.entries[name]
	if ok {
		m.mu.Unlock()
		if e.typ != typ {
			return nil, fmt.Errorf("%w: %s 已是 %s, 请求 %s", crdt.ErrTypeMismatch, name, e.typ, typ)
		}
		return e.c, nil
	}

	c, err := crdt.New(typ, m.nodeID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	e = &entry{c: c, typ: typ, name: name}
	m.entries[name] = e
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return c, m.persistLocked(e)
}

func (m *Manager) lookup(name string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

// Update 在实例锁内执行变更并立即持久化新状态。
// fn 收到一个 HLC 时间戳, 带时间戳的写入（LWW 寄存器、工作流迁移、
// 时间序列追加）都应使用它, 而不是各自取墙钟。
// fn 返回错误时状态不持久化（内存中的部分变更由 fn 自身保证不发生）。
func (m *Manager) Update(name string, fn func(c crdt.CRDT, ts int64) error) error {
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.c, m.clock.Now()); err != nil {
		return err
	}
	return m.persistLocked(e)
}

// Read 返回命名实例的当前值。
func (m *Manager) Read(name string) (any, error) {
	e, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Value(), nil
}

// Export 返回命名实例的序列化状态。
func (m *Manager) Export(name string) ([]byte, error) {
	e, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Bytes()
}

// Import 将外部序列化状态合并进命名实例，实例不存在时先创建。
// 反序列化失败返回 ErrCorruptState，本地状态不受影响。
func (m *Manager) Import(name string, typ crdt.Type, data []byte) error {
	other, err := crdt.FromBytes(typ, data)
	if err != nil {
		return err
	}
	if _, err := m.GetOrCreate(name, typ); err != nil {
		return err
	}
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.c.Merge(other); err != nil {
		return err
	}
	return m.persistLocked(e)
}

// Digest 返回命名实例逻辑状态的规范摘要。
// 同步器用它判断两个副本是否已经一致，避免重复传输。
// 规范摘要不含副本本地元信息，已收敛的副本摘要必然相等。
func (m *Manager) Digest(name string) (uint64, error) {
	e, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return crdt.Digest(e.c), nil
}

// StateInfo 描述一个命名实例的元信息。
type StateInfo struct {
	Name        string
	Type        crdt.Type
	Version     uint64
	LastUpdated int64
	Owner       string
}

// ListStates 返回全部实例的元信息，按名称排序。
func (m *Manager) ListStates() []StateInfo {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]StateInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		meta := e.c.Metadata()
		e.mu.Unlock()
		out = append(out, StateInfo{
			Name:        e.name,
			Type:        e.typ,
			Version:     meta.Version,
			LastUpdated: meta.UpdatedAt,
			Owner:       meta.NodeID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names 返回全部实例名称，按字典序。
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeOf 返回命名实例的类型。
func (m *Manager) TypeOf(name string) (crdt.Type, error) {
	e, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	return e.typ, nil
}

// Delete 移除命名实例及其持久化行。
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	_, ok := m.entries[name]
	delete(m.entries, name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m.store.Delete(rowKey(name))
}

// Close 刷出全部实例的最终状态。
// 存储本身由调用方负责关闭。
func (m *Manager) Close() error {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, e := range entries {
		e.mu.Lock()
		if err := m.persistLocked(e); err != nil && firstErr == nil {
			firstErr = err
		}
		e.mu.Unlock()
	}
	return firstErr
}
