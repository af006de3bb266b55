package store

import "errors"

var (
	// ErrKeyNotFound 表示键不存在。
	ErrKeyNotFound = errors.New("key not found")
)

// Store 定义底层键值存储的接口。
// 管理器的每个持久化行以及隔离区条目都通过它读写。
type Store interface {
	// Get 获取键的值。键不存在时返回 ErrKeyNotFound。
	Get(key []byte) ([]byte, error)

	// Set 设置键的值。ttlSeconds > 0 时条目在到期后自动失效。
	Set(key, value []byte, ttlSeconds int64) error

	// Delete 删除键。
	Delete(key []byte) error

	// Scan 按字典序迭代具有给定前缀的键。
	// fn 返回错误时迭代终止并向上传播。
	Scan(prefix []byte, fn func(k, v []byte) error) error

	// Close 关闭存储并刷出未落盘的写入。
	Close() error
}
