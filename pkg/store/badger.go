package store

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const defaultValueLogFileSize = 128 * 1024 * 1024 // 128MB

// BadgerStore 是基于 BadgerDB 的 Store 实现。
type BadgerStore struct {
	db *badger.DB
}

type badgerConfig struct {
	valueLogFileSize int64
	inMemory         bool
}

// BadgerOption 调整 Badger 打开方式。
type BadgerOption func(*badgerConfig) error

// WithValueLogFileSize 设置单个 value log 文件的最大字节数。
func WithValueLogFileSize(sizeBytes int64) BadgerOption {
	return func(cfg *badgerConfig) error {
		if sizeBytes <= 0 {
			return fmt.Errorf("value log 文件大小必须 > 0, 实际为 %d", sizeBytes)
		}
		cfg.valueLogFileSize = sizeBytes
		return nil
	}
}

// WithInMemory 以纯内存模式打开（测试用，不落盘）。
func WithInMemory() BadgerOption {
	return func(cfg *badgerConfig) error {
		cfg.inMemory = true
		return nil
	}
}

// NewBadgerStore 打开一个 Badger 存储。
func NewBadgerStore(path string, options ...BadgerOption) (*BadgerStore, error) {
	cfg := badgerConfig{
		valueLogFileSize: defaultValueLogFileSize,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	opts := badger.DefaultOptions(path)
	opts = opts.WithValueLogFileSize(cfg.valueLogFileSize)
	if cfg.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// 减少库自身的日志输出
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrKeyNotFound
			}
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *BadgerStore) Set(key, value []byte, ttlSeconds int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if ttlSeconds > 0 {
			e := badger.NewEntry(key, value).WithTTL(time.Duration(ttlSeconds) * time.Second)
			return txn.SetEntry(e)
		}
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *BadgerStore) Scan(prefix []byte, fn func(k, v []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
