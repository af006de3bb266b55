package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore 是纯内存的 Store 实现，用于测试和一次性实例。
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	expires map[string]time.Time
}

// NewMemoryStore 创建一个内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string][]byte),
		expires: make(map[string]time.Time),
	}
}

func (s *MemoryStore) expired(key string, now time.Time) bool {
	dl, ok := s.expires[key]
	return ok && now.After(dl)
}

func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := string(key)
	v, ok := s.data[k]
	if !ok || s.expired(k, time.Now()) {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(key, value []byte, ttlSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	v := make([]byte, len(value))
	copy(v, value)
	s.data[k] = v
	if ttlSeconds > 0 {
		s.expires[k] = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	} else {
		delete(s.expires, k)
	}
	return nil
}

func (s *MemoryStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	delete(s.expires, string(key))
	return nil
}

func (s *MemoryStore) Scan(prefix []byte, fn func(k, v []byte) error) error {
	s.mu.RLock()
	now := time.Now()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, string(prefix)) && !s.expired(k, now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = s.data[k]
	}
	s.mu.RUnlock()

	for _, k := range keys {
		if err := fn([]byte(k), snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
