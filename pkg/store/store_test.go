package store

import (
	"errors"
	"testing"
)

// memory 与 badger 两个实现共用同一套行为测试。
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()

	if _, err := s.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("缺失键预期 ErrKeyNotFound, 实际得到 %v", err)
	}

	if err := s.Set([]byte("crdt/a"), []byte("1"), 0); err != nil {
		t.Fatalf("Set 失败: %v", err)
	}
	if err := s.Set([]byte("crdt/b"), []byte("2"), 0); err != nil {
		t.Fatalf("Set 失败: %v", err)
	}
	if err := s.Set([]byte("other/c"), []byte("3"), 0); err != nil {
		t.Fatalf("Set 失败: %v", err)
	}

	v, err := s.Get([]byte("crdt/a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("Get 结果错误: %s, %v", v, err)
	}

	var keys []string
	err = s.Scan([]byte("crdt/"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan 失败: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("前缀扫描预期 2 个键, 实际得到 %v", keys)
	}

	if err := s.Delete([]byte("crdt/a")); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	if _, err := s.Get([]byte("crdt/a")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("删除后预期 ErrKeyNotFound, 实际得到 %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore("", WithInMemory())
	if err != nil {
		t.Fatalf("打开 Badger 失败: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestBadgerStore_BadOption(t *testing.T) {
	if _, err := NewBadgerStore("", WithValueLogFileSize(-1)); err == nil {
		t.Fatal("非法配置应返回错误")
	}
}
