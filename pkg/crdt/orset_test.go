package crdt

import "testing"

func TestORSet_Basic(t *testing.T) {
	s := NewORSet("node1")

	tag := s.Add(String("x"))
	if tag == "" {
		t.Fatal("Add 应返回新标签")
	}
	if !s.Contains(String("x")) {
		t.Fatal("添加后元素应存在")
	}

	s.Remove(String("x"))
	if s.Contains(String("x")) {
		t.Fatal("移除后元素不应存在")
	}

	// 重新添加产生新标签，旧墓碑不影响
	s.Add(String("x"))
	if !s.Contains(String("x")) {
		t.Fatal("重新添加后元素应存在")
	}
}

// add-wins: B 的移除只墓碑化它观察到的旧标签，
// A 并发添加的新标签在合并后存活。
func TestORSet_AddWins(t *testing.T) {
	a := NewORSet("A")
	b := NewORSet("B")

	// 初始状态同步：双方都看到 x 的一个旧标签
	a.Add(String("x"))
	if err := b.Merge(a); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	// 并发：A 重新添加 x（新标签），B 移除它观察到的 x
	a.Add(String("x"))
	b.Remove(String("x"))

	// 双向合并
	if err := a.Merge(b); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	if !a.Contains(String("x")) {
		t.Error("A 副本: 并发添加应胜过移除")
	}
	if !b.Contains(String("x")) {
		t.Error("B 副本: 并发添加应胜过移除")
	}
}

func TestORSet_TypedElements(t *testing.T) {
	s := NewORSet("node1")
	s.Add(Int(42))
	s.Add(String("42"))
	s.Add(Float(42))

	// 类型不同的元素不会互相碰撞
	if s.Len() != 3 {
		t.Fatalf("预期 3 个元素, 实际得到 %d", s.Len())
	}

	data, err := s.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	restored, err := ORSetFromBytes(data)
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}

	// 反序列化不做类型推断：int 还是 int，string 还是 string
	if !restored.Contains(Int(42)) || !restored.Contains(String("42")) || !restored.Contains(Float(42)) {
		t.Error("往返后类型信息丢失")
	}
	if restored.Len() != 3 {
		t.Errorf("往返后预期 3 个元素, 实际得到 %d", restored.Len())
	}
}

func TestORSet_RemoveAbsent(t *testing.T) {
	s := NewORSet("node1")
	s.Remove(String("ghost")) // 不存在的元素: 无操作
	if s.Len() != 0 {
		t.Fatalf("预期空集合, 实际得到 %d 个元素", s.Len())
	}
}
