package crdt

import "testing"

func TestGSet_AddAndMerge(t *testing.T) {
	a := NewGSet("A")
	b := NewGSet("B")

	a.Add(String("x"))
	a.Add(String("x")) // 幂等
	b.Add(String("y"))
	b.Add(Int(1))

	if err := a.Merge(b); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	if a.Len() != 3 {
		t.Fatalf("预期 3 个元素, 实际得到 %d", a.Len())
	}
	for _, e := range []Scalar{String("x"), String("y"), Int(1)} {
		if !a.Contains(e) {
			t.Errorf("合并后缺少元素 %v", e.Interface())
		}
	}
}

func TestGSet_RoundTrip(t *testing.T) {
	s := NewGSet("node1")
	s.Add(String("hello"))
	s.Add(Bool(true))
	s.Add(Bytes([]byte{1, 2, 3}))

	data, err := s.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	restored, err := GSetFromBytes(data)
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if restored.Len() != 3 {
		t.Fatalf("往返后预期 3 个元素, 实际得到 %d", restored.Len())
	}
}

func TestFromBytes_Corrupt(t *testing.T) {
	for _, typ := range []Type{TypeGCounter, TypeGSet, TypeLWW, TypeORSet,
		TypePNCounter, TypeTimeSeries, TypeGraph, TypeWorkflow} {
		if _, err := FromBytes(typ, []byte("\xc1 not msgpack")); err == nil {
			t.Errorf("%s: 损坏数据应返回错误", typ)
		}
	}
}

func TestParseType_Unknown(t *testing.T) {
	if _, err := ParseType("btree"); err == nil {
		t.Fatal("未知类型名应返回错误")
	}
	if _, err := New(Type(0xFF), "n"); err == nil {
		t.Fatal("未知类型标签应返回错误")
	}
}
