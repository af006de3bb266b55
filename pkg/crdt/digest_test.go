package crdt

import "testing"

// 已收敛的副本必须得到相同摘要, 即使各自的本地元信息不同。
func TestDigestConvergedReplicasEqual(t *testing.T) {
	a := NewORSet("node-a")
	b := NewORSet("node-b")
	a.Add(String("x"))
	b.Add(String("y"))

	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatal(err)
	}
	if Digest(a) != Digest(b) {
		t.Error("已收敛的副本摘要不相等")
	}
}

func TestDigestChangesWithState(t *testing.T) {
	c := NewGCounter("node-a")
	before := Digest(c)
	if err := c.Increment(1); err != nil {
		t.Fatal(err)
	}
	if Digest(c) == before {
		t.Error("状态变更后摘要未变化")
	}
}

// 不同类型的空状态不能得到相同摘要。
func TestDigestTypeSeparation(t *testing.T) {
	g := NewGSet("node-a")
	o := NewORSet("node-a")
	if Digest(g) == Digest(o) {
		t.Error("不同类型的空状态摘要碰撞")
	}
}

func TestDigestCompositeConvergence(t *testing.T) {
	a := NewGraph("node-a")
	b := NewGraph("node-b")
	a.AddVertex("v1")
	b.AddVertex("v2")

	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatal(err)
	}
	if Digest(a) != Digest(b) {
		t.Error("合并后的图摘要不相等")
	}
}
