package crdt

import (
	"reflect"
	"testing"
)

func TestGraph_AddEdgeRequiresVertices(t *testing.T) {
	g := NewGraph("node1")
	g.AddVertex("a")

	if g.AddEdge("a", "b", false) {
		t.Fatal("端点缺失时 AddEdge 应返回 false")
	}

	g.AddVertex("b")
	if !g.AddEdge("a", "b", false) {
		t.Fatal("端点齐全时 AddEdge 应返回 true")
	}
	if !g.HasEdge("b", "a", false) {
		t.Error("无向边应双向可见")
	}
}

func TestGraph_RemoveVertexCascades(t *testing.T) {
	g := NewGraph("node1")
	g.AddVertex("a")
	g.AddVertex("b")
	g.AddVertex("c")
	g.AddEdge("a", "b", true)
	g.AddEdge("b", "c", true)
	g.AddEdge("a", "c", true)

	g.RemoveVertex("b")

	if g.HasVertex("b") {
		t.Fatal("顶点 b 应已被移除")
	}
	if g.HasEdge("a", "b", true) || g.HasEdge("b", "c", true) {
		t.Error("关联边应被级联移除")
	}
	if !g.HasEdge("a", "c", true) {
		t.Error("无关的边应保留")
	}
}

// 有环图上 BFS 必须终止：访问集去重是强制的。
func TestGraph_ShortestPathTerminatesOnCycle(t *testing.T) {
	g := NewGraph("node1")
	for _, v := range []string{"A", "B", "C"} {
		g.AddVertex(v)
	}
	g.AddEdge("A", "B", true)
	g.AddEdge("B", "C", true)
	g.AddEdge("C", "A", true) // 成环

	path := g.ShortestPath("A", "C", 10)
	if !reflect.DeepEqual(path, []string{"A", "B", "C"}) {
		t.Errorf("预期路径 [A B C], 实际得到 %v", path)
	}

	// 不可达目标: 有限步内返回空结果而不是死循环
	g.AddVertex("Z")
	if got := g.ShortestPath("A", "Z", 10); got != nil {
		t.Errorf("不可达目标预期 nil, 实际得到 %v", got)
	}
}

func TestGraph_ShortestPathMaxDepth(t *testing.T) {
	g := NewGraph("node1")
	for _, v := range []string{"a", "b", "c", "d"} {
		g.AddVertex(v)
	}
	g.AddEdge("a", "b", true)
	g.AddEdge("b", "c", true)
	g.AddEdge("c", "d", true)

	if got := g.ShortestPath("a", "d", 2); got != nil {
		t.Errorf("深度受限时预期 nil, 实际得到 %v", got)
	}
	if got := g.ShortestPath("a", "d", 3); len(got) != 4 {
		t.Errorf("预期 4 个顶点的路径, 实际得到 %v", got)
	}
}

func TestGraph_AttrsAndMerge(t *testing.T) {
	a := NewGraph("A")
	b := NewGraph("B")

	a.AddVertex("v1")
	a.SetVertexAttrs("v1", map[string]string{"color": "red"}, 100)

	b.AddVertex("v1")
	b.AddVertex("v2")
	b.AddEdge("v1", "v2", false)
	b.SetVertexAttrs("v1", map[string]string{"color": "blue"}, 200)

	if err := a.Merge(b); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	if !a.HasVertex("v2") || !a.HasEdge("v1", "v2", false) {
		t.Error("合并后应包含对方的顶点和边")
	}
	// 属性是 LWW: 更大的时间戳胜出
	attrs := a.VertexAttrsOf("v1")
	if attrs["color"] != "blue" {
		t.Errorf("预期 color=blue, 实际得到 %v", attrs)
	}
}

func TestGraph_MergeCopiesAttrRegisters(t *testing.T) {
	a := NewGraph("A")
	b := NewGraph("B")

	b.AddVertex("v1")
	b.SetVertexAttrs("v1", map[string]string{"color": "red"}, 100)
	b.AddVertex("v2")
	b.AddEdge("v1", "v2", false)
	b.SetEdgeAttrs("v1", "v2", false, map[string]string{"weight": "3"}, 100)

	if err := a.Merge(b); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	// 合并后两个图各自持有寄存器。b 继续写入不应泄漏到 a。
	b.SetVertexAttrs("v1", map[string]string{"color": "blue"}, 200)
	b.SetEdgeAttrs("v1", "v2", false, map[string]string{"weight": "7"}, 200)

	if got := a.VertexAttrsOf("v1")["color"]; got != "red" {
		t.Errorf("a 的顶点属性被 b 的后续写入污染: color=%s", got)
	}
	if got := a.EdgeAttrsOf("v1", "v2", false)["weight"]; got != "3" {
		t.Errorf("a 的边属性被 b 的后续写入污染: weight=%s", got)
	}
}

func TestGraph_RoundTrip(t *testing.T) {
	g := NewGraph("node1")
	g.AddVertex("x")
	g.AddVertex("y")
	g.AddEdge("x", "y", true)
	g.SetVertexAttrs("x", map[string]string{"k": "v"}, 42)

	data, err := g.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	restored, err := GraphFromBytes(data)
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if !restored.HasVertex("x") || !restored.HasEdge("x", "y", true) {
		t.Error("往返后图结构丢失")
	}
	if restored.VertexAttrsOf("x")["k"] != "v" {
		t.Error("往返后属性丢失")
	}
}
