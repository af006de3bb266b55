package crdt

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

// 收敛性测试：固定一组操作，分散到 N 个副本上执行，
// 然后按随机顺序反复两两合并。无论合并顺序如何、重复多少次，
// 所有副本最终必须得到相同的值。

func pairwiseMergeAll(t *testing.T, replicas []CRDT, rounds int, rng *rand.Rand) {
	t.Helper()
	n := len(replicas)
	for r := 0; r < rounds; r++ {
		perm := rng.Perm(n)
		for _, i := range perm {
			for _, j := range rng.Perm(n) {
				if i == j {
					continue
				}
				other, err := FromBytes(replicas[j].Type(), mustBytes(t, replicas[j]))
				if err != nil {
					t.Fatalf("复制副本失败: %v", err)
				}
				if err := replicas[i].Merge(other); err != nil {
					t.Fatalf("合并失败: %v", err)
				}
			}
		}
	}
}

func mustBytes(t *testing.T, c CRDT) []byte {
	t.Helper()
	data, err := c.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	return data
}

func TestConvergence_GCounter(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	replicas := make([]CRDT, 4)
	for i := range replicas {
		c := NewGCounter(fmt.Sprintf("node%d", i))
		c.Increment(int64(10 * (i + 1)))
		replicas[i] = c
	}
	pairwiseMergeAll(t, replicas, 3, rng)

	want := int64(10 + 20 + 30 + 40)
	for i, r := range replicas {
		if got := r.Value().(int64); got != want {
			t.Errorf("副本 %d: 预期 %d, 实际得到 %d", i, want, got)
		}
	}
}

func TestConvergence_PNCounter(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	replicas := make([]CRDT, 3)
	for i := range replicas {
		c := NewPNCounter(fmt.Sprintf("node%d", i))
		c.Increment(int64(100))
		c.Decrement(int64(i * 10))
		replicas[i] = c
	}
	pairwiseMergeAll(t, replicas, 3, rng)

	want := int64(300 - 0 - 10 - 20)
	for i, r := range replicas {
		if got := r.Value().(int64); got != want {
			t.Errorf("副本 %d: 预期 %d, 实际得到 %d", i, want, got)
		}
	}
}

func sortedStrings(v any) []string {
	items := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, fmt.Sprintf("%v", it))
	}
	sort.Strings(out)
	return out
}

func TestConvergence_Sets(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	gsets := make([]CRDT, 3)
	orsets := make([]CRDT, 3)
	for i := range gsets {
		node := fmt.Sprintf("node%d", i)
		g := NewGSet(node)
		g.Add(String(fmt.Sprintf("g%d", i)))
		gsets[i] = g

		o := NewORSet(node)
		o.Add(String(fmt.Sprintf("o%d", i)))
		o.Add(String("shared"))
		orsets[i] = o
	}
	// 一个副本移除自己观察到的 shared；其他副本的并发添加应存活
	orsets[0].(*ORSet).Remove(String("shared"))

	pairwiseMergeAll(t, gsets, 3, rng)
	pairwiseMergeAll(t, orsets, 3, rng)

	wantG := sortedStrings(gsets[0].Value())
	wantO := sortedStrings(orsets[0].Value())
	for i := 1; i < 3; i++ {
		if got := sortedStrings(gsets[i].Value()); !reflect.DeepEqual(got, wantG) {
			t.Errorf("GSet 副本 %d 未收敛: %v != %v", i, got, wantG)
		}
		if got := sortedStrings(orsets[i].Value()); !reflect.DeepEqual(got, wantO) {
			t.Errorf("ORSet 副本 %d 未收敛: %v != %v", i, got, wantO)
		}
	}
	// add-wins: shared 依然存在
	if !orsets[0].(*ORSet).Contains(String("shared")) {
		t.Error("并发添加的 shared 应在合并后存活")
	}
}

func TestConvergence_Composites(t *testing.T) {
	rng := rand.New(rand.NewSource(4))

	series := make([]CRDT, 3)
	graphs := make([]CRDT, 3)
	for i := range series {
		node := fmt.Sprintf("node%d", i)
		s := NewTimeSeries(node, 100)
		s.Append(int64(i*100), float64(i), nil)
		series[i] = s

		g := NewGraph(node)
		g.AddVertex("hub")
		g.AddVertex(fmt.Sprintf("v%d", i))
		g.AddEdge("hub", fmt.Sprintf("v%d", i), false)
		graphs[i] = g
	}
	pairwiseMergeAll(t, series, 3, rng)
	pairwiseMergeAll(t, graphs, 3, rng)

	for i := 1; i < 3; i++ {
		if series[i].(*TimeSeries).Len() != series[0].(*TimeSeries).Len() {
			t.Errorf("TimeSeries 副本 %d 数据点数量未收敛", i)
		}
		if series[i].(*TimeSeries).Aggregate() != series[0].(*TimeSeries).Aggregate() {
			t.Errorf("TimeSeries 副本 %d 聚合未收敛", i)
		}
		if !reflect.DeepEqual(graphs[i].Value(), graphs[0].Value()) {
			t.Errorf("Graph 副本 %d 未收敛: %v != %v", i, graphs[i].Value(), graphs[0].Value())
		}
	}
}
