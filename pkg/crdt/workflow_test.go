package crdt

import "testing"

func newOrderWorkflow(node string) *Workflow {
	w := NewWorkflow(node)
	for _, s := range []string{"draft", "review", "published", "archived"} {
		w.AddState(s)
	}
	w.AddTransition(TransitionSpec{From: "draft", To: "review"})
	w.AddTransition(TransitionSpec{From: "review", To: "published"})
	w.AddTransition(TransitionSpec{From: "published", To: "archived"})
	return w
}

func TestWorkflow_SeedTransition(t *testing.T) {
	w := newOrderWorkflow("node1")

	// 首次迁移不要求迁移声明，只要求目标状态已注册
	if !w.TransitionTo("draft", 100, nil) {
		t.Fatal("首次迁移到已注册状态应成功")
	}
	if w.CurrentState() != "draft" {
		t.Fatalf("预期 draft, 实际得到 %s", w.CurrentState())
	}
	if w.StepCount() != 1 {
		t.Errorf("预期步数 1, 实际得到 %d", w.StepCount())
	}
}

func TestWorkflow_GuardRejectsUnspecified(t *testing.T) {
	w := newOrderWorkflow("node1")
	w.TransitionTo("draft", 100, nil)

	// draft -> archived 没有迁移声明: 拒绝且无副作用
	if w.TransitionTo("archived", 200, nil) {
		t.Fatal("无匹配声明的迁移应被拒绝")
	}
	if w.CurrentState() != "draft" {
		t.Errorf("当前状态应保持 draft, 实际得到 %s", w.CurrentState())
	}
	if len(w.HistoryRecords()) != 1 {
		t.Errorf("历史不应新增记录, 实际有 %d 条", len(w.HistoryRecords()))
	}
	if w.StepCount() != 1 {
		t.Errorf("步数应保持 1, 实际得到 %d", w.StepCount())
	}

	// 未注册的状态同样被拒绝
	if w.TransitionTo("deleted", 300, nil) {
		t.Fatal("迁移到未注册状态应被拒绝")
	}
}

func TestWorkflow_ValidChain(t *testing.T) {
	w := newOrderWorkflow("node1")
	steps := []string{"draft", "review", "published", "archived"}
	for i, s := range steps {
		if !w.TransitionTo(s, int64(100*(i+1)), map[string]string{"actor": "tester"}) {
			t.Fatalf("迁移到 %s 失败", s)
		}
	}
	if w.CurrentState() != "archived" {
		t.Fatalf("预期 archived, 实际得到 %s", w.CurrentState())
	}
	recs := w.HistoryRecords()
	if len(recs) != 4 {
		t.Fatalf("预期 4 条历史, 实际得到 %d", len(recs))
	}
	if recs[0].To != "draft" || recs[3].To != "archived" {
		t.Errorf("历史顺序错误: %+v", recs)
	}
}

func TestWorkflow_MergeConverges(t *testing.T) {
	a := newOrderWorkflow("A")
	b := newOrderWorkflow("B")

	a.TransitionTo("draft", 100, nil)
	b.Merge(a)

	// 并发推进
	a.TransitionTo("review", 200, nil)
	b.TransitionTo("review", 200, nil)

	if err := a.Merge(b); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	if a.CurrentState() != b.CurrentState() {
		t.Errorf("合并后当前状态不一致: %s != %s", a.CurrentState(), b.CurrentState())
	}
	if len(a.HistoryRecords()) != len(b.HistoryRecords()) {
		t.Errorf("合并后历史不一致: %d != %d", len(a.HistoryRecords()), len(b.HistoryRecords()))
	}
}

func TestWorkflow_RoundTrip(t *testing.T) {
	w := newOrderWorkflow("node1")
	w.TransitionTo("draft", 100, nil)
	w.TransitionTo("review", 200, nil)

	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	restored, err := WorkflowFromBytes(data)
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if restored.CurrentState() != "review" {
		t.Errorf("往返后当前状态错误: %s", restored.CurrentState())
	}
	if restored.StepCount() != 2 {
		t.Errorf("往返后步数错误: %d", restored.StepCount())
	}
}
