package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(node, entity, action string) Operation {
	return Operation{
		ID:        node + "-" + action,
		Node:      node,
		CRDTName:  "tasks",
		Entity:    entity,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestDetectBusinessLogic(t *testing.T) {
	r := NewResolver()

	// archive 与 purge 互斥, 转人工
	ev := r.Detect(op("node-a", "doc-1", "archive"), op("node-b", "doc-1", "purge"))
	require.NotNil(t, ev)
	assert.Equal(t, TypeBusinessLogic, ev.Type)

	_, err := r.Resolve(ev)
	assert.ErrorIs(t, err, ErrUnresolved)
	require.Len(t, r.Pending(), 1)
	assert.True(t, r.Pending()[0].ManualReview)
}

func TestDetectNoConflict(t *testing.T) {
	r := NewResolver()
	// 不同实体, 无依赖交集
	assert.Nil(t, r.Detect(op("node-a", "doc-1", "archive"), op("node-b", "doc-2", "purge")))
	// 同实体, 动作不互斥
	assert.Nil(t, r.Detect(op("node-a", "doc-1", "tag"), op("node-b", "doc-1", "comment")))
}

func TestSeverityOrdering(t *testing.T) {
	r := NewResolver()
	a := op("node-a", "doc-1", "archive")
	b := op("node-b", "doc-1", "purge")
	// 同时命中业务互斥和数据完整性, 保留更严重的后者
	a.Field, a.FieldType = "status", "string"
	b.Field, b.FieldType = "status", "int"
	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	assert.Equal(t, TypeDataIntegrity, ev.Type)
}

func TestSemanticLWW(t *testing.T) {
	r := NewResolver()
	a := op("node-a", "doc-1", "update")
	b := op("node-b", "doc-1", "update")
	a.Field, a.Value, a.Timestamp = "title", "草稿", 100
	b.Field, b.Value, b.Timestamp = "title", "定稿", 200

	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	assert.Equal(t, TypeSemantic, ev.Type)

	res, err := r.Resolve(ev)
	require.NoError(t, err)
	assert.Equal(t, StrategyLastWrite, res.Strategy)
	assert.Equal(t, "node-b", res.Winner.Node)
	assert.Len(t, r.History(), 1)
}

func TestSemanticMergeNumbers(t *testing.T) {
	r := NewResolver()
	a := op("node-a", "doc-1", "update")
	b := op("node-b", "doc-1", "update")
	a.Field, a.Value = "count", int64(3)
	b.Field, b.Value = "count", int64(4)

	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	res, err := r.Resolve(ev)
	require.NoError(t, err)
	assert.Equal(t, StrategyMergeValues, res.Strategy)
	assert.Equal(t, float64(7), res.Merged)
}

func TestSemanticMergeSets(t *testing.T) {
	r := NewResolver()
	a := op("node-a", "doc-1", "update")
	b := op("node-b", "doc-1", "update")
	a.Field, a.Value = "tags", []string{"红", "绿"}
	b.Field, b.Value = "tags", []string{"绿", "蓝"}

	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	res, err := r.Resolve(ev)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"红", "绿", "蓝"}, res.Merged.([]string))
}

func TestAccessControlPriorityWins(t *testing.T) {
	r := NewResolver()
	a := op("node-a", "user-1", "grant")
	b := op("node-b", "user-1", "revoke")
	a.Priority, b.Priority = 1, 5

	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	assert.Equal(t, TypeAccessControl, ev.Type)

	res, err := r.Resolve(ev)
	require.NoError(t, err)
	assert.Equal(t, StrategyPriorityWins, res.Strategy)
	assert.Equal(t, "node-b", res.Winner.Node)
}

func TestTemporalViolation(t *testing.T) {
	r := NewResolver()
	a := op("node-a", "job-1", "start")
	b := op("node-b", "job-1", "finish")
	// a 要求先于 b, 但 b 的时间戳更早
	a.MustPrecede = []string{b.ID}
	a.Timestamp, b.Timestamp = 500, 100

	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	assert.Equal(t, TypeTemporal, ev.Type)

	res, err := r.Resolve(ev)
	require.NoError(t, err)
	assert.Equal(t, StrategyLastWrite, res.Strategy)
	assert.Equal(t, "node-a", res.Winner.Node)
}

func TestDependencyConflict(t *testing.T) {
	r := NewResolver()
	a := op("node-a", "svc-1", "deploy")
	b := op("node-b", "svc-2", "teardown")
	a.DependsOn = []string{"db-1"}
	b.ConflictsWith = []string{"db-1"}

	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	assert.Equal(t, TypeDependency, ev.Type)
}

func TestManualResolution(t *testing.T) {
	r := NewResolver()
	ev := r.Detect(op("node-a", "doc-1", "archive"), op("node-b", "doc-1", "purge"))
	require.NotNil(t, ev)
	_, err := r.Resolve(ev)
	require.ErrorIs(t, err, ErrUnresolved)

	res, err := r.ResolveManually(ev.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "node-b", res.Winner.Node)
	assert.Empty(t, r.Pending())
	assert.Len(t, r.History(), 1)

	_, err = r.ResolveManually(ev.ID, 0)
	assert.Error(t, err) // 已经不在待处理列表里
}

func TestAutoResolveDisabled(t *testing.T) {
	r := NewResolver(WithAutoResolve(false))
	a := op("node-a", "doc-1", "update")
	b := op("node-b", "doc-1", "update")
	a.Field, a.Value = "title", "x"
	b.Field, b.Value = "title", "y"

	ev := r.Detect(a, b)
	require.NotNil(t, ev)
	_, err := r.Resolve(ev)
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestCustomActionPair(t *testing.T) {
	r := NewResolver(WithActionPair("freeze", "thaw", TypeBusinessLogic))
	ev := r.Detect(op("node-a", "acct-1", "freeze"), op("node-b", "acct-1", "thaw"))
	require.NotNil(t, ev)
	assert.Equal(t, TypeBusinessLogic, ev.Type)
}

func TestHistoryBounded(t *testing.T) {
	r := NewResolver(WithHistory(2, time.Hour))
	for i := 0; i < 4; i++ {
		a := op("node-a", "doc-1", "update")
		b := op("node-b", "doc-1", "update")
		a.Field, a.Value, a.Timestamp = "title", "x", int64(i)
		b.Field, b.Value, b.Timestamp = "title", "y", int64(i+1)
		ev := r.Detect(a, b)
		require.NotNil(t, ev)
		_, err := r.Resolve(ev)
		require.NoError(t, err)
	}
	assert.Len(t, r.History(), 2)
}
