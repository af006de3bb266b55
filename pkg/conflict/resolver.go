package conflict

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Rule 把一类冲突映射到一个解决策略，Priority 大者先匹配。
type Rule struct {
	Name     string
	Priority int
	Match    func(*Event) bool
	Strategy Strategy
}

// Resolver 负责语义冲突的检测与解决。
// 解决是建议性的: CRDT 的数学合并不会被阻塞, 解决结果供上层应用参考。
type Resolver struct {
	mu          sync.RWMutex
	rules       []Rule
	actionPairs map[string]Type
	pending     map[string]*Event
	history     *expirable.LRU[string, *Event]
	autoResolve bool
}

// Option 配置 Resolver。
type Option func(*Resolver)

// WithAutoResolve 控制是否允许自动解决, 关闭后所有冲突都转人工。
func WithAutoResolve(on bool) Option {
	return func(r *Resolver) { r.autoResolve = on }
}

// WithActionPair 注册一对互斥动作及其冲突类别。
func WithActionPair(a, b string, t Type) Option {
	return func(r *Resolver) { r.actionPairs[pairKey(a, b)] = t }
}

// WithHistory 设置已解决历史区的容量和存活时间。
func WithHistory(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.history = expirable.NewLRU[string, *Event](size, nil, ttl)
	}
}

// NewResolver 创建带默认规则表的解决器。
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		actionPairs: defaultActionPairs(),
		pending:     make(map[string]*Event),
		history:     expirable.NewLRU[string, *Event](1024, nil, 24*time.Hour),
		autoResolve: true,
	}
	r.rules = defaultRules()
	for _, opt := range opts {
		opt(r)
	}
	sort.SliceStable(r.rules, func(i, j int) bool { return r.rules[i].Priority > r.rules[j].Priority })
	return r
}

// defaultRules 是按严重程度排布的内置规则表。
// 数据完整性与业务互斥不可自动合并, 一律转人工。
func defaultRules() []Rule {
	return []Rule{
		{
			Name:     "data-integrity-manual",
			Priority: 100,
			Match:    func(ev *Event) bool { return ev.Type == TypeDataIntegrity },
			Strategy: StrategyManual,
		},
		{
			Name:     "business-logic-manual",
			Priority: 90,
			Match:    func(ev *Event) bool { return ev.Type == TypeBusinessLogic },
			Strategy: StrategyManual,
		},
		{
			Name:     "access-control-priority",
			Priority: 80,
			Match:    func(ev *Event) bool { return ev.Type == TypeAccessControl },
			Strategy: StrategyPriorityWins,
		},
		{
			Name:     "dependency-priority",
			Priority: 70,
			Match:    func(ev *Event) bool { return ev.Type == TypeDependency },
			Strategy: StrategyPriorityWins,
		},
		{
			Name:     "temporal-lww",
			Priority: 60,
			Match:    func(ev *Event) bool { return ev.Type == TypeTemporal },
			Strategy: StrategyLastWrite,
		},
		{
			Name:     "semantic-mergeable",
			Priority: 50,
			Match: func(ev *Event) bool {
				return ev.Type == TypeSemantic && mergeable(ev.Ops[0].Value, ev.Ops[1].Value)
			},
			Strategy: StrategyMergeValues,
		},
		{
			Name:     "semantic-lww",
			Priority: 40,
			Match:    func(ev *Event) bool { return ev.Type == TypeSemantic },
			Strategy: StrategyLastWrite,
		},
	}
}

// AddRule 注册一条自定义规则并保持按优先级排序。
func (r *Resolver) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool { return r.rules[i].Priority > r.rules[j].Priority })
}

// Resolve 按规则表解决一个冲突事件。
// 无规则命中、规则判为人工、或自动解决被关闭时, 事件进入待处理列表并返回 ErrUnresolved。
func (r *Resolver) Resolve(ev *Event) (*Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.autoResolve {
		for _, rule := range r.rules {
			if !rule.Match(ev) {
				continue
			}
			if rule.Strategy == StrategyManual {
				break
			}
			res := r.apply(rule.Strategy, ev)
			ev.Strategy = rule.Strategy
			ev.ResolvedAt = time.Now()
			r.history.Add(ev.ID, ev)
			log.Printf("[Conflict] ✅ 冲突 %s (%s) 由规则 %s 解决: %s", ev.ID, ev.Type, rule.Name, res.Details)
			return res, nil
		}
	}

	ev.ManualReview = true
	ev.Strategy = StrategyManual
	r.pending[ev.ID] = ev
	log.Printf("[Conflict] ⚠️ 冲突 %s (%s) 转人工处理: %s", ev.ID, ev.Type, ev.Details)
	return nil, ErrUnresolved
}

// apply 执行一个自动策略。调用方持有 r.mu。
func (r *Resolver) apply(s Strategy, ev *Event) *Resolution {
	a, b := &ev.Ops[0], &ev.Ops[1]
	switch s {
	case StrategyLastWrite:
		w := a
		if b.Timestamp > a.Timestamp || (b.Timestamp == a.Timestamp && b.Node > a.Node) {
			w = b
		}
		return &Resolution{Strategy: s, Winner: w, Details: fmt.Sprintf("节点 %s 的写入胜出", w.Node)}
	case StrategyPriorityWins:
		w := a
		if b.Priority > a.Priority || (b.Priority == a.Priority && b.Timestamp > a.Timestamp) {
			w = b
		}
		return &Resolution{Strategy: s, Winner: w, Details: fmt.Sprintf("优先级 %d 的操作胜出", w.Priority)}
	case StrategyMergeValues:
		merged := mergeValues(a.Value, b.Value)
		return &Resolution{Strategy: s, Merged: merged, Details: "双方值已合并"}
	default:
		return &Resolution{Strategy: s}
	}
}

// ResolveManually 由操作员裁定一个待处理冲突, winner 取 0 或 1。
func (r *Resolver) ResolveManually(id string, winner int) (*Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.pending[id]
	if !ok {
		return nil, fmt.Errorf("待处理冲突不存在: %s", id)
	}
	if winner != 0 && winner != 1 {
		return nil, fmt.Errorf("无效的胜者序号: %d", winner)
	}
	delete(r.pending, id)
	ev.ManualReview = false
	ev.ResolvedAt = time.Now()
	r.history.Add(ev.ID, ev)
	w := ev.Ops[winner]
	return &Resolution{Strategy: StrategyManual, Winner: &w, Details: "人工裁定"}, nil
}

// Pending 返回待人工处理的冲突, 按检测时间排序。
func (r *Resolver) Pending() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Event, 0, len(r.pending))
	for _, ev := range r.pending {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out
}

// History 返回仍在存活期内的已解决冲突。
func (r *Resolver) History() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history.Values()
}
