package conflict

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// pairKey 规范化无序的动作对。
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x1f" + b
}

// defaultActionPairs 是内置的互斥动作表，键为动作对，值为冲突类别。
func defaultActionPairs() map[string]Type {
	return map[string]Type{
		pairKey("archive", "purge"):  TypeBusinessLogic,
		pairKey("delete", "restore"): TypeBusinessLogic,
		pairKey("purge", "restore"):  TypeBusinessLogic,
		pairKey("grant", "revoke"):   TypeAccessControl,
		pairKey("lock", "unlock"):    TypeAccessControl,
	}
}

// Detect 对一对操作做全类别检测，命中多个类别时保留最严重的一个。
// 两操作作用于不同实体且无依赖交集时返回 nil。
func (r *Resolver) Detect(a, b Operation) *Event {
	var (
		found   Type
		details string
		hit     bool
	)
	record := func(t Type, d string) {
		if !hit || t.severity() > found.severity() {
			found, details, hit = t, d, true
		}
	}

	sameEntity := a.Entity != "" && a.Entity == b.Entity

	// 数据完整性: 同一字段声明了不同的类型。
	if sameEntity && a.Field != "" && a.Field == b.Field &&
		a.FieldType != "" && b.FieldType != "" && a.FieldType != b.FieldType {
		record(TypeDataIntegrity, fmt.Sprintf("字段 %s 类型声明不一致: %s / %s", a.Field, a.FieldType, b.FieldType))
	}

	// 业务/访问控制: 互斥动作表。
	if sameEntity {
		r.mu.RLock()
		t, ok := r.actionPairs[pairKey(a.Action, b.Action)]
		r.mu.RUnlock()
		if ok {
			record(t, fmt.Sprintf("动作互斥: %s / %s", a.Action, b.Action))
		}
	}

	// 依赖: 一方依赖的资源被另一方声明为冲突。
	if overlaps(a.DependsOn, b.ConflictsWith) || overlaps(b.DependsOn, a.ConflictsWith) {
		record(TypeDependency, "依赖的资源被对方声明为冲突")
	}

	// 时序: 显式先后约束被时间戳违反。
	if precedeViolated(a, b) || precedeViolated(b, a) {
		record(TypeTemporal, "显式先后约束被违反")
	}

	// 语义: 同一字段的并发更新写了不同的值。兜底类别。
	if sameEntity && a.Field != "" && a.Field == b.Field &&
		a.Value != nil && b.Value != nil && fmt.Sprint(a.Value) != fmt.Sprint(b.Value) {
		record(TypeSemantic, fmt.Sprintf("字段 %s 并发更新", a.Field))
	}

	if !hit {
		return nil
	}

	prio := a.Priority
	if b.Priority > prio {
		prio = b.Priority
	}
	ev := &Event{
		ID:         uuid.NewString(),
		Type:       found,
		CRDTName:   a.CRDTName,
		Nodes:      []string{a.Node, b.Node},
		Ops:        [2]Operation{a, b},
		DetectedAt: time.Now(),
		Details:    details,
		Priority:   prio,
	}
	return ev
}

// precedeViolated 判断 a 要求先于某操作、而该操作的时间戳却更早。
func precedeViolated(a, b Operation) bool {
	for _, id := range a.MustPrecede {
		if id == b.ID && b.Timestamp < a.Timestamp {
			return true
		}
	}
	return false
}

func overlaps(xs, ys []string) bool {
	if len(xs) == 0 || len(ys) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		set[x] = struct{}{}
	}
	for _, y := range ys {
		if _, ok := set[y]; ok {
			return true
		}
	}
	return false
}
