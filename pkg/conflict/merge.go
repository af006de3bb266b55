package conflict

// mergeable 判断两个值能否做无损合并: 数值求和, 字符串集合取并集。
func mergeable(a, b any) bool {
	if _, _, ok := asNumbers(a, b); ok {
		return true
	}
	_, aok := asStringSlice(a)
	_, bok := asStringSlice(b)
	return aok && bok
}

// mergeValues 合成双方的值。调用前需用 mergeable 判定。
func mergeValues(a, b any) any {
	if x, y, ok := asNumbers(a, b); ok {
		return x + y
	}
	xs, _ := asStringSlice(a)
	ys, _ := asStringSlice(b)
	seen := make(map[string]struct{}, len(xs)+len(ys))
	out := make([]string, 0, len(xs)+len(ys))
	for _, s := range append(xs, ys...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func asNumbers(a, b any) (float64, float64, bool) {
	x, aok := asFloat(a)
	y, bok := asFloat(b)
	return x, y, aok && bok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}
