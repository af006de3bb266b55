package conflict

import (
	"errors"
	"time"
)

var (
	// ErrUnresolved 表示没有自动规则匹配，事件已转入人工处理列表。
	ErrUnresolved = errors.New("冲突无法自动解决, 已标记人工处理")
)

// Type 标识语义冲突的类别。
type Type int

const (
	TypeSemantic      Type = iota // 同一字段的并发更新
	TypeTemporal                  // 显式先后约束被违反
	TypeDependency                // 依赖的资源被对方声明为冲突
	TypeAccessControl             // 访问控制类操作互斥
	TypeBusinessLogic             // 业务上互斥的操作（如 archive 与 purge）
	TypeDataIntegrity             // 同一字段声明了不兼容的类型
)

// String 返回冲突类别名称。
func (t Type) String() string {
	switch t {
	case TypeSemantic:
		return "semantic"
	case TypeTemporal:
		return "temporal"
	case TypeDependency:
		return "dependency"
	case TypeAccessControl:
		return "access_control"
	case TypeBusinessLogic:
		return "business_logic"
	case TypeDataIntegrity:
		return "data_integrity"
	default:
		return "unknown"
	}
}

// severity 返回类别的严重程度，数值越大越严重。
// 排序: data-integrity > business-logic > access-control > dependency ≈ temporal > semantic
func (t Type) severity() int {
	switch t {
	case TypeDataIntegrity:
		return 5
	case TypeBusinessLogic:
		return 4
	case TypeAccessControl:
		return 3
	case TypeDependency, TypeTemporal:
		return 2
	case TypeSemantic:
		return 1
	default:
		return 0
	}
}

// Strategy 是解决策略。
type Strategy int

const (
	StrategyNone         Strategy = iota
	StrategyLastWrite             // 时间戳较大的操作胜出
	StrategyMergeValues           // 数值求和, 集合取并集
	StrategyPriorityWins          // 优先级较高的操作胜出
	StrategyManual                // 转人工处理
)

// String 返回策略名称。
func (s Strategy) String() string {
	switch s {
	case StrategyLastWrite:
		return "last_write_wins"
	case StrategyMergeValues:
		return "merge_values"
	case StrategyPriorityWins:
		return "priority_wins"
	case StrategyManual:
		return "manual"
	default:
		return "none"
	}
}

// Operation 是一条逻辑操作的描述。
// 冲突检测作用在操作对上，而不是合并后的 CRDT 值上：
// 数学合并看不到"archive 与 purge 互斥"这类业务语义。
type Operation struct {
	ID        string `json:"id"`
	Node      string `json:"node"`
	CRDTName  string `json:"crdt_name"`
	Entity    string `json:"entity"` // 目标逻辑实体
	Action    string `json:"action"` // archive / purge / update / ...
	Field     string `json:"field,omitempty"`
	FieldType string `json:"field_type,omitempty"` // 声明的字段类型
	Value     any    `json:"value,omitempty"`
	Priority  int    `json:"priority"`
	Timestamp int64  `json:"timestamp"`

	// MustPrecede 列出必须发生在本操作之后的操作 ID（显式先后约束）。
	MustPrecede []string `json:"must_precede,omitempty"`
	// DependsOn 列出本操作依赖的资源。
	DependsOn []string `json:"depends_on,omitempty"`
	// ConflictsWith 列出本操作声明与之冲突的资源。
	ConflictsWith []string `json:"conflicts_with,omitempty"`
}

// Event 是一次已检测到的冲突。
// 解决后移入有界、按存活时间淘汰的历史区。
type Event struct {
	ID           string       `json:"id"`
	Type         Type         `json:"type"`
	CRDTName     string       `json:"crdt_name"`
	Nodes        []string     `json:"nodes"`
	Ops          [2]Operation `json:"ops"`
	DetectedAt   time.Time    `json:"detected_at"`
	Strategy     Strategy     `json:"strategy"`
	ResolvedAt   time.Time    `json:"resolved_at,omitempty"`
	Details      string       `json:"details,omitempty"`
	ManualReview bool         `json:"manual_review"`
	Priority     int          `json:"priority"`
}

// Resolution 是一次解决结果。
// 语义冲突是建议性的：底层 CRDT 合并照常进行，解决结果交由上层应用。
type Resolution struct {
	Strategy Strategy
	Winner   *Operation // LWW / 优先级策略下的胜者
	Merged   any        // 合并策略下的合成值
	Details  string
}
