package crdt

import (
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// edgeKey 把一条边编码为稳定的字符串元素。
// 合并双方对同一条边必然得到相同的编码。
func edgeKey(from, to string, directed bool) string {
	d := "u"
	if directed {
		d = "d"
	}
	if !directed && from > to {
		// 无向边两端排序，保证 (a,b) 与 (b,a) 是同一条边
		from, to = to, from
	}
	return from + "\x1f" + to + "\x1f" + d
}

func splitEdgeKey(key string) (from, to string, directed bool, ok bool) {
	parts := strings.Split(key, "\x1f")
	if len(parts) != 3 {
		return "", "", false, false
	}
	return parts[0], parts[1], parts[2] == "d", true
}

// Graph 实现基于 OR-Set 的图：顶点集与边集各是一个 ORSet，
// 顶点/边的属性袋各自存放在按 ID 索引的 LWW 寄存器中。
type Graph struct {
	Meta        Meta                    `msgpack:"meta"`
	Vertices    *ORSet                  `msgpack:"vertices"`
	Edges       *ORSet                  `msgpack:"edges"`
	VertexAttrs map[string]*LWWRegister `msgpack:"vertex_attrs"`
	EdgeAttrs   map[string]*LWWRegister `msgpack:"edge_attrs"`
}

// NewGraph 创建一个新的 Graph。
func NewGraph(nodeID string) *Graph {
	return &Graph{
		Meta:        newMeta(nodeID),
		Vertices:    NewORSet(nodeID),
		Edges:       NewORSet(nodeID),
		VertexAttrs: make(map[string]*LWWRegister),
		EdgeAttrs:   make(map[string]*LWWRegister),
	}
}

// Metadata 返回副本元信息。
func (g *Graph) Metadata() Meta {
	return g.Meta
}

func (g *Graph) Type() Type {
	return TypeGraph
}

// Value 返回 (顶点数, 边数)。
func (g *Graph) Value() any {
	return map[string]int{
		"vertices": g.Vertices.Len(),
		"edges":    g.Edges.Len(),
	}
}

// AddVertex 添加一个顶点。
func (g *Graph) AddVertex(id string) {
	g.Vertices.Add(String(id))
	g.Meta.touch()
}

// HasVertex 判断顶点是否存在。
func (g *Graph) HasVertex(id string) bool {
	return g.Vertices.Contains(String(id))
}

// AddEdge 添加一条边。任一端点不存在时返回 false。
func (g *Graph) AddEdge(from, to string, directed bool) bool {
	if !g.HasVertex(from) || !g.HasVertex(to) {
		return false
	}
	g.Edges.Add(String(edgeKey(from, to, directed)))
	g.Meta.touch()
	return true
}

// HasEdge 判断边是否存在。
func (g *Graph) HasEdge(from, to string, directed bool) bool {
	return g.Edges.Contains(String(edgeKey(from, to, directed)))
}

// RemoveEdge 移除一条边及其属性。
func (g *Graph) RemoveEdge(from, to string, directed bool) {
	key := edgeKey(from, to, directed)
	g.Edges.Remove(String(key))
	delete(g.EdgeAttrs, key)
	g.Meta.touch()
}

// RemoveVertex 移除顶点，并级联移除所有关联的边。
func (g *Graph) RemoveVertex(id string) {
	for _, e := range g.Edges.Elements() {
		key, _ := e.Interface().(string)
		from, to, _, ok := splitEdgeKey(key)
		if !ok {
			continue
		}
		if from == id || to == id {
			g.Edges.Remove(e)
			delete(g.EdgeAttrs, key)
		}
	}
	g.Vertices.Remove(String(id))
	delete(g.VertexAttrs, id)
	g.Meta.touch()
}

// SetVertexAttrs 写入顶点属性袋（msgpack 编码的 map）。
func (g *Graph) SetVertexAttrs(id string, attrs map[string]string, ts int64) error {
	raw, err := msgpack.Marshal(attrs)
	if err != nil {
		return err
	}
	reg, ok := g.VertexAttrs[id]
	if !ok {
		reg = NewLWWRegister(g.Meta.NodeID)
		g.VertexAttrs[id] = reg
	}
	reg.Set(raw, ts, g.Meta.NodeID)
	g.Meta.touch()
	return nil
}

// VertexAttrsOf 读取顶点属性袋。
func (g *Graph) VertexAttrsOf(id string) map[string]string {
	reg, ok := g.VertexAttrs[id]
	if !ok {
		return nil
	}
	raw, _ := reg.Value().([]byte)
	if len(raw) == 0 {
		return nil
	}
	var attrs map[string]string
	if err := msgpack.Unmarshal(raw, &attrs); err != nil {
		return nil
	}
	return attrs
}

// SetEdgeAttrs 写入边属性袋。
func (g *Graph) SetEdgeAttrs(from, to string, directed bool, attrs map[string]string, ts int64) error {
	raw, err := msgpack.Marshal(attrs)
	if err != nil {
		return err
	}
	key := edgeKey(from, to, directed)
	reg, ok := g.EdgeAttrs[key]
	if !ok {
		reg = NewLWWRegister(g.Meta.NodeID)
		g.EdgeAttrs[key] = reg
	}
	reg.Set(raw, ts, g.Meta.NodeID)
	g.Meta.touch()
	return nil
}

// EdgeAttrsOf 读取边属性袋。
func (g *Graph) EdgeAttrsOf(from, to string, directed bool) map[string]string {
	reg, ok := g.EdgeAttrs[edgeKey(from, to, directed)]
	if !ok {
		return nil
	}
	raw, _ := reg.Value().([]byte)
	if len(raw) == 0 {
		return nil
	}
	var attrs map[string]string
	if err := msgpack.Unmarshal(raw, &attrs); err != nil {
		return nil
	}
	return attrs
}

// Neighbors 返回顶点的出邻居（无向边双向可达），按字典序排序。
func (g *Graph) Neighbors(id string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, e := range g.Edges.Elements() {
		key, _ := e.Interface().(string)
		from, to, directed, ok := splitEdgeKey(key)
		if !ok {
			continue
		}
		var n string
		switch {
		case from == id:
			n = to
		case to == id && !directed:
			n = from
		default:
			continue
		}
		if _, dup := seen[n]; !dup {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Degree 返回顶点的度数（邻居数量）。
func (g *Graph) Degree(id string) int {
	return len(g.Neighbors(id))
}

// ShortestPath 用广度优先搜索返回 from 到 to 的最短路径。
// 访问过的顶点不会重复入队，因此有环图上必然终止。
// 在 maxDepth 步内找不到路径时返回 nil。
func (g *Graph) ShortestPath(from, to string, maxDepth int) []string {
	if !g.HasVertex(from) || !g.HasVertex(to) {
		return nil
	}
	if from == to {
		return []string{from}
	}

	type queued struct {
		vertex string
		path   []string
	}
	visited := map[string]struct{}{from: {}}
	queue := []queued{{vertex: from, path: []string{from}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path)-1 >= maxDepth {
			continue
		}
		for _, n := range g.Neighbors(cur.vertex) {
			if _, dup := visited[n]; dup {
				continue
			}
			path := append(append([]string{}, cur.path...), n)
			if n == to {
				return path
			}
			visited[n] = struct{}{}
			queue = append(queue, queued{vertex: n, path: path})
		}
	}
	return nil
}

func (g *Graph) Merge(other CRDT) error {
	o, ok := other.(*Graph)
	if !ok {
		return ErrTypeMismatch
	}
	if err := g.Vertices.Merge(o.Vertices); err != nil {
		return err
	}
	if err := g.Edges.Merge(o.Edges); err != nil {
		return err
	}
	for id, reg := range o.VertexAttrs {
		local, ok := g.VertexAttrs[id]
		if !ok {
			// 复制而不是共享指针, 否则两个图会互相篡改属性
			cp := *reg
			g.VertexAttrs[id] = &cp
			continue
		}
		if err := local.Merge(reg); err != nil {
			return err
		}
	}
	for key, reg := range o.EdgeAttrs {
		local, ok := g.EdgeAttrs[key]
		if !ok {
			cp := *reg
			g.EdgeAttrs[key] = &cp
			continue
		}
		if err := local.Merge(reg); err != nil {
			return err
		}
	}

	// 合并后重放级联约束：失去端点的边一并移除
	for _, e := range g.Edges.Elements() {
		key, _ := e.Interface().(string)
		from, to, _, ok := splitEdgeKey(key)
		if !ok {
			continue
		}
		if !g.HasVertex(from) || !g.HasVertex(to) {
			g.Edges.Remove(e)
			delete(g.EdgeAttrs, key)
		}
	}
	g.Meta.touch()
	return nil
}

func (g *Graph) Bytes() ([]byte, error) {
	return msgpack.Marshal(g)
}

// GraphFromBytes 反序列化 Graph。
func GraphFromBytes(data []byte) (*Graph, error) {
	g := &Graph{}
	if err := msgpack.Unmarshal(data, g); err != nil {
		return nil, ErrCorruptState
	}
	if g.Vertices == nil {
		g.Vertices = NewORSet(g.Meta.NodeID)
	}
	if g.Edges == nil {
		g.Edges = NewORSet(g.Meta.NodeID)
	}
	if g.VertexAttrs == nil {
		g.VertexAttrs = make(map[string]*LWWRegister)
	}
	if g.EdgeAttrs == nil {
		g.EdgeAttrs = make(map[string]*LWWRegister)
	}
	return g, nil
}
