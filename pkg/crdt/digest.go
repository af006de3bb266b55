package crdt

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Digest 返回逻辑状态的规范 xxhash 摘要。
// 规范化指两点: 只覆盖可合并的状态, 不含各副本本地的 Meta;
// 映射按键排序后写入。两个已收敛的副本摘要必然相等,
// 同步器据此跳过无意义的状态传输。
func Digest(c CRDT) uint64 {
	h := xxhash.New()
	writeState(h, c)
	return h.Sum64()
}

func writeState(h *xxhash.Digest, c CRDT) {
	// 类型字节入摘要, 避免不同类型的空状态互相碰撞
	h.Write([]byte{byte(c.Type())})

	switch v := c.(type) {
	case *GCounter:
		writeCounts(h, v.Counts)
	case *PNCounter:
		writeCounts(h, v.Inc)
		writeCounts(h, v.Dec)
	case *GSet:
		writeSortedKeys(h, keysOfScalars(v.Elements))
	case *LWWRegister:
		h.Write(v.Val)
		writeInt64(h, v.Timestamp)
		writeStr(h, v.Writer)
	case *ORSet:
		writeORSet(h, v)
	case *TimeSeries:
		for _, e := range v.Entries {
			writeInt64(h, e.Ts)
			writeStr(h, e.Node)
			writeUint64(h, e.Seq)
			writeUint64(h, floatBits(e.Val))
			writeSortedPairs(h, e.Tags)
		}
		writeSeqs(h, v.Seqs)
	case *Graph:
		writeORSet(h, v.Vertices)
		writeORSet(h, v.Edges)
		writeRegisters(h, v.VertexAttrs)
		writeRegisters(h, v.EdgeAttrs)
	case *Workflow:
		writeORSet(h, v.States)
		writeORSet(h, v.Specs)
		writeState(h, v.Current)
		writeORSet(h, v.History)
		writeState(h, v.Steps)
	}
}

func writeORSet(h *xxhash.Digest, s *ORSet) {
	keys := keysOfScalars(s.Values)
	sort.Strings(keys)
	for _, k := range keys {
		writeStr(h, k)
		tags := make([]string, 0, len(s.AddSet[k]))
		for tag := range s.AddSet[k] {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			writeStr(h, tag)
		}
	}
	tombs := make([]string, 0, len(s.Tombstones))
	for tag := range s.Tombstones {
		tombs = append(tombs, tag)
	}
	writeSortedKeys(h, tombs)
}

func writeRegisters(h *xxhash.Digest, regs map[string]*LWWRegister) {
	keys := make([]string, 0, len(regs))
	for k := range regs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeStr(h, k)
		writeState(h, regs[k])
	}
}

func writeCounts(h *xxhash.Digest, m map[string]int64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeStr(h, k)
		writeInt64(h, m[k])
	}
}

func writeSeqs(h *xxhash.Digest, m map[string]uint64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeStr(h, k)
		writeUint64(h, m[k])
	}
}

func writeSortedPairs(h *xxhash.Digest, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeStr(h, k)
		writeStr(h, m[k])
	}
}

func writeSortedKeys(h *xxhash.Digest, keys []string) {
	sort.Strings(keys)
	for _, k := range keys {
		writeStr(h, k)
	}
}

func keysOfScalars(m map[string]Scalar) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// writeStr 带长度前缀写入, 防止相邻字符串拼接出歧义。
func writeStr(h *xxhash.Digest, s string) {
	writeUint64(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeInt64(h *xxhash.Digest, v int64) {
	writeUint64(h, uint64(v))
}

func writeUint64(h *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}
