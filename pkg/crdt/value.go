package crdt

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// ScalarKind 标识集合元素的值类型。
type ScalarKind byte

const (
	KindString ScalarKind = 0x01
	KindInt    ScalarKind = 0x02
	KindFloat  ScalarKind = 0x03
	KindBool   ScalarKind = 0x04
	KindBytes  ScalarKind = 0x05
)

// Scalar 是集合元素的显式类型联合。
// 序列化时类型标签与值一起存储，反序列化不做任何类型推断。
type Scalar struct {
	Kind  ScalarKind `msgpack:"kind"`
	Str   string     `msgpack:"str,omitempty"`
	Int   int64      `msgpack:"int,omitempty"`
	Float float64    `msgpack:"float,omitempty"`
	Bool  bool       `msgpack:"bool,omitempty"`
	Bin   []byte     `msgpack:"bin,omitempty"`
}

// String 构造字符串标量。
func String(v string) Scalar { return Scalar{Kind: KindString, Str: v} }

// Int 构造整数标量。
func Int(v int64) Scalar { return Scalar{Kind: KindInt, Int: v} }

// Float 构造浮点标量。
func Float(v float64) Scalar { return Scalar{Kind: KindFloat, Float: v} }

// Bool 构造布尔标量。
func Bool(v bool) Scalar { return Scalar{Kind: KindBool, Bool: v} }

// Bytes 构造字节串标量。
func Bytes(v []byte) Scalar {
	b := make([]byte, len(v))
	copy(b, v)
	return Scalar{Kind: KindBytes, Bin: b}
}

// Key 返回标量的规范化映射键。
// 同值同类型必然得到相同的键，不同类型即使文本相同也不会碰撞。
func (s Scalar) Key() string {
	switch s.Kind {
	case KindString:
		return "s:" + s.Str
	case KindInt:
		return "i:" + strconv.FormatInt(s.Int, 10)
	case KindFloat:
		return "f:" + strconv.FormatFloat(s.Float, 'g', -1, 64)
	case KindBool:
		return "b:" + strconv.FormatBool(s.Bool)
	case KindBytes:
		return "x:" + base64.StdEncoding.EncodeToString(s.Bin)
	default:
		return fmt.Sprintf("?:%d", s.Kind)
	}
}

// Interface 返回标量的原生 Go 值。
func (s Scalar) Interface() any {
	switch s.Kind {
	case KindString:
		return s.Str
	case KindInt:
		return s.Int
	case KindFloat:
		return s.Float
	case KindBool:
		return s.Bool
	case KindBytes:
		return s.Bin
	default:
		return nil
	}
}
