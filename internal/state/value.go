// Package state implements the observable state tree: a hierarchical
// mutable document of nested maps and lists with per-collection change
// signals, JSONPath addressing, and a remote-storage mirroring hook.
package state

import "fmt"

// Kind tags the dynamic type carried by a Value or Key.
type Kind uint8

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is the tagged union carried by the tree: nothing, an integer, a
// real, a boolean, a string, or a reference to a nested Map/List. Map and
// List values are shared by reference — assigning one into two places
// makes both addresses observe the same underlying collection.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	m    *Map
	l    *List
}

// Nil is the empty Value.
var Nil = Value{kind: KindNil}

func IntValue(v int64) Value      { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value  { return Value{kind: KindFloat, f: v} }
func BoolValue(v bool) Value      { return Value{kind: KindBool, b: v} }
func StringValue(v string) Value  { return Value{kind: KindString, s: v} }
func MapValue(v *Map) Value       { return Value{kind: KindMap, m: v} }
func ListValue(v *List) Value     { return Value{kind: KindList, l: v} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

// Int returns the integer payload; it is a contract violation to call this
// on a Value whose Kind is not KindInt.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		panic(fmt.Sprintf("state: Value.Int on kind %s", v.kind))
	}
	return v.i
}

func (v Value) Float() float64 {
	if v.kind != KindFloat {
		panic(fmt.Sprintf("state: Value.Float on kind %s", v.kind))
	}
	return v.f
}

// AsFloat coerces Int or Float kinds to float64, the common case for
// numeric node configuration (sample rates, thresholds, ...).
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	default:
		panic(fmt.Sprintf("state: Value.AsFloat on kind %s", v.kind))
	}
}

func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic(fmt.Sprintf("state: Value.Bool on kind %s", v.kind))
	}
	return v.b
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNil:
		return ""
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

func (v Value) Map() *Map {
	if v.kind != KindMap {
		panic(fmt.Sprintf("state: Value.Map on kind %s", v.kind))
	}
	return v.m
}

func (v Value) List() *List {
	if v.kind != KindList {
		panic(fmt.Sprintf("state: Value.List on kind %s", v.kind))
	}
	return v.l
}

// Equal reports structural equality, matching collections by recursive
// content rather than identity.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindMap:
		return v.m.equal(o.m)
	case KindList:
		return v.l.equal(o.l)
	}
	return false
}

// Key is the tagged union accepted as a Map key: integer, boolean, or
// string, per spec.
type Key struct {
	kind Kind
	i    int64
	b    bool
	s    string
}

func IntKey(v int64) Key     { return Key{kind: KindInt, i: v} }
func BoolKey(v bool) Key     { return Key{kind: KindBool, b: v} }
func StringKey(v string) Key { return Key{kind: KindString, s: v} }

func (k Key) Kind() Kind { return k.kind }

func (k Key) String() string {
	switch k.kind {
	case KindString:
		return k.s
	case KindInt:
		return fmt.Sprintf("%d", k.i)
	case KindBool:
		return fmt.Sprintf("%t", k.b)
	default:
		return ""
	}
}

func (k Key) Equal(o Key) bool {
	if k.kind != o.kind {
		return false
	}
	switch k.kind {
	case KindInt:
		return k.i == o.i
	case KindBool:
		return k.b == o.b
	case KindString:
		return k.s == o.s
	}
	return true
}
