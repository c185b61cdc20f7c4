package jsonpath

import (
	"fmt"

	"github.com/cajigaslab/thalamus/internal/state"
)

// Evaluate walks path from root and returns the selected value. Absent
// addresses return (Nil, false) rather than an error — spec's "Evaluating
// a path yields the selected Value" together with "JSONPath evaluation on
// a nonexistent path returns absent".
func Evaluate(root state.Value, p *Path) (state.Value, bool) {
	return evalFrom(root, root, p.steps)
}

func evalFrom(rootForRelative, current state.Value, steps []step) (state.Value, bool) {
	v := current
	for _, s := range steps {
		switch s.kind {
		case stepKey:
			if v.Kind() != state.KindMap {
				return state.Nil, false
			}
			key := state.StringKey(s.key)
			if !v.Map().Has(key) {
				return state.Nil, false
			}
			v = v.Map().Get(key)
		case stepIndex:
			if v.Kind() != state.KindList {
				return state.Nil, false
			}
			idx := s.index
			if idx < 0 {
				idx += v.List().Len()
			}
			if idx < 0 || idx >= v.List().Len() {
				return state.Nil, false
			}
			v = v.List().Get(idx)
		case stepFilter:
			if v.Kind() != state.KindList {
				return state.Nil, false
			}
			items := v.List().Snapshot()
			out := state.NewList()
			for _, item := range items {
				if evalPredicate(rootForRelative, item, s.filter) {
					out.Append(item, nil)
				}
			}
			v = state.ListValue(out)
		}
	}
	return v, true
}

func evalPredicate(root, relative state.Value, e *expr) bool {
	switch e.kind {
	case nodeBool:
		switch e.op {
		case opAnd:
			return evalPredicate(root, relative, e.left) && evalPredicate(root, relative, e.right)
		case opOr:
			return evalPredicate(root, relative, e.left) || evalPredicate(root, relative, e.right)
		}
		return false
	case nodeCompare:
		lv, lok := resolveOperand(root, relative, e.lhs)
		rv, rok := resolveOperand(root, relative, e.rhs)
		return compare(lv, lok, rv, rok, e.op)
	}
	return false
}

func resolveOperand(root, relative state.Value, o operand) (state.Value, bool) {
	switch o.kind {
	case operandLiteral:
		switch o.literal.kind {
		case litInt:
			return state.IntValue(o.literal.i), true
		case litString:
			return state.StringValue(o.literal.s), true
		case litBool:
			return state.BoolValue(o.literal.b), true
		case litNull:
			return state.Nil, true
		}
		return state.Nil, false
	case operandAbsolute:
		return evalFrom(root, root, o.path.steps)
	case operandRelative:
		return evalFrom(root, relative, o.path.steps)
	}
	return state.Nil, false
}

func compare(l state.Value, lok bool, r state.Value, rok bool, op exprOp) bool {
	if !lok || !rok {
		switch op {
		case opNe:
			return lok != rok
		case opEq:
			return lok == rok && !lok
		default:
			return false
		}
	}
	switch op {
	case opEq:
		return l.Equal(r)
	case opNe:
		return !l.Equal(r)
	}
	lf, lIsNum := numeric(l)
	rf, rIsNum := numeric(r)
	if lIsNum && rIsNum {
		switch op {
		case opLt:
			return lf < rf
		case opLe:
			return lf <= rf
		case opGt:
			return lf > rf
		case opGe:
			return lf >= rf
		}
	}
	if l.Kind() == state.KindString && r.Kind() == state.KindString {
		ls, rs := l.String(), r.String()
		switch op {
		case opLt:
			return ls < rs
		case opLe:
			return ls <= rs
		case opGt:
			return ls > rs
		case opGe:
			return ls >= rs
		}
	}
	return false
}

func numeric(v state.Value) (float64, bool) {
	switch v.Kind() {
	case state.KindInt:
		return float64(v.Int()), true
	case state.KindFloat:
		return v.Float(), true
	default:
		return 0, false
	}
}

// Write sets path to value on root, creating intermediate mappings as
// needed for steps that don't yet exist (spec: "write-through creates
// intermediates"). The terminal leaf is replaced or created; filter steps
// cannot appear in a write path.
func Write(root *state.Map, p *Path, value state.Value) error {
	return write(root, p, value, false)
}

// WriteFromRemote is Write's back-channel counterpart: it applies through
// Map/List's *FromRemote setters, bypassing any installed remote-storage
// hook, for use by the bridge/mirror when incoming transactions are
// already authoritative (spec §4.1, §4.8).
func WriteFromRemote(root *state.Map, p *Path, value state.Value) error {
	return write(root, p, value, true)
}

func write(root *state.Map, p *Path, value state.Value, fromRemote bool) error {
	if len(p.steps) == 0 {
		return fmt.Errorf("jsonpath: empty write path")
	}
	cur := state.MapValue(root)
	for i := 0; i < len(p.steps)-1; i++ {
		s := p.steps[i]
		if s.kind == stepFilter {
			return fmt.Errorf("jsonpath: filter steps are not writable")
		}
		next, ok := stepIntoCreating(cur, s, fromRemote)
		if !ok {
			return fmt.Errorf("jsonpath: cannot create intermediate at step %d", i)
		}
		cur = next
	}
	last := p.steps[len(p.steps)-1]
	switch last.kind {
	case stepKey:
		if cur.Kind() != state.KindMap {
			return fmt.Errorf("jsonpath: cannot set key on non-map")
		}
		key := state.StringKey(last.key)
		if fromRemote {
			cur.Map().AssignFromRemote(key, value)
		} else {
			cur.Map().Assign(key, value, nil)
		}
		return nil
	case stepIndex:
		if cur.Kind() != state.KindList {
			return fmt.Errorf("jsonpath: cannot set index on non-list")
		}
		l := cur.List()
		idx := last.index
		if fromRemote {
			l.AssignFromRemote(idx, value)
			return nil
		}
		if idx == l.Len() {
			l.Append(value, nil)
			return nil
		}
		l.Assign(idx, value, nil)
		return nil
	default:
		return fmt.Errorf("jsonpath: unwritable terminal step")
	}
}

// stepIntoCreating is stepInto plus intermediate creation, routed through
// the From-Remote setters when fromRemote is set so bridge-applied writes
// never re-enter a hook on an intermediate mapping either.
func stepIntoCreating(cur state.Value, s step, fromRemote bool) (state.Value, bool) {
	if !fromRemote {
		return stepInto(cur, s, true)
	}
	switch s.kind {
	case stepKey:
		if cur.Kind() != state.KindMap {
			return state.Nil, false
		}
		key := state.StringKey(s.key)
		if !cur.Map().Has(key) {
			m := state.NewMap()
			cur.Map().AssignFromRemote(key, state.MapValue(m))
			return state.MapValue(m), true
		}
		return cur.Map().Get(key), true
	case stepIndex:
		if cur.Kind() != state.KindList {
			return state.Nil, false
		}
		if s.index < 0 || s.index >= cur.List().Len() {
			return state.Nil, false
		}
		return cur.List().Get(s.index), true
	default:
		return state.Nil, false
	}
}

func stepInto(cur state.Value, s step, create bool) (state.Value, bool) {
	switch s.kind {
	case stepKey:
		if cur.Kind() != state.KindMap {
			return state.Nil, false
		}
		key := state.StringKey(s.key)
		if !cur.Map().Has(key) {
			if !create {
				return state.Nil, false
			}
			m := state.NewMap()
			cur.Map().Assign(key, state.MapValue(m), nil)
			return state.MapValue(m), true
		}
		return cur.Map().Get(key), true
	case stepIndex:
		if cur.Kind() != state.KindList {
			return state.Nil, false
		}
		if s.index < 0 || s.index >= cur.List().Len() {
			return state.Nil, false
		}
		return cur.List().Get(s.index), true
	default:
		return state.Nil, false
	}
}

// Delete removes the terminal leaf addressed by path. Deleting a
// nonexistent path is a no-op, per spec.
func Delete(root *state.Map, p *Path) {
	deleteAt(root, p, false)
}

// DeleteFromRemote is Delete's back-channel counterpart, see
// WriteFromRemote.
func DeleteFromRemote(root *state.Map, p *Path) {
	deleteAt(root, p, true)
}

func deleteAt(root *state.Map, p *Path, fromRemote bool) {
	if len(p.steps) == 0 {
		return
	}
	cur := state.MapValue(root)
	for i := 0; i < len(p.steps)-1; i++ {
		next, ok := stepInto(cur, p.steps[i], false)
		if !ok {
			return
		}
		cur = next
	}
	last := p.steps[len(p.steps)-1]
	switch last.kind {
	case stepKey:
		if cur.Kind() == state.KindMap && cur.Map().Has(state.StringKey(last.key)) {
			if fromRemote {
				cur.Map().EraseFromRemote(state.StringKey(last.key))
			} else {
				cur.Map().Erase(state.StringKey(last.key), nil)
			}
		}
	case stepIndex:
		if cur.Kind() == state.KindList && last.index >= 0 && last.index < cur.List().Len() {
			if fromRemote {
				cur.List().EraseFromRemote(last.index)
			} else {
				cur.List().Erase(last.index, nil)
			}
		}
	}
}
