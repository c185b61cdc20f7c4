package state

import "testing"

func TestMapAssignFiresLocalThenRecursive(t *testing.T) {
	root := NewMap()
	child := NewMap()
	root.Assign(StringKey("child"), MapValue(child), nil)

	var order []string
	child.Connect(func(a Action, k Key, v Value) {
		order = append(order, "local")
	})
	root.ConnectRecursive(func(origin Collection, a Action, k Key, v Value) {
		order = append(order, "recursive-root")
	})
	child.ConnectRecursive(func(origin Collection, a Action, k Key, v Value) {
		order = append(order, "recursive-child")
	})

	child.Assign(StringKey("x"), IntValue(1), nil)

	want := []string{"local", "recursive-child", "recursive-root"}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestRecapReplaysCurrentContents(t *testing.T) {
	m := NewMap()
	m.Assign(StringKey("a"), IntValue(1), nil)
	m.Assign(StringKey("b"), IntValue(2), nil)

	replay := NewMap()
	m.Recap(func(a Action, k Key, v Value) {
		if a != ActionSet {
			t.Fatalf("recap fired non-Set action")
		}
		replay.AssignFromRemote(StringKey(k.String()), v)
	})

	if !replay.equal(m) {
		t.Fatalf("replaying recap did not reproduce contents")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	m := NewMap()
	m.Assign(StringKey("name"), StringValue("wave1"), nil)
	nested := NewList()
	nested.Append(IntValue(1), nil)
	nested.Append(IntValue(2), nil)
	m.Assign(StringKey("channels"), ListValue(nested), nil)

	raw, err := ToJSONBytes(m)
	if err != nil {
		t.Fatalf("ToJSONBytes: %v", err)
	}
	v, err := FromJSONBytes(raw)
	if err != nil {
		t.Fatalf("FromJSONBytes: %v", err)
	}
	if v.Kind() != KindMap {
		t.Fatalf("expected map root")
	}
	if !v.Map().equal(m) {
		t.Fatalf("round trip did not preserve structure")
	}
}

func TestGetOnMissingKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on missing key")
		}
	}()
	m := NewMap()
	m.Get(StringKey("missing"))
}

func TestMirroredWriteDeferredUntilHookDone(t *testing.T) {
	m := NewMap()
	var pendingDone func()
	m.SetRemoteStorage(func(action Action, address string, value Value, done func()) {
		pendingDone = done
	})

	applied := false
	m.Assign(StringKey("k"), IntValue(42), func() { applied = true })

	if applied {
		t.Fatalf("assign should not apply before the hook calls done")
	}
	if m.Has(StringKey("k")) {
		t.Fatalf("value should not be visible before hook done")
	}

	pendingDone()

	if !applied {
		t.Fatalf("callback should fire once hook invokes done")
	}
	if m.Get(StringKey("k")).Int() != 42 {
		t.Fatalf("value should be visible after hook done")
	}
}

func TestScopedSubscriptionDisconnects(t *testing.T) {
	m := NewMap()
	count := 0
	h := m.Connect(func(a Action, k Key, v Value) { count++ })
	m.Assign(StringKey("a"), IntValue(1), nil)
	h.Disconnect()
	m.Assign(StringKey("b"), IntValue(2), nil)
	if count != 1 {
		t.Fatalf("expected 1 notification after disconnect, got %d", count)
	}
}
