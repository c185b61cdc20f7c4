package nodes

import "testing"

func TestLogProcessRecordsTextAndFires(t *testing.T) {
	l := NewLog()
	fired := false
	l.OnReady(func() { fired = true })

	l.Process("hello")
	if !fired {
		t.Fatal("expected Ready to fire")
	}
	if l.Text() != "hello" {
		t.Fatalf("got %q", l.Text())
	}
	if l.Time() == 0 {
		t.Fatal("expected a non-zero timestamp")
	}
	if !l.HasTextData() {
		t.Fatal("expected HasTextData true")
	}
}
