package nodes

import "testing"

func TestWallClockInjectOverridesValueAndFires(t *testing.T) {
	w := NewWallClock()
	defer w.Close()

	fired := make(chan struct{}, 1)
	w.OnReady(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	if err := w.Inject([][]float64{{12345}}, nil, nil); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	select {
	case <-fired:
	default:
		t.Fatal("expected Ready to fire after inject")
	}
	if got := w.Data(0)[0]; got != 12345 {
		t.Fatalf("expected injected value, got %v", got)
	}
}

func TestWallClockInjectRejectsEmptySpans(t *testing.T) {
	w := NewWallClock()
	defer w.Close()
	if err := w.Inject(nil, nil, nil); err == nil {
		t.Fatal("expected error for empty spans")
	}
}
