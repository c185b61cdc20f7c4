package nodes

import "testing"

func TestAlgebraIdentity(t *testing.T) {
	a := NewAlgebra()
	if parseErr := a.SetEquation("X*2+1"); parseErr {
		t.Fatalf("expected equation to parse")
	}
	src := newFakeAnalog([][]float64{{0.0, 1.0, -1.0, 3.5}}, []string{"ch0"})
	a.onSourceReady(src)

	want := []float64{1.0, 3.0, -1.0, 8.0}
	got := a.Data(0)
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestAlgebraBadEquationMarksParseError(t *testing.T) {
	a := NewAlgebra()
	if parseErr := a.SetEquation("X*("); !parseErr {
		t.Fatalf("expected parse error for malformed equation")
	}
}

func TestAlgebraPassthroughWithoutEquation(t *testing.T) {
	a := NewAlgebra()
	src := newFakeAnalog([][]float64{{1, 2, 3}}, []string{"ch0"})
	a.onSourceReady(src)
	got := a.Data(0)
	for i, v := range []float64{1, 2, 3} {
		if got[i] != v {
			t.Fatalf("index %d: got %v want %v", i, got[i], v)
		}
	}
}
