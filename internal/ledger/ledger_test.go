package ledger

import "testing"

func TestDiff_NewJobs(t *testing.T) {
	l := New()
	l.Seed("HP1", []int{1, 2})

	fresh := l.Diff("HP1", []int{1, 2, 3, 4})
	if len(fresh) != 2 || fresh[0] != 3 || fresh[1] != 4 {
		t.Errorf("Diff() = %v, want [3 4]", fresh)
	}
}

func TestDiff_UnseededPrinterIsAllNew(t *testing.T) {
	l := New()
	fresh := l.Diff("HP1", []int{7})
	if len(fresh) != 1 || fresh[0] != 7 {
		t.Errorf("Diff() = %v, want [7]", fresh)
	}
}

func TestReplace_ForgetsDepartedJobs(t *testing.T) {
	l := New()
	l.Seed("HP1", []int{1, 2, 3})
	l.Replace("HP1", []int{3})

	if l.Known("HP1", 1) {
		t.Error("job 1 should be forgotten after Replace")
	}
	if !l.Known("HP1", 3) {
		t.Error("job 3 should still be known")
	}

	// A reused id after departure counts as new again.
	fresh := l.Diff("HP1", []int{1, 3})
	if len(fresh) != 1 || fresh[0] != 1 {
		t.Errorf("Diff() after reuse = %v, want [1]", fresh)
	}
}

func TestClear(t *testing.T) {
	l := New()
	l.Seed("HP1", []int{1})
	l.Seed("HP2", []int{9})
	l.Clear()

	if l.Known("HP1", 1) || l.Known("HP2", 9) {
		t.Error("Clear() should drop all printers")
	}
	if len(l.Printers()) != 0 {
		t.Errorf("Printers() after Clear = %v, want empty", l.Printers())
	}
}

func TestDiff_PreservesArrivalOrder(t *testing.T) {
	l := New()
	l.Seed("HP1", nil)
	fresh := l.Diff("HP1", []int{5, 2, 9})
	want := []int{5, 2, 9}
	for i, id := range want {
		if fresh[i] != id {
			t.Fatalf("Diff() = %v, want %v", fresh, want)
		}
	}
}
