package link

import "testing"

func TestPlanPriority(t *testing.T) {
	s := newScheduler([]string{"05", "0C"})

	if got := s.plan(false, false); got != actionPoll {
		t.Errorf("plan(false, false) = %v, want poll", got)
	}
	if got := s.plan(true, false); got != actionReadDTCs {
		t.Errorf("plan(true, false) = %v, want read", got)
	}
	if got := s.plan(false, true); got != actionClearDTCs {
		t.Errorf("plan(false, true) = %v, want clear", got)
	}
	// Clear outranks refresh when both are pending.
	if got := s.plan(true, true); got != actionClearDTCs {
		t.Errorf("plan(true, true) = %v, want clear", got)
	}
}

func TestRotationWraps(t *testing.T) {
	s := newScheduler([]string{"05", "0C", "0D"})

	want := []string{"05", "0C", "0D", "05", "0C", "0D", "05"}
	for i, w := range want {
		if d := s.next(); d.Code != w {
			t.Fatalf("cycle %d polled %s, want %s", i, d.Code, w)
		}
	}
}

func TestRotationSkipsUnknownCodes(t *testing.T) {
	s := newScheduler([]string{"05", "ZZ", "0C"})
	if len(s.rotation) != 2 {
		t.Fatalf("rotation has %d entries, want 2", len(s.rotation))
	}
	if s.next().Code != "05" || s.next().Code != "0C" {
		t.Error("unknown code disturbed the rotation order")
	}
}
