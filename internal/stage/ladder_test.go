package stage

import (
	"errors"
	"math/rand"
	"testing"
)

func TestZeroLadderIsEmpty(t *testing.T) {
	var l Ladder
	if l.Current() != Empty {
		t.Fatalf("expected Empty, got %s", l.Current())
	}
	if err := l.Require("read", Topology); !errors.Is(err, ErrStageViolation) {
		t.Errorf("expected stage violation, got %v", err)
	}
}

func TestRealizeRequiresPredecessor(t *testing.T) {
	var l Ladder
	err := l.Realize(Position, nil)
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if se.Need != Time || se.Have != Empty {
		t.Errorf("unexpected error detail: %+v", se)
	}
	if l.Current() != Empty {
		t.Errorf("failed realize changed stage to %s", l.Current())
	}
}

func TestRealizeIsIdempotent(t *testing.T) {
	var l Ladder
	calls := 0
	compute := func() error { calls++; return nil }

	for s := Topology; s <= Position; s++ {
		if err := l.Realize(s, compute); err != nil {
			t.Fatalf("realize %s: %v", s, err)
		}
	}
	if calls != 5 {
		t.Fatalf("expected 5 computations, got %d", calls)
	}

	for i := 0; i < 10; i++ {
		if err := l.Realize(Position, compute); err != nil {
			t.Fatal(err)
		}
		if err := l.Realize(Model, compute); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 5 {
		t.Errorf("redundant realize recomputed: %d calls", calls)
	}
	if l.Recomputes(Position) != 1 {
		t.Errorf("expected 1 position recompute, got %d", l.Recomputes(Position))
	}
}

func TestRealizeFailureKeepsPreviousStage(t *testing.T) {
	var l Ladder
	_ = l.Realize(Topology, nil)
	boom := errors.New("boom")
	if err := l.Realize(Model, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if l.Current() != Topology {
		t.Errorf("expected Topology after failure, got %s", l.Current())
	}
}

func TestInvalidateDemotes(t *testing.T) {
	tests := []struct {
		name       string
		invalidate Stage
		want       Stage
	}{
		{"position", Position, Time},
		{"velocity", Velocity, Position},
		{"above current", Report, Acceleration},
		{"model", Model, Topology},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Ladder
			for s := Topology; s <= Acceleration; s++ {
				_ = l.Realize(s, nil)
			}
			l.Invalidate(tt.invalidate)
			if l.Current() != tt.want {
				t.Errorf("Invalidate(%s): got %s, want %s", tt.invalidate, l.Current(), tt.want)
			}
		})
	}
}

// Random realize/invalidate sequences never report a stage above the highest
// one realized since the last demotion.
func TestStageMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var l Ladder
	highest := Empty
	for i := 0; i < 2000; i++ {
		s := Stage(rng.Intn(Count))
		if rng.Intn(3) == 0 {
			l.Invalidate(s)
			if highest >= s {
				highest = s.Prev()
			}
			if l.Current() > s.Prev() {
				t.Fatalf("invalidate %s left stage at %s", s, l.Current())
			}
		} else if err := l.Realize(s, nil); err == nil && s > highest {
			highest = s
		}
		if l.Current() > highest {
			t.Fatalf("step %d: current %s exceeds highest realized %s", i, l.Current(), highest)
		}
	}
}

func TestStageString(t *testing.T) {
	if Acceleration.String() != "Acceleration" || Empty.String() != "Empty" {
		t.Errorf("unexpected names: %s %s", Acceleration, Empty)
	}
	if Stage(42).String() != "Stage(42)" {
		t.Errorf("unexpected name for invalid stage: %s", Stage(42))
	}
	if len(All()) != Count {
		t.Errorf("All() returned %d stages", len(All()))
	}
}
