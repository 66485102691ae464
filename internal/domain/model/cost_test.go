package model

import "testing"

func TestEstimateCostBaseline(t *testing.T) {
	est := EstimateCost(500, false, 0)
	if est.TotalCredits != 1 {
		t.Errorf("total = %d, want 1", est.TotalCredits)
	}
	b := est.Breakdown
	if b.LengthMicro != 0 || b.ImageMicro != 0 || b.ContextMicro != 0 {
		t.Errorf("short plain message should carry no surcharges: %+v", b)
	}
	if b.BaseMicro != MicroPerCredit {
		t.Errorf("base = %d, want %d", b.BaseMicro, MicroPerCredit)
	}
}

func TestEstimateCostSurcharges(t *testing.T) {
	// Long message with images in a large conversation: 1 + 1 + 2 + 1.
	est := EstimateCost(2500, true, 6000)
	if est.TotalCredits != 5 {
		t.Errorf("total = %d, want 5", est.TotalCredits)
	}
	b := est.Breakdown
	if b.LengthMicro != MicroPerCredit {
		t.Errorf("length surcharge = %d, want %d", b.LengthMicro, MicroPerCredit)
	}
	if b.ImageMicro != 2*MicroPerCredit {
		t.Errorf("image surcharge = %d, want %d", b.ImageMicro, 2*MicroPerCredit)
	}
	if b.ContextMicro != MicroPerCredit {
		t.Errorf("context surcharge = %d, want %d", b.ContextMicro, MicroPerCredit)
	}
}

func TestEstimateCostHalfCreditRoundsUp(t *testing.T) {
	// Medium-length message adds half a credit; the total rounds up once.
	est := EstimateCost(1500, false, 0)
	if est.Breakdown.LengthMicro != MicroPerCredit/2 {
		t.Errorf("length surcharge = %d, want %d", est.Breakdown.LengthMicro, MicroPerCredit/2)
	}
	if est.TotalCredits != 2 {
		t.Errorf("total = %d, want 2", est.TotalCredits)
	}
}

func TestEstimateCostBoundaries(t *testing.T) {
	// Thresholds are strict greater-than.
	if est := EstimateCost(1000, false, 0); est.Breakdown.LengthMicro != 0 {
		t.Errorf("1000 chars should not surcharge, got %d", est.Breakdown.LengthMicro)
	}
	if est := EstimateCost(2000, false, 0); est.Breakdown.LengthMicro != MicroPerCredit/2 {
		t.Errorf("2000 chars should surcharge half, got %d", est.Breakdown.LengthMicro)
	}
	if est := EstimateCost(100, false, 5000); est.Breakdown.ContextMicro != 0 {
		t.Errorf("5000 context should not surcharge, got %d", est.Breakdown.ContextMicro)
	}
}

func TestEstimateCostDeterministic(t *testing.T) {
	a := EstimateCost(1234, true, 4321)
	for i := 0; i < 5; i++ {
		if b := EstimateCost(1234, true, 4321); b != a {
			t.Fatalf("estimate not stable: %+v vs %+v", a, b)
		}
	}
}

func TestEstimateCostMonotonicInLength(t *testing.T) {
	prev := 0
	for _, n := range []int{0, 500, 1001, 1500, 2001, 10_000} {
		tot := EstimateCost(n, false, 0).TotalCredits
		if tot < prev {
			t.Fatalf("total decreased at length %d: %d < %d", n, tot, prev)
		}
		prev = tot
	}
}
