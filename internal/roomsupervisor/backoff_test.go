package roomsupervisor

import (
	"testing"
	"time"
)

const testBase = 120 * time.Second

func TestBackoffNextJitterWithinSpread(t *testing.T) {
	b := NewBackoffPolicy(testBase)
	for i := 0; i < 50; i++ {
		d := b.Next(false, false)
		if d < 0 {
			t.Fatalf("Next() = %v, want >= 0", d)
		}
		if d < testBase-jitterSpread || d > testBase+jitterSpread {
			t.Fatalf("Next() = %v, want within base +/- jitterSpread", d)
		}
	}
}

func TestBackoffNextPenaltyWidensDelay(t *testing.T) {
	b := NewBackoffPolicy(testBase)
	d := b.Next(true, false)
	if d < testBase-jitterSpread+penaltyDelay {
		t.Errorf("Next(penalty=true) = %v, want base+penalty range", d)
	}
}

func TestBackoffNextShortRunOverridesBase(t *testing.T) {
	b := NewBackoffPolicy(testBase)
	if d := b.Next(true, true); d != shortRunDelay {
		t.Errorf("Next(shortRun=true) = %v, want %v regardless of penalty", d, shortRunDelay)
	}
}

func TestBackoffNilReceiverIsNoOp(t *testing.T) {
	var b *BackoffPolicy
	if d := b.Next(true, true); d != 0 {
		t.Errorf("nil BackoffPolicy.Next() = %v, want 0", d)
	}
	b.SetBase(10 * time.Second) // must not panic
}
