package artemis

import (
	"testing"
	"time"
)

func durations(ms ...int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, m := range ms {
		out[i] = time.Duration(m) * time.Millisecond
	}
	return out
}

func assertSequence(t *testing.T, p RecoveryPolicy, want []time.Duration) {
	t.Helper()
	for i, w := range want {
		got := p.Delay(i)
		if got != w {
			t.Errorf("attempt %d: got %s, want %s", i, got, w)
		}
	}
}

func TestExponentialReferenceSequence(t *testing.T) {
	p, err := NewExponential(10*time.Millisecond, 0, Unbounded, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	assertSequence(t, p, durations(10, 20, 40, 80, 160))
}

func TestExponentialFactorThreeReferenceSequence(t *testing.T) {
	p, err := NewExponential(10*time.Millisecond, 0, Unbounded, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	assertSequence(t, p, durations(10, 30, 90, 270, 810))
}

func TestExponentialClampedToMax(t *testing.T) {
	p, err := NewExponential(10*time.Millisecond, 250*time.Millisecond, Unbounded, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	assertSequence(t, p, durations(10, 30, 90, 250, 250))
}

func TestExponentialFastFirst(t *testing.T) {
	p, err := NewExponential(10*time.Millisecond, 0, Unbounded, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	assertSequence(t, p, durations(0, 10, 20, 40, 80))
}

func TestExponentialFactorOneEqualsInitial(t *testing.T) {
	p, err := NewExponential(10*time.Millisecond, 0, Unbounded, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if got := p.Delay(i); got != 10*time.Millisecond {
			t.Errorf("attempt %d: got %s, want 10ms", i, got)
		}
	}
}

func TestExponentialRejectsInvalidConstruction(t *testing.T) {
	cases := []struct {
		name       string
		initial    time.Duration
		max        time.Duration
		retryCount int
		factor     float64
	}{
		{"negative initial", -1 * time.Millisecond, 0, Unbounded, 2},
		{"retryCount below -1", 10 * time.Millisecond, 0, -2, 2},
		{"factor below one", 10 * time.Millisecond, 0, Unbounded, 0.5},
		{"max below initial", 100 * time.Millisecond, 10 * time.Millisecond, Unbounded, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewExponential(tc.initial, tc.max, tc.retryCount, tc.factor, false); err == nil {
				t.Fatal("expected a configuration error, got nil")
			} else if !IsKind(err, KindConfiguration) {
				t.Fatalf("expected KindConfiguration, got %v", err)
			}
		})
	}
}

func TestLinearNeverExceedsMax(t *testing.T) {
	p, err := NewLinear(10*time.Millisecond, 35*time.Millisecond, Unbounded, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if got := p.Delay(i); got > 35*time.Millisecond {
			t.Errorf("attempt %d: %s exceeds max 35ms", i, got)
		}
	}
}

func TestConstantFastFirst(t *testing.T) {
	p, err := NewConstant(50*time.Millisecond, Unbounded, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Delay(0); got != 0 {
		t.Errorf("attempt 0: got %s, want 0", got)
	}
	if got := p.Delay(1); got != 50*time.Millisecond {
		t.Errorf("attempt 1: got %s, want 50ms", got)
	}
}

func TestDecorrelatedJitterRequiresMax(t *testing.T) {
	if _, err := NewDecorrelatedJitter(10*time.Millisecond, 0, Unbounded, false, nil); err == nil {
		t.Fatal("expected an error when max-delay is omitted")
	}
}

func TestDecorrelatedJitterStaysWithinBounds(t *testing.T) {
	seed := int64(42)
	p, err := NewDecorrelatedJitter(10*time.Millisecond, 200*time.Millisecond, Unbounded, false, &seed)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		d := p.Delay(i)
		if d < 10*time.Millisecond || d > 200*time.Millisecond {
			t.Errorf("attempt %d: %s out of [10ms,200ms]", i, d)
		}
	}
}

func TestDecorrelatedJitterDeterministicGivenSeed(t *testing.T) {
	seed := int64(7)
	p1, err := NewDecorrelatedJitter(10*time.Millisecond, 200*time.Millisecond, Unbounded, false, &seed)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := NewDecorrelatedJitter(10*time.Millisecond, 200*time.Millisecond, Unbounded, false, &seed)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		a, b := p1.Delay(i), p2.Delay(i)
		if a != b {
			t.Errorf("attempt %d: %s != %s for identical seeds", i, a, b)
		}
	}
}
