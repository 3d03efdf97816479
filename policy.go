package artemis

import (
	"math/rand"
	"time"
)

// unboundedRetries marks a RecoveryPolicy with no retry ceiling.
const unboundedRetries = -1

// Unbounded is the retry-count value meaning "retry forever".
const Unbounded = unboundedRetries

// RecoveryPolicy is a pure function from attempt index to delay, bounded
// by an effective retry count. Implementations must be deterministic:
// two invocations of Delay from the same attempt index return the same
// duration (DecorrelatedJitter excepted, which is only deterministic
// given the same injected random source and the same sequence of prior
// calls).
type RecoveryPolicy interface {
	// RetryCount returns the effective bound on attempts, or Unbounded.
	RetryCount() int
	// Delay returns the wait duration after failed attempt i, before
	// attempt i+1, for i in [0, RetryCount()) when RetryCount() is not
	// Unbounded.
	Delay(attempt int) time.Duration
}

func validateCommon(initial time.Duration, retryCount int) error {
	if initial < 0 {
		return NewError(KindConfiguration, "initial-delay must be >= 0, got %s", initial)
	}
	if retryCount < 0 && retryCount != unboundedRetries {
		return NewError(KindConfiguration, "retry-count must be >= 0 or Unbounded, got %d", retryCount)
	}
	return nil
}

func validateMax(initial, max time.Duration) error {
	if max > 0 && max < initial {
		return NewError(KindConfiguration, "max-delay (%s) must be >= initial-delay (%s)", max, initial)
	}
	return nil
}

func validateFactor(factor float64) error {
	if factor < 1 {
		return NewError(KindConfiguration, "factor must be >= 1, got %g", factor)
	}
	return nil
}

// ConstantPolicy always waits the same delay, optionally firing the
// first attempt immediately.
type ConstantPolicy struct {
	delay      time.Duration
	retryCount int
	fastFirst  bool
}

// NewConstant builds a Constant recovery policy.
func NewConstant(delay time.Duration, retryCount int, fastFirst bool) (*ConstantPolicy, error) {
	if err := validateCommon(delay, retryCount); err != nil {
		return nil, err
	}
	return &ConstantPolicy{delay: delay, retryCount: retryCount, fastFirst: fastFirst}, nil
}

// RetryCount implements RecoveryPolicy.
func (p *ConstantPolicy) RetryCount() int { return p.retryCount }

// Delay implements RecoveryPolicy.
func (p *ConstantPolicy) Delay(attempt int) time.Duration {
	if attempt == 0 && p.fastFirst {
		return 0
	}
	return p.delay
}

// LinearPolicy grows the delay linearly with the attempt index, clamped
// to an optional maximum.
type LinearPolicy struct {
	initial    time.Duration
	max        time.Duration
	retryCount int
	factor     float64
	fastFirst  bool
}

// NewLinear builds a Linear recovery policy. max == 0 means unclamped.
func NewLinear(initial, max time.Duration, retryCount int, factor float64, fastFirst bool) (*LinearPolicy, error) {
	if err := validateCommon(initial, retryCount); err != nil {
		return nil, err
	}
	if err := validateFactor(factor); err != nil {
		return nil, err
	}
	if err := validateMax(initial, max); err != nil {
		return nil, err
	}
	return &LinearPolicy{initial: initial, max: max, retryCount: retryCount, factor: factor, fastFirst: fastFirst}, nil
}

// RetryCount implements RecoveryPolicy.
func (p *LinearPolicy) RetryCount() int { return p.retryCount }

// Delay implements RecoveryPolicy.
func (p *LinearPolicy) Delay(attempt int) time.Duration {
	if attempt == 0 && p.fastFirst {
		return 0
	}
	d := time.Duration(float64(p.initial) * (1 + p.factor*float64(attempt)))
	return clamp(d, p.max)
}

// ExponentialPolicy grows the delay geometrically with the attempt
// index, clamped to an optional maximum.
type ExponentialPolicy struct {
	initial    time.Duration
	max        time.Duration
	retryCount int
	factor     float64
	fastFirst  bool
}

// NewExponential builds an Exponential recovery policy. max == 0 means
// unclamped. factor must be >= 1.
func NewExponential(initial, max time.Duration, retryCount int, factor float64, fastFirst bool) (*ExponentialPolicy, error) {
	if err := validateCommon(initial, retryCount); err != nil {
		return nil, err
	}
	if err := validateFactor(factor); err != nil {
		return nil, err
	}
	if err := validateMax(initial, max); err != nil {
		return nil, err
	}
	return &ExponentialPolicy{initial: initial, max: max, retryCount: retryCount, factor: factor, fastFirst: fastFirst}, nil
}

// RetryCount implements RecoveryPolicy.
func (p *ExponentialPolicy) RetryCount() int { return p.retryCount }

// Delay implements RecoveryPolicy.
//
// When fastFirst, delay(0) = 0 and the first "real" attempt (i=1) pays
// exactly initial, not initial*factor: the exponent used for i >= 1 is
// (i-1), not i.
func (p *ExponentialPolicy) Delay(attempt int) time.Duration {
	if p.fastFirst {
		if attempt == 0 {
			return 0
		}
		return clamp(scaleByPow(p.initial, p.factor, attempt-1), p.max)
	}
	return clamp(scaleByPow(p.initial, p.factor, attempt), p.max)
}

func scaleByPow(initial time.Duration, factor float64, exp int) time.Duration {
	if exp <= 0 {
		return initial
	}
	mult := 1.0
	for i := 0; i < exp; i++ {
		mult *= factor
	}
	return time.Duration(float64(initial) * mult)
}

func clamp(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// DecorrelatedJitterPolicy implements the "decorrelated jitter" AWS
// backoff variant: each delay is drawn uniformly from
// [initial, min(max, previous*3)). Seedable for deterministic tests.
type DecorrelatedJitterPolicy struct {
	initial    time.Duration
	max        time.Duration
	retryCount int
	fastFirst  bool
	rnd        *rand.Rand
	prev       time.Duration
}

// NewDecorrelatedJitter builds a DecorrelatedJitter recovery policy. If
// seed is nil, a time-seeded source is used; pass a fixed seed for
// reproducible test sequences.
func NewDecorrelatedJitter(initial, max time.Duration, retryCount int, fastFirst bool, seed *int64) (*DecorrelatedJitterPolicy, error) {
	if err := validateCommon(initial, retryCount); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, NewError(KindConfiguration, "max-delay is required for decorrelated jitter")
	}
	if err := validateMax(initial, max); err != nil {
		return nil, err
	}
	var src rand.Source
	if seed != nil {
		src = rand.NewSource(*seed)
	} else {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &DecorrelatedJitterPolicy{
		initial:    initial,
		max:        max,
		retryCount: retryCount,
		fastFirst:  fastFirst,
		rnd:        rand.New(src),
		prev:       initial,
	}, nil
}

// RetryCount implements RecoveryPolicy.
func (p *DecorrelatedJitterPolicy) RetryCount() int { return p.retryCount }

// Delay implements RecoveryPolicy. Note this variant is stateful by
// necessity (each draw depends on the previous draw); callers that need
// a pure replay for tests should construct a fresh policy with the same
// seed rather than calling Delay out of order.
func (p *DecorrelatedJitterPolicy) Delay(attempt int) time.Duration {
	if attempt == 0 {
		p.prev = p.initial
		if p.fastFirst {
			return 0
		}
		return p.initial
	}
	upper := p.prev * 3
	if upper > p.max {
		upper = p.max
	}
	if upper <= p.initial {
		p.prev = p.initial
		return p.initial
	}
	span := int64(upper - p.initial)
	d := p.initial + time.Duration(p.rnd.Int63n(span))
	p.prev = d
	return d
}
