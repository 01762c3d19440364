package recognition

import "time"

const (
	desktopRestartDelay = 250 * time.Millisecond
	mobileRestartDelay  = time.Second
)

// RestartPolicy bounds automatic recognizer restarts.
type RestartPolicy struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// MaxAttempts caps consecutive attempts; zero restarts for as long as
	// the session is active.
	MaxAttempts int
}

// DefaultRestartPolicy returns the platform policy.
func DefaultRestartPolicy(mobile bool) RestartPolicy {
	base := desktopRestartDelay
	if mobile {
		base = mobileRestartDelay
	}
	return RestartPolicy{
		BaseDelay:   base,
		Multiplier:  2,
		MaxDelay:    5 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before the given 1-based attempt.
func (p RestartPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = desktopRestartDelay
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether attempt exceeds the budget.
func (p RestartPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
