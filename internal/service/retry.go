package service

import (
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts bounds how often the extension may retry one task.
const DefaultMaxAttempts = 5

// backoff spaces out retries of failed engagement tasks. The n-th retry
// waits Steps[n], or the last step once the schedule runs out, spread by up
// to ±Jitter of itself so tasks failed together do not come due together.
type backoff struct {
	Steps  []time.Duration
	Jitter float64

	// rand returns a value in [0, 1).
	rand func() float64
}

var taskBackoff = backoff{
	Steps:  []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour, 12 * time.Hour},
	Jitter: 0.2,
	rand:   rand.Float64,
}

// Delay returns the wait after failedAttempts previous failures. Zero
// means the first retry.
func (b backoff) Delay(failedAttempts int) time.Duration {
	if len(b.Steps) == 0 {
		return 0
	}
	step := min(max(failedAttempts, 0), len(b.Steps)-1)
	d := float64(b.Steps[step])
	if b.Jitter > 0 && b.rand != nil {
		d += (b.rand()*2 - 1) * b.Jitter * d
	}
	return time.Duration(d)
}

// exhausted reports whether a task that has run attempts times may not run
// again.
func exhausted(attempts, maxAttempts int) bool {
	return attempts >= maxAttempts
}
