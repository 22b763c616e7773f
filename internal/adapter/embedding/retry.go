package embedding

import (
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of a remote call with exponential backoff
// and jitter. A zero Sleep uses time.Sleep; tests substitute a recorder.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay randomized, 0..1
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy returns the policy used against the embedding API.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Jitter:      0.2,
	}
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. The
// last error is returned when all attempts fail.
func (p RetryPolicy) Do(fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	delay := p.BaseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			sleep(p.jittered(delay))
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
