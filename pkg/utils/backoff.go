package utils

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// CappedExponential returns the delay before retry number attempt (zero based):
// initial doubled per attempt, never above maxDelay.
func CappedExponential(initial, maxDelay time.Duration, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < attempt && d < maxDelay; i++ {
		d = b.NextBackOff()
	}

	return d
}
