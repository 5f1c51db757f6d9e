package connection

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures reconnect delays: exponential growth from Min by Factor,
// randomised by Jitter, never above Max. MaxRetries of zero retries forever.
// The failure count resets once a connection stays up for StableAfter.
type Policy struct {
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64
	MaxRetries  int
	StableAfter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Min:         time.Second,
		Max:         30 * time.Second,
		Factor:      2,
		Jitter:      0.2,
		StableAfter: 30 * time.Second,
	}
}

// Delay returns the un-jittered delay applied after the given number of
// consecutive failures.
func (p Policy) Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	d := float64(p.Min) * math.Pow(p.Factor, float64(failures-1))
	if d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

// NewBackOff returns a fresh backoff sequence for this policy. It yields
// backoff.Stop once MaxRetries delays have been handed out.
func (p Policy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Min
	eb.MaxInterval = p.Max
	eb.Multiplier = p.Factor
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = &clamped{BackOff: eb, max: p.Max}
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	return b
}

// clamped keeps jitter from pushing a delay past the configured maximum.
type clamped struct {
	backoff.BackOff
	max time.Duration
}

func (c *clamped) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if d != backoff.Stop && d > c.max {
		return c.max
	}
	return d
}
