/**
 * Copyright (c) 2020-present Snowplow Analytics Ltd.
 * All rights reserved.
 *
 * This software is made available by Snowplow Analytics, Ltd.,
 * under the terms of the Snowplow Limited Use License Agreement, Version 1.1
 * located at https://docs.snowplow.io/limited-use-license-1.1
 * BY INSTALLING, DOWNLOADING, ACCESSING, USING OR DISTRIBUTING ANY PORTION
 * OF THE SOFTWARE, YOU AGREE TO THE TERMS OF SUCH LICENSE AGREEMENT.
 */

package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Policy computes retry delays for failed batch flushes: exponential growth
// with multiplicative jitter, capped per attempt and bounded in total.
// Delay is deterministic for a given seed, so tests can inject one.
type Policy struct {
	// Initial is the base delay for the first attempt
	Initial time.Duration

	// Multiplier grows the base delay per attempt (>= 1.0)
	Multiplier float64

	// Max caps any single delay
	Max time.Duration

	// TotalTimeout bounds the cumulative planned delay; once exceeded the
	// caller must abandon the batch. Zero means no cumulative bound.
	TotalTimeout time.Duration

	// MaxAttempts bounds the number of attempts. Zero means no attempt bound.
	MaxAttempts int

	// Jitter is the maximum fraction of the base delay added as random
	// jitter (e.g. 0.5 adds up to 50%). Zero disables jitter.
	Jitter float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewPolicy returns a policy seeded from the current time
func NewPolicy(initial time.Duration, multiplier float64, max time.Duration, totalTimeout time.Duration, maxAttempts int) *Policy {
	return NewPolicyWithSeed(initial, multiplier, max, totalTimeout, maxAttempts, time.Now().UnixNano())
}

// NewPolicyWithSeed returns a policy with a fixed random seed for
// reproducible delay sequences
func NewPolicyWithSeed(initial time.Duration, multiplier float64, max time.Duration, totalTimeout time.Duration, maxAttempts int, seed int64) *Policy {
	return &Policy{
		Initial:      initial,
		Multiplier:   multiplier,
		Max:          max,
		TotalTimeout: totalTimeout,
		MaxAttempts:  maxAttempts,
		Jitter:       0.5,
		rand:         rand.New(rand.NewSource(seed)),
	}
}

// Delay returns the wait before the given attempt is retried. Attempts
// start at 1.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		base *= p.Multiplier
		if base >= float64(p.Max) {
			base = float64(p.Max)
			break
		}
	}
	if p.Max > 0 && base > float64(p.Max) {
		base = float64(p.Max)
	}

	delay := base
	if p.Jitter > 0 {
		p.mu.Lock()
		delay += p.rand.Float64() * p.Jitter * base
		p.mu.Unlock()
	}

	return time.Duration(delay)
}

// Exhausted reports whether retrying must stop: either the attempt count
// passed MaxAttempts, or the cumulative planned delay passed TotalTimeout.
func (p *Policy) Exhausted(attempt int, cumulative time.Duration) bool {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return true
	}
	if p.TotalTimeout > 0 && cumulative >= p.TotalTimeout {
		return true
	}
	return false
}
