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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_DelayNoJitter(t *testing.T) {
	assert := assert.New(t)

	p := NewPolicyWithSeed(100*time.Millisecond, 2.0, 5*time.Second, 0, 0, 1)
	p.Jitter = 0

	assert.Equal(100*time.Millisecond, p.Delay(1))
	assert.Equal(200*time.Millisecond, p.Delay(2))
	assert.Equal(400*time.Millisecond, p.Delay(3))
	assert.Equal(800*time.Millisecond, p.Delay(4))

	// Negative and zero attempts are treated as the first
	assert.Equal(100*time.Millisecond, p.Delay(0))
	assert.Equal(100*time.Millisecond, p.Delay(-3))
}

func TestPolicy_DelayCapped(t *testing.T) {
	assert := assert.New(t)

	p := NewPolicyWithSeed(1*time.Second, 2.0, 4*time.Second, 0, 0, 1)
	p.Jitter = 0

	assert.Equal(4*time.Second, p.Delay(5))
	assert.Equal(4*time.Second, p.Delay(50))
}

func TestPolicy_JitterBounds(t *testing.T) {
	assert := assert.New(t)

	p := NewPolicyWithSeed(100*time.Millisecond, 2.0, 10*time.Second, 0, 0, 42)

	for attempt := 1; attempt <= 6; attempt++ {
		base := 100 * time.Millisecond
		for i := 1; i < attempt; i++ {
			base *= 2
		}

		d := p.Delay(attempt)
		assert.GreaterOrEqual(d, base)
		assert.LessOrEqual(d, base+base/2)
	}
}

func TestPolicy_NonDecreasing(t *testing.T) {
	assert := assert.New(t)

	// With a multiplier of at least 1.5 the jittered delay for an attempt
	// can never undercut the previous attempt's, until the cap is reached.
	p := NewPolicyWithSeed(100*time.Millisecond, 2.0, time.Hour, 0, 0, 7)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(d, prev)
		prev = d
	}
}

func TestPolicy_SeedReproducible(t *testing.T) {
	assert := assert.New(t)

	p1 := NewPolicyWithSeed(100*time.Millisecond, 2.0, time.Hour, 0, 0, 99)
	p2 := NewPolicyWithSeed(100*time.Millisecond, 2.0, time.Hour, 0, 0, 99)

	for attempt := 1; attempt <= 8; attempt++ {
		assert.Equal(p1.Delay(attempt), p2.Delay(attempt))
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	assert := assert.New(t)

	p := NewPolicyWithSeed(100*time.Millisecond, 2.0, time.Hour, 10*time.Second, 5, 1)

	assert.False(p.Exhausted(1, 0))
	assert.False(p.Exhausted(5, 9*time.Second))
	assert.True(p.Exhausted(6, 0))
	assert.True(p.Exhausted(1, 10*time.Second))
	assert.True(p.Exhausted(6, 11*time.Second))
}

func TestPolicy_ExhaustedUnbounded(t *testing.T) {
	assert := assert.New(t)

	p := NewPolicyWithSeed(100*time.Millisecond, 2.0, time.Hour, 0, 0, 1)

	assert.False(p.Exhausted(10000, 24*time.Hour))
}
