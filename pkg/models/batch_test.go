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

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatch_AppendAndSeal(t *testing.T) {
	assert := assert.New(t)

	b := NewBatch(DestinationGood)
	assert.NotEqual("", b.ID)
	assert.True(b.IsEmpty())
	assert.False(b.IsSealed())

	for _, p := range getTestPayloads(5, "Hello World!") {
		b.Append(p)
	}

	assert.Equal(5, b.Count())
	assert.Equal(int64(60), b.ByteSize)
	assert.False(b.IsEmpty())

	b.Seal()
	assert.True(b.IsSealed())
	assert.False(b.SealedAt.IsZero())

	// Sealing again must not move the seal time
	sealedAt := b.SealedAt
	b.Seal()
	assert.Equal(sealedAt, b.SealedAt)
}

func TestBatch_Age(t *testing.T) {
	assert := assert.New(t)

	b := NewBatch(DestinationBad)
	now := b.OpenedAt.Add(30 * time.Second)
	assert.Equal(30*time.Second, b.Age(now))
}

func TestBatch_WithPayloads(t *testing.T) {
	assert := assert.New(t)

	b := NewBatch(DestinationGood)
	payloads := getTestPayloads(4, "Hello World!")
	for _, p := range payloads {
		b.Append(p)
	}
	b.Seal()

	retry := b.WithPayloads(payloads[:2])

	assert.Equal(b.ID, retry.ID)
	assert.Equal(b.Destination, retry.Destination)
	assert.Equal(2, retry.Count())
	assert.Equal(int64(24), retry.ByteSize)
	assert.True(retry.IsSealed())

	// Original batch is untouched
	assert.Equal(4, b.Count())
}
