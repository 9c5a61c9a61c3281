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

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetryableError(t *testing.T) {
	assert := assert.New(t)

	err := RetryableError{Err: errors.New("throughput exceeded")}
	assert.Equal("throughput exceeded", err.Error())
	assert.True(IsRetryable(err))
	assert.False(IsFatal(err))

	// Classification survives wrapping
	wrapped := errors.Wrap(err, "failed to write batch")
	assert.True(IsRetryable(wrapped))
}

func TestFatalError(t *testing.T) {
	assert := assert.New(t)

	err := FatalError{Err: errors.New("record rejected by schema")}
	assert.Equal("record rejected by schema", err.Error())
	assert.True(IsFatal(err))
	assert.False(IsRetryable(err))
}

func TestBufferOverflowError(t *testing.T) {
	assert := assert.New(t)

	err := BufferOverflowError{
		Destination:  DestinationGood,
		PendingBytes: 2048,
		CeilingBytes: 1024,
	}
	assert.Contains(err.Error(), "destination 'good'")
	assert.Contains(err.Error(), "2048 > 1024")
	assert.True(IsBufferOverflow(err))
	assert.False(IsRetryable(err))
}
