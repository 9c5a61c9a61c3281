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

func TestNewSinkWriteResult_EmptyWithoutTime(t *testing.T) {
	assert := assert.New(t)

	r := NewSinkWriteResult(nil, nil, nil, nil)
	assert.NotNil(r)

	assert.Equal(int64(0), r.SentCount)
	assert.Equal(int64(0), r.FailedCount)
	assert.Equal(int64(0), r.Total())
	assert.Equal(time.Duration(0), r.MaxMsgLatency)
	assert.Equal(time.Duration(0), r.MinMsgLatency)
	assert.Equal(time.Duration(0), r.AvgMsgLatency)
}

func TestNewSinkWriteResultWithTime_Latencies(t *testing.T) {
	assert := assert.New(t)

	timeNow := time.Now().UTC()

	sent := []*Payload{
		{
			Data:        []byte("Hello World!"),
			TimeCreated: timeNow.Add(time.Duration(-50) * time.Minute),
		},
	}
	failed := []*Payload{
		{
			Data:        []byte("Hello World!"),
			TimeCreated: timeNow.Add(time.Duration(-70) * time.Minute),
		},
	}

	r := NewSinkWriteResultWithTime(sent, failed, nil, nil, timeNow)
	assert.NotNil(r)

	assert.Equal(int64(1), r.SentCount)
	assert.Equal(int64(1), r.FailedCount)
	assert.Equal(int64(2), r.Total())

	assert.Equal(time.Duration(70)*time.Minute, r.MaxMsgLatency)
	assert.Equal(time.Duration(50)*time.Minute, r.MinMsgLatency)
	assert.Equal(time.Duration(60)*time.Minute, r.AvgMsgLatency)
}

func TestSinkWriteResult_Append(t *testing.T) {
	assert := assert.New(t)

	timeNow := time.Now().UTC()

	r1 := NewSinkWriteResultWithTime(
		[]*Payload{{Data: []byte("a"), TimeCreated: timeNow.Add(time.Duration(-10) * time.Minute)}},
		nil,
		nil,
		nil,
		timeNow,
	)
	r2 := NewSinkWriteResultWithTime(
		nil,
		[]*Payload{{Data: []byte("b"), TimeCreated: timeNow.Add(time.Duration(-30) * time.Minute)}},
		[]*Payload{{Data: []byte("ccc")}},
		nil,
		timeNow,
	)

	r3 := r1.Append(r2)

	assert.Equal(int64(1), r3.SentCount)
	assert.Equal(int64(1), r3.FailedCount)
	assert.Equal(1, len(r3.Failed))
	assert.Equal(1, len(r3.Oversized))
	assert.Equal(0, len(r3.Invalid))
	assert.Equal(time.Duration(30)*time.Minute, r3.MaxMsgLatency)
	assert.Equal(time.Duration(10)*time.Minute, r3.MinMsgLatency)
	assert.Equal(time.Duration(20)*time.Minute, r3.AvgMsgLatency)

	// Appending nil leaves counts unchanged
	r4 := r3.Append(nil)
	assert.Equal(int64(2), r4.Total())
}
