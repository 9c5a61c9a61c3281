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
	"fmt"
	"time"
)

// ObserverBuffer contains all the metrics we are aggregating between
// reporting intervals
type ObserverBuffer struct {
	WriteResults int64
	MsgSent      int64
	MsgFailed    int64
	MsgTotal     int64

	MsgRetried   int64
	MsgAbandoned int64

	BadRowsSizeViolation   int64
	BadRowsGenericError    int64
	BadRowsBackendRejected int64

	BadWriteResults int64
	BadMsgSent      int64
	BadMsgFailed    int64

	MaxMsgLatency time.Duration
	MinMsgLatency time.Duration
	SumMsgLatency time.Duration
}

// AppendWrite adds a good-destination SinkWriteResult onto the buffer
func (b *ObserverBuffer) AppendWrite(res *SinkWriteResult) {
	if res == nil {
		return
	}

	b.WriteResults++
	b.MsgSent += res.SentCount
	b.MsgFailed += res.FailedCount
	b.MsgTotal += res.Total()

	b.appendWriteResult(res)
}

// AppendBadWrite adds a bad-destination SinkWriteResult onto the buffer
func (b *ObserverBuffer) AppendBadWrite(res *SinkWriteResult) {
	if res == nil {
		return
	}

	b.BadWriteResults++
	b.BadMsgSent += res.SentCount
	b.BadMsgFailed += res.FailedCount

	b.appendWriteResult(res)
}

// AppendRetried records payloads that went around the retry loop again
func (b *ObserverBuffer) AppendRetried(count int64) {
	b.MsgRetried += count
}

// AppendAbandoned records payloads whose batch exhausted its retry budget
func (b *ObserverBuffer) AppendAbandoned(count int64) {
	b.MsgAbandoned += count
}

// AppendBadRows records bad-row conversions by reason
func (b *ObserverBuffer) AppendBadRows(reason BadRowReason, count int64) {
	switch reason {
	case BadRowSizeViolation:
		b.BadRowsSizeViolation += count
	case BadRowGenericError:
		b.BadRowsGenericError += count
	case BadRowBackendRejected:
		b.BadRowsBackendRejected += count
	}
}

func (b *ObserverBuffer) appendWriteResult(res *SinkWriteResult) {
	if b.MaxMsgLatency < res.MaxMsgLatency {
		b.MaxMsgLatency = res.MaxMsgLatency
	}
	if b.MinMsgLatency > res.MinMsgLatency || b.MinMsgLatency == time.Duration(0) {
		b.MinMsgLatency = res.MinMsgLatency
	}
	b.SumMsgLatency += res.AvgMsgLatency
}

// GetAvgMsgLatency returns the average payload latency accumulated so far
func (b *ObserverBuffer) GetAvgMsgLatency() time.Duration {
	results := b.WriteResults + b.BadWriteResults
	if results > 0 {
		return time.Duration(int64(b.SumMsgLatency) / results)
	}
	return time.Duration(0)
}

func (b *ObserverBuffer) String() string {
	return fmt.Sprintf(
		"MsgSent:%d,MsgFailed:%d,MsgRetried:%d,MsgAbandoned:%d,BadRowsSizeViolation:%d,BadRowsGenericError:%d,BadRowsBackendRejected:%d,BadMsgSent:%d,BadMsgFailed:%d,MaxMsgLatency:%s,AvgMsgLatency:%s",
		b.MsgSent,
		b.MsgFailed,
		b.MsgRetried,
		b.MsgAbandoned,
		b.BadRowsSizeViolation,
		b.BadRowsGenericError,
		b.BadRowsBackendRejected,
		b.BadMsgSent,
		b.BadMsgFailed,
		b.MaxMsgLatency,
		b.GetAvgMsgLatency(),
	)
}
