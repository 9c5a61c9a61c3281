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
	"time"
)

// SinkWriteResult contains the results from a sink write operation
type SinkWriteResult struct {
	SentCount   int64
	FailedCount int64

	// Failed holds the payloads which the sink could not accept this
	// attempt but which may succeed on retry
	Failed []*Payload

	// Oversized holds all the payloads that were too big to be sent to
	// the downstream sink
	Oversized []*Payload

	// Invalid holds all the payloads the sink rejected permanently
	Invalid []*Payload

	// Delta between TimeCreated and the time of write tells us how far
	// behind ingestion the relay is running
	MaxMsgLatency time.Duration
	MinMsgLatency time.Duration
	AvgMsgLatency time.Duration
}

// NewSinkWriteResult uses the current time as the write time and then calls
// NewSinkWriteResultWithTime
func NewSinkWriteResult(sent []*Payload, failed []*Payload, oversized []*Payload, invalid []*Payload) *SinkWriteResult {
	return NewSinkWriteResultWithTime(sent, failed, oversized, invalid, time.Now().UTC())
}

// NewSinkWriteResultWithTime builds a result structure to return from a sink
// write attempt which contains the sent and failed payload counts as well as
// derived latency measures.
func NewSinkWriteResultWithTime(sent []*Payload, failed []*Payload, oversized []*Payload, invalid []*Payload, timeOfWrite time.Time) *SinkWriteResult {
	r := SinkWriteResult{
		SentCount:   int64(len(sent)),
		FailedCount: int64(len(failed)),
		Failed:      failed,
		Oversized:   oversized,
		Invalid:     invalid,
	}

	var sumMsgLatency time.Duration

	processed := append(append([]*Payload{}, sent...), failed...)
	for _, p := range processed {
		msgLatency := timeOfWrite.Sub(p.TimeCreated)
		if r.MaxMsgLatency < msgLatency {
			r.MaxMsgLatency = msgLatency
		}
		if r.MinMsgLatency > msgLatency || r.MinMsgLatency == time.Duration(0) {
			r.MinMsgLatency = msgLatency
		}
		sumMsgLatency += msgLatency
	}

	if len(processed) > 0 {
		r.AvgMsgLatency = time.Duration(int64(sumMsgLatency) / int64(len(processed)))
	}

	return &r
}

// Total returns the sum of sent + failed payloads
func (wr *SinkWriteResult) Total() int64 {
	return wr.SentCount + wr.FailedCount
}

// Append will add another write result to the source one to allow for
// result concatenation and then return the resultant struct
func (wr *SinkWriteResult) Append(nwr *SinkWriteResult) *SinkWriteResult {
	wrC := *wr

	if nwr != nil {
		wrC.SentCount += nwr.SentCount
		wrC.FailedCount += nwr.FailedCount
		wrC.Failed = append(wrC.Failed, nwr.Failed...)
		wrC.Oversized = append(wrC.Oversized, nwr.Oversized...)
		wrC.Invalid = append(wrC.Invalid, nwr.Invalid...)

		if wrC.MaxMsgLatency < nwr.MaxMsgLatency {
			wrC.MaxMsgLatency = nwr.MaxMsgLatency
		}
		if wrC.MinMsgLatency > nwr.MinMsgLatency || wrC.MinMsgLatency == time.Duration(0) {
			wrC.MinMsgLatency = nwr.MinMsgLatency
		}
		wrC.AvgMsgLatency = (wrC.AvgMsgLatency + nwr.AvgMsgLatency) / 2
	}

	return &wrC
}
