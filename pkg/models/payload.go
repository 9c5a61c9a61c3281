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

// Destination denotes which output stream a payload is bound for
type Destination string

const (
	// DestinationGood is the primary event output
	DestinationGood Destination = "good"

	// DestinationBad is the output for payloads that could not be delivered
	// and have been rewritten as bad rows
	DestinationBad Destination = "bad"
)

// BadRowReason tags why a payload was rewritten as a bad row
type BadRowReason string

const (
	// BadRowSizeViolation marks a payload whose individual size exceeded the
	// sink's maximum record size
	BadRowSizeViolation BadRowReason = "size_violation"

	// BadRowGenericError marks a payload abandoned after the retry budget
	// for its batch was exhausted
	BadRowGenericError BadRowReason = "generic_error"

	// BadRowBackendRejected marks a payload the backend refused permanently
	// (e.g. invalid message contents)
	BadRowBackendRejected BadRowReason = "backend_rejected"
)

// Payload holds one serialized tracking event in flight between ingestion
// and a sink write. It is immutable once created; ownership passes to the
// sink on a successful flush.
type Payload struct {
	Data         []byte
	PartitionKey string
	Destination  Destination

	// TimeCreated is when the payload was accepted at ingestion
	TimeCreated time.Time

	// TimeRequestStarted and TimeRequestFinished bracket the sink request
	// that carried this payload, for latency reporting
	TimeRequestStarted  time.Time
	TimeRequestFinished time.Time
}

// ByteSize returns the size of the payload body
func (p *Payload) ByteSize() int {
	return len(p.Data)
}

func (p *Payload) String() string {
	return fmt.Sprintf(
		"PartitionKey:%s,Destination:%s,TimeCreated:%v,Data:%s",
		p.PartitionKey,
		p.Destination,
		p.TimeCreated,
		string(p.Data),
	)
}

// FilterOversizedPayloads will filter out all payloads that exceed the byte size limit
func FilterOversizedPayloads(payloads []*Payload, maxPayloadByteSize int) (safe []*Payload, oversized []*Payload) {
	for _, p := range payloads {
		if p.ByteSize() > maxPayloadByteSize {
			oversized = append(oversized, p)
		} else {
			safe = append(safe, p)
		}
	}
	return safe, oversized
}

// GetChunkedPayloads returns an array of chunked payload arrays from the original
// slice by taking into account three variables:
//
// 1. How many payloads can be in a chunk
// 2. How big any individual payload can be (in bytes)
// 3. How many bytes can be in a chunk
func GetChunkedPayloads(payloads []*Payload, chunkSize int, maxPayloadByteSize int, maxChunkByteSize int) (divided [][]*Payload, oversized []*Payload) {
	var chunkBuffer []*Payload
	var chunkBufferByteLen int

	for _, p := range payloads {
		pByteLen := p.ByteSize()

		if pByteLen > maxPayloadByteSize {
			oversized = append(oversized, p)
		} else if len(chunkBuffer) == chunkSize || (chunkBufferByteLen > 0 && chunkBufferByteLen+pByteLen > maxChunkByteSize) {
			divided = append(divided, chunkBuffer)

			chunkBuffer = []*Payload{p}
			chunkBufferByteLen = pByteLen
		} else {
			chunkBuffer = append(chunkBuffer, p)
			chunkBufferByteLen += pByteLen
		}
	}

	if len(chunkBuffer) > 0 {
		divided = append(divided, chunkBuffer)
	}
	return divided, oversized
}
