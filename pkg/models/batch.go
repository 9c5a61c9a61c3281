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

	"github.com/google/uuid"
)

// Batch is an ordered group of payloads bound for one destination. It is
// mutable only while held open by an event buffer; once sealed it must not
// be appended to and is safe to hand across goroutines.
type Batch struct {
	ID          string
	Destination Destination
	Payloads    []*Payload
	ByteSize    int64

	OpenedAt time.Time
	SealedAt time.Time

	sealed bool
}

// NewBatch opens a fresh empty batch for the given destination
func NewBatch(destination Destination) *Batch {
	return &Batch{
		ID:          uuid.NewString(),
		Destination: destination,
		OpenedAt:    time.Now().UTC(),
	}
}

// Append adds a payload onto the open batch. It must not be called on a
// sealed batch; the event buffer enforces this under its lock.
func (b *Batch) Append(p *Payload) {
	b.Payloads = append(b.Payloads, p)
	b.ByteSize += int64(p.ByteSize())
}

// Seal marks the batch immutable and ready for dispatch
func (b *Batch) Seal() {
	if b.sealed {
		return
	}
	b.sealed = true
	b.SealedAt = time.Now().UTC()
}

// IsSealed returns whether the batch has been sealed
func (b *Batch) IsSealed() bool {
	return b.sealed
}

// Count returns the number of payloads in the batch
func (b *Batch) Count() int {
	return len(b.Payloads)
}

// IsEmpty returns whether the batch holds no payloads
func (b *Batch) IsEmpty() bool {
	return len(b.Payloads) == 0
}

// Age returns how long the batch has been open
func (b *Batch) Age(now time.Time) time.Duration {
	return now.Sub(b.OpenedAt)
}

// WithPayloads returns a sealed copy of the batch holding only the given
// payloads. Used by the dispatch loop to retry the failed subset of a
// partially written batch under the original batch identity.
func (b *Batch) WithPayloads(payloads []*Payload) *Batch {
	var byteSize int64
	for _, p := range payloads {
		byteSize += int64(p.ByteSize())
	}

	return &Batch{
		ID:          b.ID,
		Destination: b.Destination,
		Payloads:    payloads,
		ByteSize:    byteSize,
		OpenedAt:    b.OpenedAt,
		SealedAt:    b.SealedAt,
		sealed:      true,
	}
}
