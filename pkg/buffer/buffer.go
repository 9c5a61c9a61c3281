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

package buffer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// EventBufferConfig configures the batching thresholds for one destination
type EventBufferConfig struct {
	ByteLimit   int           `hcl:"byte_limit,optional" env:"BUFFER_BYTE_LIMIT"`
	RecordLimit int           `hcl:"record_limit,optional" env:"BUFFER_RECORD_LIMIT"`
	TimeLimitMs int           `hcl:"time_limit_ms,optional" env:"BUFFER_TIME_LIMIT_MS"`
	CeilingByte int           `hcl:"ceiling_bytes,optional" env:"BUFFER_CEILING_BYTES"`
	tickerEvery time.Duration // overridable in tests
}

// EventBuffer accumulates payloads for one destination into batches, sealing
// a batch when it hits the byte, record or age threshold. Sealed batches
// queue in FIFO order until the dispatcher takes them.
type EventBuffer struct {
	destination models.Destination

	byteLimit    int
	recordLimit  int
	timeLimit    time.Duration
	ceilingBytes int

	mu           sync.Mutex
	open         *models.Batch
	pending      []*models.Batch
	pendingBytes int64

	notify chan struct{}
	stop   chan struct{}

	log *log.Entry
}

// NewEventBuffer creates a buffer for a destination and starts the
// age-sealing loop
func NewEventBuffer(destination models.Destination, cfg *EventBufferConfig) *EventBuffer {
	tickerEvery := cfg.tickerEvery
	if tickerEvery == 0 {
		tickerEvery = 100 * time.Millisecond
	}

	eb := &EventBuffer{
		destination:  destination,
		byteLimit:    cfg.ByteLimit,
		recordLimit:  cfg.RecordLimit,
		timeLimit:    time.Duration(cfg.TimeLimitMs) * time.Millisecond,
		ceilingBytes: cfg.CeilingByte,
		open:         models.NewBatch(destination),
		notify:       make(chan struct{}, 1),
		stop:         make(chan struct{}),
		log:          log.WithFields(log.Fields{"name": "EventBuffer", "destination": string(destination)}),
	}

	go eb.ageLoop(tickerEvery)

	return eb
}

// Enqueue adds a payload to the open batch, sealing first if the payload
// would push the batch over its byte or record threshold. Returns a
// BufferOverflowError when accepting the payload would exceed the ceiling.
func (eb *EventBuffer) Enqueue(payload *models.Payload) error {
	size := int64(payload.ByteSize())

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.ceilingBytes > 0 && eb.pendingBytes+eb.open.ByteSize+size > int64(eb.ceilingBytes) {
		return models.BufferOverflowError{
			Destination:  eb.destination,
			PendingBytes: eb.pendingBytes + eb.open.ByteSize,
			CeilingBytes: int64(eb.ceilingBytes),
		}
	}

	if !eb.open.IsEmpty() && eb.byteLimit > 0 && eb.open.ByteSize+size > int64(eb.byteLimit) {
		eb.sealOpenLocked()
	}

	eb.open.Append(payload)

	if eb.recordLimit > 0 && eb.open.Count() >= eb.recordLimit {
		eb.sealOpenLocked()
	}
	return nil
}

// Next blocks until a sealed batch is available or the context is done
func (eb *EventBuffer) Next(ctx context.Context) (*models.Batch, error) {
	for {
		eb.mu.Lock()
		if len(eb.pending) > 0 {
			batch := eb.pending[0]
			eb.pending = eb.pending[1:]
			eb.pendingBytes -= batch.ByteSize
			eb.mu.Unlock()
			return batch, nil
		}
		eb.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-eb.notify:
		}
	}
}

// Requeue puts a batch back at the head of the queue. Used when a flush
// is interrupted so the batch keeps its place in FIFO order.
func (eb *EventBuffer) Requeue(batch *models.Batch) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.pending = append([]*models.Batch{batch}, eb.pending...)
	eb.pendingBytes += batch.ByteSize

	select {
	case eb.notify <- struct{}{}:
	default:
	}
}

// SealOpen seals whatever is in the open batch, making it available to Next
func (eb *EventBuffer) SealOpen() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if !eb.open.IsEmpty() {
		eb.sealOpenLocked()
	}
}

// Drain seals the open batch and returns every batch still waiting, in FIFO
// order. Used on shutdown after the dispatcher has stopped taking batches.
func (eb *EventBuffer) Drain() []*models.Batch {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if !eb.open.IsEmpty() {
		eb.sealOpenLocked()
	}

	drained := eb.pending
	eb.pending = nil
	eb.pendingBytes = 0
	return drained
}

// PendingBytes returns the byte size of all buffered payloads, open batch
// included
func (eb *EventBuffer) PendingBytes() int64 {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	return eb.pendingBytes + eb.open.ByteSize
}

// PendingCount returns the number of sealed batches awaiting dispatch
func (eb *EventBuffer) PendingCount() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	return len(eb.pending)
}

// Stop terminates the age-sealing loop
func (eb *EventBuffer) Stop() {
	close(eb.stop)
}

func (eb *EventBuffer) sealOpenLocked() {
	eb.open.Seal()
	eb.log.Debugf("Sealed batch %s with %d payloads (%d bytes)", eb.open.ID, eb.open.Count(), eb.open.ByteSize)

	eb.pending = append(eb.pending, eb.open)
	eb.pendingBytes += eb.open.ByteSize
	eb.open = models.NewBatch(eb.destination)

	select {
	case eb.notify <- struct{}{}:
	default:
	}
}

func (eb *EventBuffer) ageLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-eb.stop:
			return
		case <-ticker.C:
			now := time.Now().UTC()

			eb.mu.Lock()
			if eb.timeLimit > 0 && !eb.open.IsEmpty() && eb.open.Age(now) >= eb.timeLimit {
				eb.sealOpenLocked()
			}
			eb.mu.Unlock()
		}
	}
}
