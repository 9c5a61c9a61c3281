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

package testutil

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// MockSink is an in-memory sink implementation with scriptable failure
// behaviour, used to exercise dispatch, outage and shutdown paths
type MockSink struct {
	mu sync.Mutex

	// FailFirstN makes the first N Write calls fail with a retryable error
	FailFirstN int
	// FailAlways makes every Write call fail with a retryable error
	FailAlways bool
	// FatalWrites makes failing Write calls return a fatal error instead
	FatalWrites bool
	// PingErr is returned by Ping when set
	PingErr error

	writeCalls int
	pingCalls  int
	written    []*models.Payload
}

// NewMockSink returns a healthy mock sink that accepts everything
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Write records the batch payloads, or fails per the scripted behaviour
func (ms *MockSink) Write(batch *models.Batch) (*models.SinkWriteResult, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.writeCalls++

	if ms.FailAlways || ms.writeCalls <= ms.FailFirstN {
		err := errors.New("mock sink write failure")
		if ms.FatalWrites {
			return models.NewSinkWriteResult(nil, batch.Payloads, nil, nil), models.FatalError{Err: err}
		}
		return models.NewSinkWriteResult(nil, batch.Payloads, nil, nil), models.RetryableError{Err: err}
	}

	ms.written = append(ms.written, batch.Payloads...)
	return models.NewSinkWriteResult(batch.Payloads, nil, nil, nil), nil
}

// Open does not do anything for this sink
func (ms *MockSink) Open() {}

// Close does not do anything for this sink
func (ms *MockSink) Close() {}

// Ping returns the scripted ping error
func (ms *MockSink) Ping() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.pingCalls++
	return ms.PingErr
}

// SetPingErr updates the scripted ping behaviour safely across goroutines
func (ms *MockSink) SetPingErr(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.PingErr = err
}

// WriteCalls returns how many times Write has been invoked
func (ms *MockSink) WriteCalls() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.writeCalls
}

// PingCalls returns how many times Ping has been invoked
func (ms *MockSink) PingCalls() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.pingCalls
}

// Written returns every payload successfully written so far
func (ms *MockSink) Written() []*models.Payload {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]*models.Payload, len(ms.written))
	copy(out, ms.written)
	return out
}

// MaxRecordBytes returns the max number of bytes that can be sent per
// message for this sink
func (ms *MockSink) MaxRecordBytes() int {
	return 1048576
}

// MaxBatchBytes returns the max number of bytes that can be sent in one write
func (ms *MockSink) MaxBatchBytes() int {
	return 5242880
}

// MaxBatchRecords returns the most messages that can be sent in one write
func (ms *MockSink) MaxBatchRecords() int {
	return 500
}

// GetID returns the identifier for this sink
func (ms *MockSink) GetID() string {
	return "mock-sink"
}
