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

package sinkiface

import (
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// Sink describes the interface for how to push batches of buffered payloads
// into a downstream backend.
//
// Write errors are classified: a models.RetryableError means the dispatch
// loop should retry under its backoff policy, a models.FatalError means the
// batch must be abandoned immediately.
type Sink interface {
	Write(batch *models.Batch) (*models.SinkWriteResult, error)
	Open()
	Close()

	// Ping performs a lightweight existence/reachability check against the
	// backend; used by the outage monitor while the sink is unhealthy.
	Ping() error

	// MaxRecordBytes is the largest individual payload the backend accepts
	MaxRecordBytes() int

	// MaxBatchBytes is the largest request the backend accepts in one write
	MaxBatchBytes() int

	// MaxBatchRecords is the most payloads the backend accepts in one write
	MaxBatchRecords() int

	GetID() string
}
