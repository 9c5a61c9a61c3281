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

package collector

import (
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/buffer"
	"github.com/snowplow-devops/collector-relay/pkg/failure/failureiface"
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// ErrIntakeClosed is returned once shutdown has begun and no further
// payloads are accepted
var ErrIntakeClosed = errors.New("intake is closed")

// Overflower latches the operator-visible buffer overflow condition
type Overflower interface {
	SetBufferOverflow()
}

// Collector accepts raw event payloads and routes them into the good
// buffer, or straight onto the bad path when they can never fit the good
// sink's per-record limit.
type Collector struct {
	goodBuffer      *buffer.EventBuffer
	failureHandler  failureiface.Failure
	maxPayloadBytes int
	overflower      Overflower

	intakeOpen atomic.Bool

	log *log.Entry
}

// New creates a collector with the intake open. maxPayloadBytes must be
// the good sink's per-record byte limit.
func New(goodBuffer *buffer.EventBuffer, failureHandler failureiface.Failure, maxPayloadBytes int, overflower Overflower) *Collector {
	c := &Collector{
		goodBuffer:      goodBuffer,
		failureHandler:  failureHandler,
		maxPayloadBytes: maxPayloadBytes,
		overflower:      overflower,
		log:             log.WithFields(log.Fields{"name": "Collector"}),
	}
	c.intakeOpen.Store(true)
	return c
}

// Ingest accepts one payload. Oversized payloads are accepted but
// rewritten as size-violation bad rows; a buffer overflow is surfaced to
// the health service and returned to the caller.
func (c *Collector) Ingest(data []byte, partitionKey string) error {
	if !c.intakeOpen.Load() {
		return ErrIntakeClosed
	}

	if partitionKey == "" {
		partitionKey = uuid.NewString()
	}

	payload := &models.Payload{
		Data:         data,
		PartitionKey: partitionKey,
		Destination:  models.DestinationGood,
		TimeCreated:  time.Now().UTC(),
	}

	if len(data) > c.maxPayloadBytes {
		if err := c.failureHandler.WriteOversized(c.maxPayloadBytes, []*models.Payload{payload}); err != nil {
			c.log.WithError(err).Error("Failed to emit size-violation bad row at intake")
		}
		return nil
	}

	err := c.goodBuffer.Enqueue(payload)
	if err != nil && models.IsBufferOverflow(err) {
		c.log.WithError(err).Error("Buffer overflow at intake")
		if c.overflower != nil {
			c.overflower.SetBufferOverflow()
		}
	}
	return err
}

// CloseIntake rejects all further payloads. Called once at shutdown.
func (c *Collector) CloseIntake() {
	c.intakeOpen.Store(false)
	c.log.Info("Intake closed")
}

// IsIntakeOpen returns whether new payloads are being accepted
func (c *Collector) IsIntakeOpen() bool {
	return c.intakeOpen.Load()
}

// Handler serves the ingest endpoint: the POST body is the payload, the
// partition key may be set via the X-Partition-Key header
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch err := c.Ingest(body, r.Header.Get("X-Partition-Key")); {
		case err == nil:
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, ErrIntakeClosed):
			w.WriteHeader(http.StatusServiceUnavailable)
		case models.IsBufferOverflow(err):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
}
