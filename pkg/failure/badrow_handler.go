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

package failure

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/badrows"
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// Enqueuer is the part of the bad-path event buffer the handler needs
type Enqueuer interface {
	Enqueue(payload *models.Payload) error
}

// Reporter receives bad-row counts for metrics; may be nil
type Reporter interface {
	OnBadRows(reason models.BadRowReason, count int64)
}

// BadRowHandler rewrites undeliverable payloads as Snowplow bad rows and
// enqueues them onto the bad path. Failures here are terminal: a payload
// that cannot be converted or enqueued is logged and dropped, never
// retried.
type BadRowHandler struct {
	processorArtifact string
	processorVersion  string
	targetByteLimit   int

	enqueuer Enqueuer
	reporter Reporter

	log *log.Entry
}

// NewBadRowHandler will create a new handler emitting bad rows onto the
// provided bad-path buffer. targetByteLimit must be the bad sink's
// per-record byte limit so emitted rows always fit.
func NewBadRowHandler(processorArtifact string, processorVersion string, targetByteLimit int, enqueuer Enqueuer, reporter Reporter) *BadRowHandler {
	return &BadRowHandler{
		processorArtifact: processorArtifact,
		processorVersion:  processorVersion,
		targetByteLimit:   targetByteLimit,
		enqueuer:          enqueuer,
		reporter:          reporter,
		log:               log.WithFields(log.Fields{"name": "BadRowHandler"}),
	}
}

// WriteOversized converts each payload into a size-violation bad row
func (bh *BadRowHandler) WriteOversized(maximumAllowedSizeBytes int, payloads []*models.Payload) error {
	var errResult error
	var emitted int64

	for _, p := range payloads {
		br, err := badrows.NewSizeViolation(
			&badrows.SizeViolationInput{
				ProcessorArtifact:              bh.processorArtifact,
				ProcessorVersion:               bh.processorVersion,
				Payload:                        p.Data,
				FailureTimestamp:               time.Now().UTC(),
				FailureMaximumAllowedSizeBytes: maximumAllowedSizeBytes,
				FailureExpectation:             "Payload size must be smaller than the destination's per-record limit",
			},
			bh.targetByteLimit,
		)
		if err != nil {
			errResult = multierror.Append(errResult, err)
			bh.log.WithError(err).Errorf("Dropping oversized payload %s, could not build size-violation bad row", p.PartitionKey)
			continue
		}

		if err := bh.emit(br, p); err != nil {
			errResult = multierror.Append(errResult, err)
			continue
		}
		emitted++
	}

	if bh.reporter != nil && emitted > 0 {
		bh.reporter.OnBadRows(models.BadRowSizeViolation, emitted)
	}
	return errResult
}

// WriteRejected converts payloads the backend refused into generic-error
// bad rows carrying the backend's error string
func (bh *BadRowHandler) WriteRejected(rejectionErr error, payloads []*models.Payload) error {
	emitted, errResult := bh.writeGenericErrors(rejectionErr, payloads)

	if bh.reporter != nil && emitted > 0 {
		bh.reporter.OnBadRows(models.BadRowBackendRejected, emitted)
	}
	return errResult
}

// WriteAbandoned converts payloads from an abandoned batch into
// generic-error bad rows carrying the final delivery error
func (bh *BadRowHandler) WriteAbandoned(abandonErr error, payloads []*models.Payload) error {
	emitted, errResult := bh.writeGenericErrors(abandonErr, payloads)

	if bh.reporter != nil && emitted > 0 {
		bh.reporter.OnBadRows(models.BadRowGenericError, emitted)
	}
	return errResult
}

func (bh *BadRowHandler) writeGenericErrors(cause error, payloads []*models.Payload) (int64, error) {
	var failureErrors []string
	if cause != nil {
		failureErrors = append(failureErrors, cause.Error())
	}

	var errResult error
	var emitted int64

	for _, p := range payloads {
		br, err := badrows.NewGenericError(
			&badrows.GenericErrorInput{
				ProcessorArtifact: bh.processorArtifact,
				ProcessorVersion:  bh.processorVersion,
				Payload:           p.Data,
				FailureTimestamp:  time.Now().UTC(),
				FailureErrors:     failureErrors,
			},
			bh.targetByteLimit,
		)
		if err != nil {
			errResult = multierror.Append(errResult, err)
			bh.log.WithError(err).Errorf("Dropping payload %s, could not build generic-error bad row", p.PartitionKey)
			continue
		}

		if err := bh.emit(br, p); err != nil {
			errResult = multierror.Append(errResult, err)
			continue
		}
		emitted++
	}

	return emitted, errResult
}

// emit serializes the bad row and enqueues it on the bad path. Enqueue
// failure is terminal for the row.
func (bh *BadRowHandler) emit(br *badrows.BadRow, original *models.Payload) error {
	compact, err := br.Compact()
	if err != nil {
		bh.log.WithError(err).Errorf("Dropping payload %s, could not serialize bad row", original.PartitionKey)
		return err
	}

	badPayload := &models.Payload{
		Data:         []byte(compact),
		PartitionKey: original.PartitionKey,
		Destination:  models.DestinationBad,
		TimeCreated:  time.Now().UTC(),
	}

	if err := bh.enqueuer.Enqueue(badPayload); err != nil {
		bh.log.WithError(err).Errorf("Dropping bad row for payload %s, bad path cannot accept it", original.PartitionKey)
		return errors.Wrap(err, "Failed to enqueue bad row")
	}
	return nil
}
