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

package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/backoff"
	"github.com/snowplow-devops/collector-relay/pkg/buffer"
	"github.com/snowplow-devops/collector-relay/pkg/failure/failureiface"
	"github.com/snowplow-devops/collector-relay/pkg/models"
	"github.com/snowplow-devops/collector-relay/pkg/outage"
	"github.com/snowplow-devops/collector-relay/pkg/sink/sinkiface"
)

// State is the dispatcher's current activity for a destination
type State string

const (
	// StateIdle means no batch is in flight
	StateIdle State = "Idle"
	// StateFlushing means a write to the sink is in progress
	StateFlushing State = "Flushing"
	// StateBackoff means a failed batch is waiting for its next attempt
	StateBackoff State = "Backoff"
)

// Metrics receives delivery telemetry from the loop; may be nil
type Metrics interface {
	SinkWrite(r *models.SinkWriteResult)
	BadSinkWrite(r *models.SinkWriteResult)
	Retried(count int64)
	Abandoned(count int64)
}

// Loop drains one destination's event buffer into its sink, one batch in
// flight at a time and strictly in FIFO order. Failed flushes are retried
// under the backoff policy with only the failed subset of payloads;
// exhausted or fatally failed batches are abandoned onto the bad path.
type Loop struct {
	destination    models.Destination
	buf            *buffer.EventBuffer
	sink           sinkiface.Sink
	policy         *backoff.Policy
	monitor        *outage.Monitor
	failureHandler failureiface.Failure
	metrics        Metrics

	mu    sync.Mutex
	state State

	delivered chan struct{}

	wg sync.WaitGroup

	log *log.Entry
}

// NewLoop creates a dispatch loop for a destination. The failure handler
// must be nil on the bad path itself; there, abandoned payloads are
// logged and dropped rather than rewritten, so delivery failures can
// never recurse.
func NewLoop(destination models.Destination, buf *buffer.EventBuffer, sink sinkiface.Sink, policy *backoff.Policy, monitor *outage.Monitor, failureHandler failureiface.Failure, metrics Metrics) *Loop {
	return &Loop{
		destination:    destination,
		buf:            buf,
		sink:           sink,
		policy:         policy,
		monitor:        monitor,
		failureHandler: failureHandler,
		metrics:        metrics,
		state:          StateIdle,
		delivered:      make(chan struct{}, 1),
		log:            log.WithFields(log.Fields{"name": "DispatchLoop", "destination": string(destination), "sink": sink.GetID()}),
	}
}

// Start launches the loop goroutine. It runs until the context is
// cancelled; any batch in flight at that point is requeued for Drain.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()
}

// Wait blocks until the loop goroutine has exited
func (l *Loop) Wait() {
	l.wg.Wait()
}

// State returns the loop's current activity
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Delivered signals whenever a batch completes a successful flush to the
// sink. The warmup loop waits on this to confirm a full round trip.
func (l *Loop) Delivered() <-chan struct{} {
	return l.delivered
}

func (l *Loop) notifyDelivered() {
	select {
	case l.delivered <- struct{}{}:
	default:
	}
}

// Drain flushes everything still buffered, retries included, until the
// context expires. It must only be called after the loop goroutine has
// exited. Returns the batches that could not be delivered in time.
func (l *Loop) Drain(ctx context.Context) []*models.Batch {
	var lost []*models.Batch

	for _, batch := range l.buf.Drain() {
		if ctx.Err() != nil {
			lost = append(lost, batch)
			continue
		}
		if !l.flush(ctx, batch) {
			// flush requeued the batch; pull it back out so the caller
			// can account for it
			lost = append(lost, l.buf.Drain()...)
		}
	}

	return lost
}

func (l *Loop) run(ctx context.Context) {
	l.log.Info("Starting dispatch loop ...")

	for {
		batch, err := l.buf.Next(ctx)
		if err != nil {
			l.log.Info("Stopping dispatch loop ...")
			return
		}
		l.flush(ctx, batch)
	}
}

// flush drives one batch through the Flushing/Backoff cycle until it is
// delivered, abandoned, or interrupted. Returns false only when the
// context was cancelled and the remaining payloads were requeued.
func (l *Loop) flush(ctx context.Context, batch *models.Batch) bool {
	attempt := 0
	var cumulative time.Duration
	current := batch

	for {
		l.setState(StateFlushing)

		res, err := l.sink.Write(current)

		if res != nil {
			l.reportWrite(res)
			l.handleSideChannels(res, err)
		}

		if err == nil {
			l.monitor.ReportSuccess()
			l.notifyDelivered()
			l.setState(StateIdle)
			return true
		}

		l.monitor.ReportFailure()

		if models.IsFatal(err) {
			l.log.WithError(err).Errorf("Batch %s hit a fatal error, abandoning", current.ID)
			l.abandon(err, current, res)
			l.setState(StateIdle)
			return true
		}

		attempt++
		if l.policy.Exhausted(attempt, cumulative) {
			l.log.WithError(err).Errorf("Batch %s exhausted its retry budget after %d attempts (%v in backoff), abandoning", current.ID, attempt, cumulative)
			l.abandon(err, current, res)
			l.setState(StateIdle)
			return true
		}

		if res != nil && len(res.Failed) > 0 {
			current = current.WithPayloads(res.Failed)
		}
		if l.metrics != nil {
			l.metrics.Retried(int64(current.Count()))
		}

		delay := l.policy.Delay(attempt)
		l.log.WithError(err).Warnf("Batch %s failed on attempt %d, retrying %d payloads in %v", current.ID, attempt, current.Count(), delay)

		l.setState(StateBackoff)
		start := time.Now()
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			l.buf.Requeue(current)
			l.setState(StateIdle)
			return false
		case <-l.monitor.Recovered():
			// The probe saw the backend answer; skip the rest of the wait
			timer.Stop()
		case <-timer.C:
		}
		cumulative += time.Since(start)
	}
}

// handleSideChannels routes oversized and backend-rejected payloads from
// a write result onto the bad path
func (l *Loop) handleSideChannels(res *models.SinkWriteResult, writeErr error) {
	if len(res.Oversized) > 0 {
		if l.failureHandler != nil {
			if err := l.failureHandler.WriteOversized(l.sink.MaxRecordBytes(), res.Oversized); err != nil {
				l.log.WithError(err).Error("Failed to emit size-violation bad rows")
			}
		} else {
			l.log.Errorf("Dropping %d oversized payloads on the bad path", len(res.Oversized))
		}
	}

	if len(res.Invalid) > 0 {
		if l.failureHandler != nil {
			cause := writeErr
			if cause == nil {
				cause = errors.New("payload rejected by the backend")
			}
			if err := l.failureHandler.WriteRejected(cause, res.Invalid); err != nil {
				l.log.WithError(err).Error("Failed to emit backend-rejected bad rows")
			}
		} else {
			l.log.Errorf("Dropping %d rejected payloads on the bad path", len(res.Invalid))
		}
	}
}

// abandon hands the remaining payloads of a batch to the bad path, or
// drops them with a loud log when this loop IS the bad path
func (l *Loop) abandon(cause error, batch *models.Batch, res *models.SinkWriteResult) {
	payloads := batch.Payloads
	if res != nil && len(res.Failed) > 0 {
		payloads = res.Failed
	}

	if l.metrics != nil {
		l.metrics.Abandoned(int64(len(payloads)))
	}

	if l.failureHandler == nil {
		l.log.Errorf("Dropping %d undeliverable payloads from abandoned batch %s (%d bytes): %v", len(payloads), batch.ID, batch.ByteSize, cause)
		return
	}

	if err := l.failureHandler.WriteAbandoned(cause, payloads); err != nil {
		l.log.WithError(err).Errorf("Failed to emit bad rows for abandoned batch %s", batch.ID)
	}
}

func (l *Loop) reportWrite(res *models.SinkWriteResult) {
	if l.metrics == nil {
		return
	}
	if l.destination == models.DestinationBad {
		l.metrics.BadSinkWrite(res)
	} else {
		l.metrics.SinkWrite(res)
	}
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
