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

package shutdown

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// Config configures the drain deadline for shutdown
type Config struct {
	TimeoutMs int `hcl:"timeout_ms,optional" env:"SHUTDOWN_TIMEOUT_MS"`
}

// DrainableLoop is the part of the dispatch loop the coordinator drives
type DrainableLoop interface {
	Wait()
	Drain(ctx context.Context) []*models.Batch
}

// Coordinator runs the ordered shutdown sequence: close intake, stop the
// dispatch loops, drain what remains within the deadline, and log every
// batch that could not be delivered before releasing the rest of the
// process.
type Coordinator struct {
	timeout time.Duration

	stopIngress func()
	cancelLoops context.CancelFunc
	loops       []DrainableLoop
	closers     []func()

	log *log.Entry
}

// NewCoordinator wires the shutdown sequence. closers run last, after
// draining, in the order given.
func NewCoordinator(cfg *Config, stopIngress func(), cancelLoops context.CancelFunc, loops []DrainableLoop, closers ...func()) *Coordinator {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Coordinator{
		timeout:     timeout,
		stopIngress: stopIngress,
		cancelLoops: cancelLoops,
		loops:       loops,
		closers:     closers,
		log:         log.WithFields(log.Fields{"name": "ShutdownCoordinator"}),
	}
}

// Shutdown drains and stops everything. Returns true when every buffered
// payload was delivered before the deadline.
func (c *Coordinator) Shutdown() bool {
	c.log.Infof("Shutting down, draining buffers for up to %v ...", c.timeout)

	if c.stopIngress != nil {
		c.stopIngress()
	}

	c.cancelLoops()
	for _, loop := range c.loops {
		loop.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var lostPayloads int64
	for _, loop := range c.loops {
		for _, batch := range loop.Drain(ctx) {
			lostPayloads += int64(batch.Count())
			c.log.Errorf(
				"Discarding batch %s for destination '%s': %d payloads (%d bytes) lost",
				batch.ID,
				batch.Destination,
				batch.Count(),
				batch.ByteSize,
			)
		}
	}

	for _, closer := range c.closers {
		closer()
	}

	if lostPayloads > 0 {
		c.log.Errorf("Forced shutdown: %d payloads were lost", lostPayloads)
		return false
	}

	c.log.Info("Clean shutdown: all buffers drained")
	return true
}
