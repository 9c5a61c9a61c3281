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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/collector-relay/pkg/backoff"
	"github.com/snowplow-devops/collector-relay/pkg/buffer"
	"github.com/snowplow-devops/collector-relay/pkg/dispatch"
	"github.com/snowplow-devops/collector-relay/pkg/models"
	"github.com/snowplow-devops/collector-relay/pkg/outage"
	"github.com/snowplow-devops/collector-relay/pkg/testutil"
)

func cleanPolicy() *backoff.Policy {
	policy := backoff.NewPolicyWithSeed(time.Millisecond, 2.0, 10*time.Millisecond, 0, 3, 42)
	policy.Jitter = 0
	return policy
}

func TestCoordinator_CleanShutdownDrainsEverything(t *testing.T) {
	assert := assert.New(t)

	buf := buffer.NewEventBuffer(models.DestinationGood, &buffer.EventBufferConfig{RecordLimit: 100})
	sink := testutil.NewMockSink()
	monitor := outage.NewMonitor(sink, &outage.MonitorConfig{FailureThreshold: 3, ProbeIntervalMs: 10})

	loop := dispatch.NewLoop(models.DestinationGood, buf, sink, cleanPolicy(), monitor, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)

	for _, p := range testutil.GetTestPayloads(50, "Hello Shutdown!!") {
		assert.Nil(buf.Enqueue(p))
	}

	ingressStopped := false
	closed := false
	coordinator := NewCoordinator(
		&Config{TimeoutMs: 1000},
		func() { ingressStopped = true },
		cancel,
		[]DrainableLoop{loop},
		func() { closed = true },
		monitor.Stop,
		buf.Stop,
	)

	clean := coordinator.Shutdown()
	assert.True(clean)
	assert.True(ingressStopped)
	assert.True(closed)
	assert.Equal(50, len(sink.Written()))
}

func TestCoordinator_ForcedShutdownReportsLoss(t *testing.T) {
	assert := assert.New(t)

	buf := buffer.NewEventBuffer(models.DestinationGood, &buffer.EventBufferConfig{RecordLimit: 100})
	sink := testutil.NewMockSink()
	sink.FailAlways = true
	monitor := outage.NewMonitor(sink, &outage.MonitorConfig{FailureThreshold: 100, ProbeIntervalMs: 10})

	// No attempt bound and no failure handler: draining can never deliver
	policy := backoff.NewPolicyWithSeed(50*time.Millisecond, 2.0, 100*time.Millisecond, 0, 0, 42)
	loop := dispatch.NewLoop(models.DestinationBad, buf, sink, policy, monitor, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)

	for _, p := range testutil.GetTestPayloads(10, "Hello Shutdown!!") {
		assert.Nil(buf.Enqueue(p))
	}

	coordinator := NewCoordinator(
		&Config{TimeoutMs: 50},
		nil,
		cancel,
		[]DrainableLoop{loop},
		monitor.Stop,
		buf.Stop,
	)

	clean := coordinator.Shutdown()
	assert.False(clean)
}
