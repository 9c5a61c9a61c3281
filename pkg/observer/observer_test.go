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

package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/collector-relay/pkg/models"
	"github.com/snowplow-devops/collector-relay/pkg/testutil"
)

// --- Test StatsReceiver

type TestStatsReceiver struct {
	onSend func(b *models.ObserverBuffer)
}

func (s *TestStatsReceiver) Send(b *models.ObserverBuffer) {
	s.onSend(b)
}

// --- Tests

func TestObserverSinkWrite(t *testing.T) {
	assert := assert.New(t)

	counter := 0
	onSend := func(b *models.ObserverBuffer) {
		assert.NotNil(b)
		if counter == 0 {
			assert.Equal(int64(10), b.MsgSent)
			assert.Equal(int64(5), b.MsgFailed)
			assert.Equal(int64(5), b.MsgRetried)
			assert.Equal(int64(2), b.MsgAbandoned)
			assert.Equal(int64(3), b.BadRowsSizeViolation)
			counter++
		}
	}

	sr := TestStatsReceiver{onSend: onSend}

	observer := New(&sr, 1*time.Second, 3*time.Second)
	assert.NotNil(observer)
	observer.Start()

	// This does nothing
	observer.Start()

	// Push some results
	sent := testutil.GetTestPayloads(2, "Baz")
	failed := testutil.GetTestPayloads(1, "Foo")

	r := models.NewSinkWriteResult(sent, failed, nil, nil)
	for i := 0; i < 5; i++ {
		observer.SinkWrite(r)
		observer.Retried(1)
	}
	observer.Abandoned(2)
	observer.OnBadRows(models.BadRowSizeViolation, 3)

	// Trigger timeout (1 second)
	time.Sleep(2 * time.Second)

	// Trigger flush (3 seconds) - counter check
	time.Sleep(2 * time.Second)

	observer.Stop()
}

func TestObserverBadSinkWrite(t *testing.T) {
	assert := assert.New(t)

	done := make(chan struct{}, 1)
	onSend := func(b *models.ObserverBuffer) {
		assert.Equal(int64(4), b.BadMsgSent)
		select {
		case done <- struct{}{}:
		default:
		}
	}

	sr := TestStatsReceiver{onSend: onSend}

	observer := New(&sr, 100*time.Millisecond, time.Hour)
	observer.Start()

	r := models.NewSinkWriteResult(testutil.GetTestPayloads(4, "bad-row"), nil, nil, nil)
	observer.BadSinkWrite(r)

	// The final flush on Stop carries the buffered counts
	observer.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stats receiver never saw the bad write")
	}
}
