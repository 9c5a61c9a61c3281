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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/models"
	"github.com/snowplow-devops/collector-relay/pkg/statsreceiver/statsreceiveriface"
)

type badRowsEvent struct {
	reason models.BadRowReason
	count  int64
}

// Observer aggregates delivery telemetry from the dispatch loops and
// emits it to the stats receiver on a fixed interval
type Observer struct {
	statsClient      statsreceiveriface.StatsReceiver
	exitSignal       chan struct{}
	stopDone         chan struct{}
	sinkWriteChan    chan *models.SinkWriteResult
	badSinkWriteChan chan *models.SinkWriteResult
	retriedChan      chan int64
	abandonedChan    chan int64
	badRowsChan      chan badRowsEvent
	timeout          time.Duration
	reportInterval   time.Duration
	isRunning        bool

	log *log.Entry
}

// New builds a new observer to be used to gather telemetry about
// batch deliveries
func New(statsClient statsreceiveriface.StatsReceiver, timeout time.Duration, reportInterval time.Duration) *Observer {
	return &Observer{
		statsClient:      statsClient,
		exitSignal:       make(chan struct{}),
		stopDone:         make(chan struct{}),
		sinkWriteChan:    make(chan *models.SinkWriteResult, 1000),
		badSinkWriteChan: make(chan *models.SinkWriteResult, 1000),
		retriedChan:      make(chan int64, 1000),
		abandonedChan:    make(chan int64, 1000),
		badRowsChan:      make(chan badRowsEvent, 1000),
		timeout:          timeout,
		reportInterval:   reportInterval,
		log:              log.WithFields(log.Fields{"name": "Observer"}),
		isRunning:        false,
	}
}

// Start launches a goroutine which processes results from deliveries
func (o *Observer) Start() {
	if o.isRunning {
		o.log.Warn("Observer is already running")
		return
	}
	o.isRunning = true

	go func() {
		reportTime := time.Now().UTC().Add(o.reportInterval)
		buffer := models.ObserverBuffer{}

	ObserverLoop:
		for {
			select {
			case <-o.exitSignal:
				o.log.Warn("Received exit signal, shutting down Observer ...")

				// Attempt final flush
				o.log.Infof(buffer.String())
				if o.statsClient != nil {
					o.statsClient.Send(&buffer)
				}

				o.isRunning = false
				break ObserverLoop
			case res := <-o.sinkWriteChan:
				buffer.AppendWrite(res)
			case res := <-o.badSinkWriteChan:
				buffer.AppendBadWrite(res)
			case count := <-o.retriedChan:
				buffer.AppendRetried(count)
			case count := <-o.abandonedChan:
				buffer.AppendAbandoned(count)
			case ev := <-o.badRowsChan:
				buffer.AppendBadRows(ev.reason, ev.count)
			case <-time.After(o.timeout):
				o.log.Debugf("Observer timed out after (%v) waiting for result", o.timeout)
			}

			if time.Now().UTC().After(reportTime) {
				o.log.Infof(buffer.String())
				if o.statsClient != nil {
					o.statsClient.Send(&buffer)
				}

				reportTime = time.Now().UTC().Add(o.reportInterval)
				buffer = models.ObserverBuffer{}
			}
		}
		o.stopDone <- struct{}{}
	}()
}

// Stop issues a signal to halt observer processing
func (o *Observer) Stop() {
	o.log.Info("Observer Stop() called")
	if o.isRunning {
		o.exitSignal <- struct{}{}
		<-o.stopDone
	}
}

// --- Functions called to push information to observer

// SinkWrite pushes a good-path write result onto a channel for processing
// by the observer
func (o *Observer) SinkWrite(r *models.SinkWriteResult) {
	o.sinkWriteChan <- r
}

// BadSinkWrite pushes a bad-path write result onto a channel for processing
// by the observer
func (o *Observer) BadSinkWrite(r *models.SinkWriteResult) {
	o.badSinkWriteChan <- r
}

// Retried records payloads scheduled for another flush attempt
func (o *Observer) Retried(count int64) {
	o.retriedChan <- count
}

// Abandoned records payloads the dispatcher gave up on
func (o *Observer) Abandoned(count int64) {
	o.abandonedChan <- count
}

// OnBadRows records bad rows emitted onto the bad path. Implements the
// failure handler's Reporter interface.
func (o *Observer) OnBadRows(reason models.BadRowReason, count int64) {
	o.badRowsChan <- badRowsEvent{reason: reason, count: count}
}
