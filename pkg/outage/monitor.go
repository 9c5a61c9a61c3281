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

package outage

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/sink/sinkiface"
)

// SinkStatus is the monitor's view of whether the backend is reachable
type SinkStatus string

const (
	// StatusHealthy means writes are succeeding or no outage has been declared
	StatusHealthy SinkStatus = "Healthy"
	// StatusUnhealthy means the consecutive-failure threshold was crossed
	// and the probe loop is checking for recovery
	StatusUnhealthy SinkStatus = "Unhealthy"
)

// MonitorConfig configures outage detection for one sink
type MonitorConfig struct {
	FailureThreshold int `hcl:"failure_threshold,optional" env:"OUTAGE_FAILURE_THRESHOLD"`
	ProbeIntervalMs  int `hcl:"probe_interval_ms,optional" env:"OUTAGE_PROBE_INTERVAL_MS"`
}

// Monitor tracks consecutive write failures for a sink and, once a
// threshold is crossed, declares an outage and probes the backend at a
// fixed interval until it answers again. The probe never gives up.
type Monitor struct {
	sink             sinkiface.Sink
	failureThreshold int
	probeInterval    time.Duration

	mu                  sync.Mutex
	status              SinkStatus
	consecutiveFailures int
	lastCheckedAt       time.Time
	probing             bool

	recovered chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once

	log *log.Entry
}

// NewMonitor creates a healthy monitor for a sink
func NewMonitor(sink sinkiface.Sink, cfg *MonitorConfig) *Monitor {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	probeInterval := time.Duration(cfg.ProbeIntervalMs) * time.Millisecond
	if probeInterval <= 0 {
		probeInterval = 10 * time.Second
	}

	return &Monitor{
		sink:             sink,
		failureThreshold: failureThreshold,
		probeInterval:    probeInterval,
		status:           StatusHealthy,
		recovered:        make(chan struct{}, 1),
		stop:             make(chan struct{}),
		log:              log.WithFields(log.Fields{"name": "OutageMonitor", "sink": sink.GetID()}),
	}
}

// ReportFailure records a failed flush attempt. Crossing the threshold
// flips the sink to Unhealthy and starts the probe loop.
func (m *Monitor) ReportFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++
	m.lastCheckedAt = time.Now().UTC()

	if m.status == StatusHealthy && m.consecutiveFailures >= m.failureThreshold {
		m.status = StatusUnhealthy
		m.log.Errorf("Sink declared unhealthy after %d consecutive failures, probing every %v", m.consecutiveFailures, m.probeInterval)

		if !m.probing {
			m.probing = true
			go m.probeLoop()
		}
	}
}

// ReportSuccess records a successful flush, resetting the failure count
// and clearing any outage
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures = 0
	m.lastCheckedAt = time.Now().UTC()

	if m.status == StatusUnhealthy {
		m.markHealthyLocked("write")
	}
}

// Status returns the current health of the sink
func (m *Monitor) Status() SinkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// LastCheckedAt returns when the sink was last written to or probed
func (m *Monitor) LastCheckedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastCheckedAt
}

// Recovered exposes a signal that fires when an outage ends. The dispatch
// loop selects on it to cut a backoff sleep short.
func (m *Monitor) Recovered() <-chan struct{} {
	return m.recovered
}

// Stop terminates any running probe loop
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

func (m *Monitor) probeLoop() {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.mu.Lock()
			m.probing = false
			m.mu.Unlock()
			return
		case <-ticker.C:
			err := m.sink.Ping()

			m.mu.Lock()
			m.lastCheckedAt = time.Now().UTC()

			if err != nil {
				m.log.Warnf("Sink still unreachable: %v", err)
				m.mu.Unlock()
				continue
			}

			if m.status == StatusUnhealthy {
				m.markHealthyLocked("probe")
			}
			m.probing = false
			m.mu.Unlock()
			return
		}
	}
}

// markHealthyLocked flips the status back to Healthy and signals waiters.
// Callers must hold the mutex.
func (m *Monitor) markHealthyLocked(via string) {
	m.status = StatusHealthy
	m.consecutiveFailures = 0
	m.log.Infof("Sink recovered (%s), resuming normal dispatch", via)

	select {
	case m.recovered <- struct{}{}:
	default:
	}
}
