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

package health

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/snowplow-devops/collector-relay/pkg/outage"
)

// SinkStatusReporter is the part of the outage monitor the health service
// needs
type SinkStatusReporter interface {
	Status() outage.SinkStatus
}

// Service tracks process-level readiness and per-sink health, and serves
// both over HTTP
type Service struct {
	ready      atomic.Bool
	overflowed atomic.Bool

	mu        sync.Mutex
	reporters map[string]SinkStatusReporter
}

// NewService returns a service in the Warming state
func NewService() *Service {
	return &Service{
		reporters: make(map[string]SinkStatusReporter),
	}
}

// SetReady marks warmup as complete; the health endpoint flips from
// Warming to Ready
func (s *Service) SetReady() {
	s.ready.Store(true)
}

// IsReady returns whether warmup has completed
func (s *Service) IsReady() bool {
	return s.ready.Load()
}

// SetBufferOverflow latches the buffer-overflow condition. It is never
// cleared; the process is expected to be restarted.
func (s *Service) SetBufferOverflow() {
	s.overflowed.Store(true)
}

// HasBufferOverflow returns whether a buffer overflow has occurred
func (s *Service) HasBufferOverflow() bool {
	return s.overflowed.Load()
}

// RegisterReporter adds a sink health reporter under a name
func (s *Service) RegisterReporter(name string, reporter SinkStatusReporter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reporters[name] = reporter
}

// HealthHandler serves process readiness: 200 "Ready" once warmed up,
// 503 "Warming" before, 503 "BufferOverflow" after an overflow
func (s *Service) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.HasBufferOverflow() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "BufferOverflow")
			return
		}
		if !s.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "Warming")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Ready")
	})
}

// SinkHealthHandler serves per-sink health: 200 when every registered
// sink is Healthy, 503 otherwise, with one "name:status" line per sink
func (s *Service) SinkHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		allHealthy := true
		for _, reporter := range s.reporters {
			if reporter.Status() != outage.StatusHealthy {
				allHealthy = false
				break
			}
		}

		if allHealthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		for name, reporter := range s.reporters {
			fmt.Fprintf(w, "%s:%s\n", name, reporter.Status())
		}
	})
}
