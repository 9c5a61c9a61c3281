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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/collector-relay/pkg/outage"
)

type fixedReporter struct {
	status outage.SinkStatus
}

func (r *fixedReporter) Status() outage.SinkStatus {
	return r.status
}

func getHealth(t *testing.T, handler http.Handler) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestService_WarmingThenReady(t *testing.T) {
	assert := assert.New(t)

	svc := NewService()

	code, body := getHealth(t, svc.HealthHandler())
	assert.Equal(http.StatusServiceUnavailable, code)
	assert.Equal("Warming", body)

	svc.SetReady()

	code, body = getHealth(t, svc.HealthHandler())
	assert.Equal(http.StatusOK, code)
	assert.Equal("Ready", body)
}

func TestService_BufferOverflowLatches(t *testing.T) {
	assert := assert.New(t)

	svc := NewService()
	svc.SetReady()
	svc.SetBufferOverflow()

	code, body := getHealth(t, svc.HealthHandler())
	assert.Equal(http.StatusServiceUnavailable, code)
	assert.Equal("BufferOverflow", body)
	assert.True(svc.HasBufferOverflow())
}

func TestService_SinkHealth(t *testing.T) {
	assert := assert.New(t)

	svc := NewService()
	good := &fixedReporter{status: outage.StatusHealthy}
	bad := &fixedReporter{status: outage.StatusHealthy}
	svc.RegisterReporter("good", good)
	svc.RegisterReporter("bad", bad)

	code, _ := getHealth(t, svc.SinkHealthHandler())
	assert.Equal(http.StatusOK, code)

	bad.status = outage.StatusUnhealthy

	code, body := getHealth(t, svc.SinkHealthHandler())
	assert.Equal(http.StatusServiceUnavailable, code)
	assert.Contains(body, "bad:Unhealthy")
	assert.Contains(body, "good:Healthy")
}
