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

package cli

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/collector-relay/pkg/buffer"
	"github.com/snowplow-devops/collector-relay/pkg/collector"
	"github.com/snowplow-devops/collector-relay/pkg/failure"
	"github.com/snowplow-devops/collector-relay/pkg/health"
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

func TestNewServeMux_Routes(t *testing.T) {
	assert := assert.New(t)

	goodBuf := buffer.NewEventBuffer(models.DestinationGood, &buffer.EventBufferConfig{RecordLimit: 100})
	defer goodBuf.Stop()
	badBuf := buffer.NewEventBuffer(models.DestinationBad, &buffer.EventBufferConfig{RecordLimit: 100})
	defer badBuf.Stop()

	handler := failure.NewBadRowHandler("collector-relay", "0.1.0", 1048576, badBuf, nil)
	healthService := health.NewService()
	relay := collector.New(goodBuf, handler, 1024, healthService)

	server := httptest.NewServer(newServeMux(relay, healthService))
	defer server.Close()

	// Ingest surface on the root path
	res, err := http.Post(server.URL+"/", "text/plain", strings.NewReader("hello"))
	assert.Nil(err)
	assert.Equal(http.StatusOK, res.StatusCode)
	res.Body.Close()

	// Process readiness reports Warming until warmup completes
	res, err = http.Get(server.URL + "/health")
	assert.Nil(err)
	assert.Equal(http.StatusServiceUnavailable, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal("Warming", string(body))

	healthService.SetReady()

	res, err = http.Get(server.URL + "/health")
	assert.Nil(err)
	assert.Equal(http.StatusOK, res.StatusCode)
	res.Body.Close()

	// Per-sink health lives on its own path
	res, err = http.Get(server.URL + "/sink-health")
	assert.Nil(err)
	assert.Equal(http.StatusOK, res.StatusCode)
	res.Body.Close()
}

func TestSelfEndpoint(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("http://127.0.0.1:8080/", selfEndpoint(":8080"))
	assert.Equal("http://0.0.0.0:9090/", selfEndpoint("0.0.0.0:9090"))
}
