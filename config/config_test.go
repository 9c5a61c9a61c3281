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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/collector-relay/pkg/sink"
)

func TestMain(m *testing.M) {
	os.Clearenv()
	exitVal := m.Run()
	os.Exit(exitVal)
}

func TestNewConfig_Defaults(t *testing.T) {
	assert := assert.New(t)

	c, err := NewConfig()
	assert.NotNil(c)
	if err != nil {
		t.Fatalf("function NewConfig failed with error: %q", err.Error())
	}

	assert.Equal("stdout", c.Data.GoodSink.Use.Name)
	assert.Equal("stdout", c.Data.BadSink.Use.Name)
	assert.Equal("info", c.Data.LogLevel)
	assert.Equal(":8080", c.Data.ListenAddr)

	assert.Equal(1048576, c.Data.Buffer.ByteLimit)
	assert.Equal(500, c.Data.Buffer.RecordLimit)
	assert.Equal(5000, c.Data.Buffer.TimeLimitMs)
	assert.Equal(268435456, c.Data.Buffer.CeilingByte)

	assert.Equal(1000, c.Data.Retry.InitialDelayMs)
	assert.Equal(2.0, c.Data.Retry.Multiplier)
	assert.Equal(10, c.Data.Retry.MaxAttempts)

	assert.Equal(3, c.Data.Outage.FailureThreshold)
	assert.Equal(10000, c.Data.Outage.ProbeIntervalMs)
	assert.Equal(10000, c.Data.Shutdown.TimeoutMs)
	assert.True(c.Data.Warmup.Enabled)
	assert.Equal(5000, c.Data.Warmup.ConfirmTimeoutMs)

	goodSink, err := c.GetGoodSink()
	assert.NotNil(goodSink)
	assert.Nil(err)

	badSink, err := c.GetBadSink()
	assert.NotNil(badSink)
	assert.Nil(err)
}

func TestNewConfig_FromEnv(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("GOOD_SINK_NAME", "kinesis")
	t.Setenv("BAD_SINK_NAME", "sqs")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("BUFFER_BYTE_LIMIT", "2048")
	t.Setenv("BAD_BUFFER_BYTE_LIMIT", "4096")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("OUTAGE_FAILURE_THRESHOLD", "7")

	c, err := NewConfig()
	assert.NotNil(c)
	assert.Nil(err)

	assert.Equal("kinesis", c.Data.GoodSink.Use.Name)
	assert.Equal("sqs", c.Data.BadSink.Use.Name)
	assert.Equal("debug", c.Data.LogLevel)
	assert.Equal(":9090", c.Data.ListenAddr)
	assert.Equal(2048, c.Data.Buffer.ByteLimit)
	assert.Equal(4096, c.Data.BadBuffer.ByteLimit)
	assert.Equal(5, c.Data.Retry.MaxAttempts)
	assert.Equal(7, c.Data.Outage.FailureThreshold)
}

func TestNewConfig_FromHcl(t *testing.T) {
	assert := assert.New(t)

	hclSrc := `
listen_addr = ":8181"
log_level   = "warn"

good_sink {
  use "kinesis" {
    stream_name = "events-good"
    region      = "eu-central-1"
  }
}

bad_sink {
  use "sqs" {
    queue_name = "events-bad"
    region     = "eu-central-1"
  }
}

buffer {
  byte_limit    = 65536
  record_limit  = 100
  time_limit_ms = 1000
  ceiling_bytes = 1048576
}

retry {
  initial_delay_ms = 250
  multiplier       = 3
  max_delay_ms     = 10000
  max_attempts     = 4
}

outage {
  failure_threshold = 5
  probe_interval_ms = 2000
}

shutdown {
  timeout_ms = 3000
}

warmup {
  enabled = false
}
`
	filename := filepath.Join(t.TempDir(), "config.hcl")
	if err := os.WriteFile(filename, []byte(hclSrc), 0o644); err != nil {
		t.Fatalf("Failed writing HCL test source: %s", err.Error())
	}
	t.Setenv("COLLECTOR_RELAY_CONFIG_FILE", filename)

	c, err := NewConfig()
	assert.NotNil(c)
	assert.Nil(err)

	assert.Equal(":8181", c.Data.ListenAddr)
	assert.Equal("warn", c.Data.LogLevel)
	assert.Equal("kinesis", c.Data.GoodSink.Use.Name)
	assert.Equal("sqs", c.Data.BadSink.Use.Name)
	assert.Equal(65536, c.Data.Buffer.ByteLimit)
	assert.Equal(100, c.Data.Buffer.RecordLimit)
	assert.Equal(250, c.Data.Retry.InitialDelayMs)
	assert.Equal(5, c.Data.Outage.FailureThreshold)
	assert.Equal(3000, c.Data.Shutdown.TimeoutMs)
	assert.False(c.Data.Warmup.Enabled)

	// The good sink block body decodes into the Kinesis configuration
	decoded, err := c.CreateComponent(MockKinesisSinkAdapter(), &DecoderOptions{Input: c.Data.GoodSink.Use.Body})
	assert.Nil(err)
	kinesisCfg, ok := decoded.(*sink.KinesisSinkConfig)
	assert.True(ok)
	assert.Equal("events-good", kinesisCfg.StreamName)
	assert.Equal("eu-central-1", kinesisCfg.Region)
}

func TestNewConfig_InvalidExtension(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("COLLECTOR_RELAY_CONFIG_FILE", "config.json")

	c, err := NewConfig()
	assert.Nil(c)
	if assert.NotNil(err) {
		assert.Equal("invalid extension for the configuration file", err.Error())
	}
}

func TestConfig_GetSinkInvalid(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("GOOD_SINK_NAME", "fake")

	c, err := NewConfig()
	assert.NotNil(c)
	assert.Nil(err)

	s, err := c.GetGoodSink()
	assert.Nil(s)
	if assert.NotNil(err) {
		assert.Equal("Invalid sink found; expected one of 'stdout, kinesis, pubsub, sqs, kafka' and got 'fake'", err.Error())
	}
}

func TestConfig_GetRetryPolicy(t *testing.T) {
	assert := assert.New(t)

	c, err := NewConfig()
	assert.NotNil(c)
	assert.Nil(err)

	policy := c.GetRetryPolicy()
	assert.Equal(time.Second, policy.Initial)
	assert.Equal(2.0, policy.Multiplier)
	assert.Equal(30*time.Second, policy.Max)
	assert.Equal(10*time.Minute, policy.TotalTimeout)
	assert.Equal(10, policy.MaxAttempts)
}

func TestConfig_GetStatsReceiver(t *testing.T) {
	assert := assert.New(t)

	c, err := NewConfig()
	assert.NotNil(c)
	assert.Nil(err)

	tags, err := c.GetTags()
	assert.Nil(err)
	assert.Contains(tags, "host")
	assert.Contains(tags, "process_id")

	// No receiver configured means no stats receiver and no error
	sr, err := c.GetStatsReceiver(tags)
	assert.Nil(sr)
	assert.Nil(err)

	c.Data.StatsReceiver.Receiver.Name = "fake"
	sr, err = c.GetStatsReceiver(tags)
	assert.Nil(sr)
	if assert.NotNil(err) {
		assert.Equal("Invalid stats receiver found; expected one of 'statsd' and got 'fake'", err.Error())
	}
}
