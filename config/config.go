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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"

	"github.com/snowplow-devops/collector-relay/pkg/backoff"
	"github.com/snowplow-devops/collector-relay/pkg/buffer"
	"github.com/snowplow-devops/collector-relay/pkg/observer"
	"github.com/snowplow-devops/collector-relay/pkg/outage"
	"github.com/snowplow-devops/collector-relay/pkg/shutdown"
	"github.com/snowplow-devops/collector-relay/pkg/sink"
	"github.com/snowplow-devops/collector-relay/pkg/sink/sinkiface"
	"github.com/snowplow-devops/collector-relay/pkg/statsreceiver"
	"github.com/snowplow-devops/collector-relay/pkg/statsreceiver/statsreceiveriface"
	"github.com/snowplow-devops/collector-relay/pkg/warmup"
)

// Config holds the configuration data along with the decoder to decode them
type Config struct {
	Data    *ConfigurationData
	Decoder Decoder
}

// ConfigurationData for holding all configuration options
type ConfigurationData struct {
	GoodSink                *Component                `hcl:"good_sink,block" envPrefix:"GOOD_SINK_"`
	BadSink                 *Component                `hcl:"bad_sink,block" envPrefix:"BAD_SINK_"`
	Buffer                  *buffer.EventBufferConfig `hcl:"buffer,block"`
	BadBuffer               *buffer.EventBufferConfig `hcl:"bad_buffer,block" envPrefix:"BAD_"`
	Retry                   *RetryConfig              `hcl:"retry,block"`
	Outage                  *outage.MonitorConfig     `hcl:"outage,block"`
	Shutdown                *shutdown.Config          `hcl:"shutdown,block"`
	Warmup                  *warmup.Config            `hcl:"warmup,block"`
	Sentry                  *SentryConfig             `hcl:"sentry,block"`
	StatsReceiver           *StatsConfig              `hcl:"stats_receiver,block"`
	ListenAddr              string                    `hcl:"listen_addr,optional" env:"LISTEN_ADDR"`
	LogLevel                string                    `hcl:"log_level,optional" env:"LOG_LEVEL"`
	GoogleServiceAccountB64 string                    `hcl:"google_application_credentials_b64,optional" env:"GOOGLE_APPLICATION_CREDENTIALS_B64"`
	UserProvidedID          string                    `hcl:"user_provided_id,optional" env:"USER_PROVIDED_ID"`
}

// Component is a type to abstract over configuration blocks.
type Component struct {
	Use *Use `hcl:"use,block"`
}

// Use is a type to denote what a component will be configured to use.
type Use struct {
	Name string   `hcl:",label" env:"NAME"`
	Body hcl.Body `hcl:",remain"`
}

// RetryConfig configures the backoff policy applied to failed flushes
type RetryConfig struct {
	InitialDelayMs int     `hcl:"initial_delay_ms,optional" env:"RETRY_INITIAL_DELAY_MS"`
	Multiplier     float64 `hcl:"multiplier,optional" env:"RETRY_MULTIPLIER"`
	MaxDelayMs     int     `hcl:"max_delay_ms,optional" env:"RETRY_MAX_DELAY_MS"`
	TotalTimeoutMs int     `hcl:"total_timeout_ms,optional" env:"RETRY_TOTAL_TIMEOUT_MS"`
	MaxAttempts    int     `hcl:"max_attempts,optional" env:"RETRY_MAX_ATTEMPTS"`
}

// SentryConfig configures the Sentry error tracker.
type SentryConfig struct {
	Dsn   string `hcl:"dsn" env:"SENTRY_DSN"`
	Tags  string `hcl:"tags,optional" env:"SENTRY_TAGS"`
	Debug bool   `hcl:"debug,optional" env:"SENTRY_DEBUG"`
}

// StatsConfig holds configuration for stats receivers.
// It includes a receiver component to use.
type StatsConfig struct {
	Receiver   *Use `hcl:"use,block" envPrefix:"STATS_RECEIVER_"`
	TimeoutSec int  `hcl:"timeout_sec,optional" env:"STATS_RECEIVER_TIMEOUT_SEC"`
	BufferSec  int  `hcl:"buffer_sec,optional" env:"STATS_RECEIVER_BUFFER_SEC"`
}

// defaultConfigData returns the initial main configuration target.
func defaultConfigData() *ConfigurationData {
	return &ConfigurationData{
		GoodSink: &Component{&Use{Name: "stdout"}},
		BadSink:  &Component{&Use{Name: "stdout"}},

		Buffer: &buffer.EventBufferConfig{
			ByteLimit:   1048576,
			RecordLimit: 500,
			TimeLimitMs: 5000,
			CeilingByte: 268435456,
		},
		BadBuffer: &buffer.EventBufferConfig{
			ByteLimit:   1048576,
			RecordLimit: 500,
			TimeLimitMs: 5000,
			CeilingByte: 268435456,
		},
		Retry: &RetryConfig{
			InitialDelayMs: 1000,
			Multiplier:     2.0,
			MaxDelayMs:     30000,
			TotalTimeoutMs: 600000,
			MaxAttempts:    10,
		},
		Outage: &outage.MonitorConfig{
			FailureThreshold: 3,
			ProbeIntervalMs:  10000,
		},
		Shutdown: &shutdown.Config{
			TimeoutMs: 10000,
		},
		Warmup: &warmup.Config{
			Enabled:          true,
			MaxAttempts:      0,
			DelayMs:          500,
			ConfirmTimeoutMs: 5000,
		},
		Sentry: &SentryConfig{
			Tags: "{}",
		},
		StatsReceiver: &StatsConfig{
			Receiver:   &Use{},
			TimeoutSec: 1,
			BufferSec:  15,
		},
		ListenAddr: ":8080",
		LogLevel:   "info",
	}
}

// NewConfig returns a configuration
func NewConfig() (*Config, error) {
	filename := os.Getenv("COLLECTOR_RELAY_CONFIG_FILE")
	if filename == "" {
		return newEnvConfig()
	}

	switch suffix := strings.ToLower(filepath.Ext(filename)); suffix {
	case ".hcl":
		return newHclConfig(filename)
	default:
		return nil, errors.New("invalid extension for the configuration file")
	}
}

func newEnvConfig() (*Config, error) {
	var err error

	decoderOpts := &DecoderOptions{}
	envDecoder := &EnvDecoder{}

	configData := defaultConfigData()

	err = envDecoder.Decode(decoderOpts, configData)
	if err != nil {
		return nil, err
	}

	mainConfig := Config{
		Data:    configData,
		Decoder: envDecoder,
	}

	return &mainConfig, nil
}

func newHclConfig(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// Parsing
	parser := hclparse.NewParser()
	fileHCL, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	// Creating EvalContext
	evalContext := CreateHclContext() // ptr

	// Decoding
	configData := defaultConfigData()
	decoderOpts := &DecoderOptions{Input: fileHCL.Body}
	hclDecoder := &HclDecoder{EvalContext: evalContext}

	err = hclDecoder.Decode(decoderOpts, configData)
	if err != nil {
		return nil, err
	}

	mainConfig := Config{
		Data:    configData,
		Decoder: hclDecoder,
	}

	return &mainConfig, nil
}

// CreateComponent creates a pluggable component given the decoder options.
func (c *Config) CreateComponent(p Pluggable, opts *DecoderOptions) (interface{}, error) {
	componentConfigure := WithDecoderOptions(opts)

	decodedConfig, err := componentConfigure(p, c.Decoder)
	if err != nil {
		return nil, err
	}

	return p.Create(decodedConfig)
}

// GetGoodSink builds and returns the sink for the good destination
func (c *Config) GetGoodSink() (sinkiface.Sink, error) {
	return c.getSink(c.Data.GoodSink.Use, "")
}

// GetBadSink builds and returns the sink for the bad destination
func (c *Config) GetBadSink() (sinkiface.Sink, error) {
	return c.getSink(c.Data.BadSink.Use, "BAD_")
}

func (c *Config) getSink(useSink *Use, envPrefix string) (sinkiface.Sink, error) {
	var plug Pluggable
	decoderOpts := &DecoderOptions{
		Prefix: envPrefix,
		Input:  useSink.Body,
	}

	switch useSink.Name {
	case "stdout":
		plug = sink.AdaptStdoutSinkFunc(
			sink.StdoutSinkConfigFunction,
		)
	case "kinesis":
		plug = sink.AdaptKinesisSinkFunc(
			sink.KinesisSinkConfigFunction,
		)
	case "pubsub":
		plug = sink.AdaptPubSubSinkFunc(
			sink.PubSubSinkConfigFunction,
		)
	case "sqs":
		plug = sink.AdaptSQSSinkFunc(
			sink.SQSSinkConfigFunction,
		)
	case "kafka":
		plug = sink.AdaptKafkaSinkFunc(
			sink.KafkaSinkConfigFunction,
		)
	default:
		return nil, errors.New(fmt.Sprintf("Invalid sink found; expected one of 'stdout, kinesis, pubsub, sqs, kafka' and got '%s'", useSink.Name))
	}

	component, err := c.CreateComponent(plug, decoderOpts)
	if err != nil {
		return nil, err
	}

	if s, ok := component.(sinkiface.Sink); ok {
		return s, nil
	}

	return nil, fmt.Errorf("could not interpret sink configuration for %q", useSink.Name)
}

// GetRetryPolicy builds the backoff policy from the retry block
func (c *Config) GetRetryPolicy() *backoff.Policy {
	r := c.Data.Retry
	return backoff.NewPolicy(
		time.Duration(r.InitialDelayMs)*time.Millisecond,
		r.Multiplier,
		time.Duration(r.MaxDelayMs)*time.Millisecond,
		time.Duration(r.TotalTimeoutMs)*time.Millisecond,
		r.MaxAttempts,
	)
}

// GetTags returns a list of tags to use in identifying this instance of collector-relay with enough
// entropy so as to avoid collisions as it should not be possible to have both the host and process_id be
// the same.
func (c *Config) GetTags() (map[string]string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to get server hostname as tag")
	}

	processID := os.Getpid()

	tags := map[string]string{
		"host":       hostname,
		"process_id": strconv.Itoa(processID),
	}

	return tags, nil
}

// GetObserver builds and returns the observer with the embedded
// optional stats receiver
func (c *Config) GetObserver(tags map[string]string) (*observer.Observer, error) {
	sr, err := c.GetStatsReceiver(tags)
	if err != nil {
		return nil, err
	}
	return observer.New(sr, time.Duration(c.Data.StatsReceiver.TimeoutSec)*time.Second, time.Duration(c.Data.StatsReceiver.BufferSec)*time.Second), nil
}

// GetStatsReceiver builds and returns the stats receiver
func (c *Config) GetStatsReceiver(tags map[string]string) (statsreceiveriface.StatsReceiver, error) {
	useReceiver := c.Data.StatsReceiver.Receiver
	decoderOpts := &DecoderOptions{
		Input: useReceiver.Body,
	}

	switch useReceiver.Name {
	case "statsd":
		plug := statsreceiver.AdaptStatsDStatsReceiverFunc(
			statsreceiver.NewStatsDReceiverWithTags(tags),
		)
		component, err := c.CreateComponent(plug, decoderOpts)
		if err != nil {
			return nil, err
		}

		if r, ok := component.(statsreceiveriface.StatsReceiver); ok {
			return r, nil
		}

		return nil, fmt.Errorf("could not interpret stats receiver configuration for %q", useReceiver.Name)
	case "":
		return nil, nil
	default:
		return nil, errors.New(fmt.Sprintf("Invalid stats receiver found; expected one of 'statsd' and got '%s'", useReceiver.Name))
	}
}
