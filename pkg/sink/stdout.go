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

package sink

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/models"
)

const (
	// Technically no limit but we are putting in a limit of 10 MiB here
	// to avoid trying to print out huge payloads
	stdoutRecordByteLimit = 10485760
)

// StdoutSinkConfig configures the stdout sink
type StdoutSinkConfig struct {
	DataOnlyOutput bool `hcl:"data_only_output,optional" env:"SINK_STDOUT_DATA_ONLY_OUTPUT"`
}

// StdoutSink writes batches to stdout; used for local development and testing
type StdoutSink struct {
	output         io.Writer
	dataOnlyOutput bool

	log *log.Entry
}

// newStdoutSink creates a new client for writing batches to stdout
func newStdoutSink(dataOnlyOutput bool) (*StdoutSink, error) {
	return newStdoutSinkWithInterfaces(os.Stdout, dataOnlyOutput)
}

// newStdoutSinkWithInterfaces allows you to provide a writer directly to
// allow for mocking
func newStdoutSinkWithInterfaces(writer io.Writer, dataOnlyOutput bool) (*StdoutSink, error) {
	return &StdoutSink{
		output:         writer,
		dataOnlyOutput: dataOnlyOutput,
		log:            log.WithFields(log.Fields{"sink": "stdout"}),
	}, nil
}

// StdoutSinkConfigFunction creates a StdoutSink from a StdoutSinkConfig
func StdoutSinkConfigFunction(c *StdoutSinkConfig) (*StdoutSink, error) {
	return newStdoutSink(c.DataOnlyOutput)
}

// The StdoutSinkAdapter type is an adapter for functions to be used as
// pluggable components for the stdout sink. It implements the Pluggable
// interface.
type StdoutSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f StdoutSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f StdoutSinkAdapter) ProvideDefault() (interface{}, error) {
	cfg := &StdoutSinkConfig{}

	return cfg, nil
}

// AdaptStdoutSinkFunc returns a StdoutSinkAdapter.
func AdaptStdoutSinkFunc(f func(c *StdoutSinkConfig) (*StdoutSink, error)) StdoutSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*StdoutSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected StdoutSinkConfig")
		}

		return f(cfg)
	}
}

// Write pushes the batch to stdout
func (st *StdoutSink) Write(batch *models.Batch) (*models.SinkWriteResult, error) {
	st.log.Debugf("Writing %d payloads to stdout ...", batch.Count())

	safePayloads, oversized := models.FilterOversizedPayloads(
		batch.Payloads,
		st.MaxRecordBytes(),
	)

	var sent []*models.Payload

	for _, p := range safePayloads {
		p.TimeRequestStarted = time.Now().UTC()
		if st.dataOnlyOutput {
			fmt.Fprintf(st.output, "%s\n", string(p.Data))
		} else {
			fmt.Fprintf(st.output, "%s\n", p.String())
		}
		p.TimeRequestFinished = time.Now().UTC()

		sent = append(sent, p)
	}

	return models.NewSinkWriteResult(
		sent,
		nil,
		oversized,
		nil,
	), nil
}

// Open does not do anything for this sink
func (st *StdoutSink) Open() {}

// Close does not do anything for this sink
func (st *StdoutSink) Close() {}

// Ping does not do anything for this sink
func (st *StdoutSink) Ping() error {
	return nil
}

// MaxRecordBytes returns the max number of bytes that can be sent per
// payload for this sink
func (st *StdoutSink) MaxRecordBytes() int {
	return stdoutRecordByteLimit
}

// MaxBatchBytes returns the max number of bytes that can be sent in one write
func (st *StdoutSink) MaxBatchBytes() int {
	return stdoutRecordByteLimit
}

// MaxBatchRecords returns the most payloads that can be sent in one write
func (st *StdoutSink) MaxBatchRecords() int {
	return 500
}

// GetID returns the identifier for this sink
func (st *StdoutSink) GetID() string {
	return "stdout"
}
