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
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/models"
)

const (
	// API Documentation: https://cloud.google.com/pubsub/quotas

	// Each message can only be up to 10 MB in size
	pubSubPublishMessageByteLimit = 10485760
)

// PubSubSinkConfig configures the topic destination for buffered batches
type PubSubSinkConfig struct {
	ProjectID string `hcl:"project_id" env:"SINK_PUBSUB_PROJECT_ID"`
	TopicName string `hcl:"topic_name" env:"SINK_PUBSUB_TOPIC_NAME"`
}

// PubSubSink holds a new client for writing batches to Google PubSub
type PubSubSink struct {
	projectID string
	client    *pubsub.Client
	topic     *pubsub.Topic
	topicName string

	log *log.Entry
}

// newPubSubSink creates a new client for writing batches to Google PubSub
func newPubSubSink(projectID string, topicName string) (*PubSubSink, error) {
	ctx := context.Background()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create PubSub client")
	}

	return &PubSubSink{
		projectID: projectID,
		client:    client,
		topicName: topicName,
		log:       log.WithFields(log.Fields{"sink": "pubsub", "cloud": "GCP", "project": projectID, "topic": topicName}),
	}, nil
}

// PubSubSinkConfigFunction creates a PubSubSink from a PubSubSinkConfig
func PubSubSinkConfigFunction(c *PubSubSinkConfig) (*PubSubSink, error) {
	return newPubSubSink(c.ProjectID, c.TopicName)
}

// The PubSubSinkAdapter type is an adapter for functions to be used as
// pluggable components for the PubSub sink. Implements the Pluggable interface.
type PubSubSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f PubSubSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f PubSubSinkAdapter) ProvideDefault() (interface{}, error) {
	cfg := &PubSubSinkConfig{}

	return cfg, nil
}

// AdaptPubSubSinkFunc returns a PubSubSinkAdapter.
func AdaptPubSubSinkFunc(f func(c *PubSubSinkConfig) (*PubSubSink, error)) PubSubSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*PubSubSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected PubSubSinkConfig")
		}

		return f(cfg)
	}
}

// Write pushes the batch to the topic
func (ps *PubSubSink) Write(batch *models.Batch) (*models.SinkWriteResult, error) {
	ctx := context.Background()

	ps.log.Debugf("Writing %d payloads to topic ...", batch.Count())

	safePayloads, oversized := models.FilterOversizedPayloads(
		batch.Payloads,
		ps.MaxRecordBytes(),
	)

	var invalid []*models.Payload
	var sent []*models.Payload
	var failed []*models.Payload
	var errResult error

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range safePayloads {
		if len(p.Data) == 0 {
			ps.log.Warnf("Payload %s has no data, cannot be published to PubSub; dropping as invalid", p)
			invalid = append(invalid, p)
			continue
		}

		pubSubMsg := &pubsub.Message{
			Data: p.Data,
		}

		requestStarted := time.Now()
		r := ps.topic.Publish(ctx, pubSubMsg)

		payload := p
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := r.Get(ctx)
			requestFinished := time.Now()

			payload.TimeRequestStarted = requestStarted
			payload.TimeRequestFinished = requestFinished

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errResult = multierror.Append(errResult, err)
				failed = append(failed, payload)
			} else {
				sent = append(sent, payload)
			}
		}()
	}
	wg.Wait()

	if errResult != nil {
		errResult = models.RetryableError{
			Err: errors.Wrap(errResult, "Error writing payloads to PubSub topic"),
		}
	}

	ps.log.Debugf("Successfully wrote %d/%d payloads", len(sent), len(safePayloads))
	return models.NewSinkWriteResult(
		sent,
		failed,
		oversized,
		invalid,
	), errResult
}

// Open opens a pipe to the topic
func (ps *PubSubSink) Open() {
	ps.topic = ps.client.Topic(ps.topicName)
}

// Close stops the topic
func (ps *PubSubSink) Close() {
	if ps.topic != nil {
		ps.topic.Stop()
	}
}

// Ping checks that the topic exists and is reachable
func (ps *PubSubSink) Ping() error {
	ctx := context.Background()

	topic := ps.topic
	if topic == nil {
		topic = ps.client.Topic(ps.topicName)
	}

	exists, err := topic.Exists(ctx)
	if err != nil {
		return models.RetryableError{
			Err: errors.Wrap(err, "Failed to check PubSub topic exists"),
		}
	}
	if !exists {
		return models.RetryableError{
			Err: errors.New(fmt.Sprintf("PubSub topic '%s' does not exist", ps.topicName)),
		}
	}
	return nil
}

// MaxRecordBytes returns the max number of bytes that can be sent per
// message for this sink
func (ps *PubSubSink) MaxRecordBytes() int {
	return pubSubPublishMessageByteLimit
}

// MaxBatchBytes returns the max number of bytes that can be sent in one write
func (ps *PubSubSink) MaxBatchBytes() int {
	return pubSubPublishMessageByteLimit
}

// MaxBatchRecords returns the most messages that can be sent in one write
func (ps *PubSubSink) MaxBatchRecords() int {
	return 500
}

// GetID returns the identifier for this sink
func (ps *PubSubSink) GetID() string {
	return fmt.Sprintf("projects/%s/topics/%s", ps.projectID, ps.topicName)
}
