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
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/common"
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

const (
	// API Documentation: https://docs.aws.amazon.com/kinesis/latest/APIReference/API_PutRecords.html

	// Limited to 500 records in a single request
	kinesisPutRecordsChunkSize = 500
	// Each record can only be up to 1 MiB in size
	kinesisPutRecordsRecordByteLimit = 1048576
	// Each request can be a maximum of 5 MiB in size total
	kinesisPutRecordsRequestByteLimit = kinesisPutRecordsRecordByteLimit * 5
)

// KinesisSinkConfig configures the stream destination for buffered batches
type KinesisSinkConfig struct {
	StreamName        string `hcl:"stream_name" env:"SINK_KINESIS_STREAM_NAME"`
	Region            string `hcl:"region" env:"SINK_KINESIS_REGION"`
	RoleARN           string `hcl:"role_arn,optional" env:"SINK_KINESIS_ROLE_ARN"`
	CustomAWSEndpoint string `hcl:"custom_aws_endpoint,optional" env:"SINK_KINESIS_CUSTOM_AWS_ENDPOINT"`
}

// KinesisSink holds a new client for writing batches to kinesis
type KinesisSink struct {
	client     kinesisiface.KinesisAPI
	streamName string
	region     string
	accountID  string

	log *log.Entry
}

// newKinesisSink creates a new client for writing batches to kinesis
func newKinesisSink(region string, streamName string, roleARN string, customAWSEndpoint string) (*KinesisSink, error) {
	awsSession, awsConfig, awsAccountID, err := common.GetAWSSession(region, roleARN, customAWSEndpoint)
	if err != nil {
		return nil, err
	}
	kinesisClient := kinesis.New(awsSession, awsConfig)

	return newKinesisSinkWithInterfaces(kinesisClient, *awsAccountID, region, streamName)
}

// newKinesisSinkWithInterfaces allows you to provide a Kinesis client
// directly to allow for mocking and localstack usage
func newKinesisSinkWithInterfaces(client kinesisiface.KinesisAPI, awsAccountID string, region string, streamName string) (*KinesisSink, error) {
	return &KinesisSink{
		client:     client,
		streamName: streamName,
		region:     region,
		accountID:  awsAccountID,
		log:        log.WithFields(log.Fields{"sink": "kinesis", "cloud": "AWS", "region": region, "stream": streamName}),
	}, nil
}

// KinesisSinkConfigFunction creates a KinesisSink from a KinesisSinkConfig
func KinesisSinkConfigFunction(c *KinesisSinkConfig) (*KinesisSink, error) {
	return newKinesisSink(c.Region, c.StreamName, c.RoleARN, c.CustomAWSEndpoint)
}

// The KinesisSinkAdapter type is an adapter for functions to be used as
// pluggable components for the Kinesis sink. Implements the Pluggable interface.
type KinesisSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f KinesisSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f KinesisSinkAdapter) ProvideDefault() (interface{}, error) {
	cfg := &KinesisSinkConfig{}

	return cfg, nil
}

// AdaptKinesisSinkFunc returns a KinesisSinkAdapter.
func AdaptKinesisSinkFunc(f func(c *KinesisSinkConfig) (*KinesisSink, error)) KinesisSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*KinesisSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected KinesisSinkConfig")
		}

		return f(cfg)
	}
}

// Write pushes the batch to the stream
func (ks *KinesisSink) Write(batch *models.Batch) (*models.SinkWriteResult, error) {
	ks.log.Debugf("Writing %d payloads to stream ...", batch.Count())

	chunks, oversized := models.GetChunkedPayloads(
		batch.Payloads,
		kinesisPutRecordsChunkSize,
		ks.MaxRecordBytes(),
		kinesisPutRecordsRequestByteLimit,
	)

	writeResult := &models.SinkWriteResult{
		Oversized: oversized,
	}

	var errResult error

	for _, chunk := range chunks {
		res, err := ks.process(chunk)
		writeResult = writeResult.Append(res)

		if err != nil {
			errResult = multierror.Append(errResult, err)
		}
	}

	if errResult != nil {
		errResult = models.RetryableError{
			Err: errors.Wrap(errResult, "Error writing payloads to Kinesis stream"),
		}
	}

	ks.log.Debugf("Successfully wrote %d/%d payloads", writeResult.SentCount, writeResult.Total())
	return writeResult, errResult
}

func (ks *KinesisSink) process(payloads []*models.Payload) (*models.SinkWriteResult, error) {
	payloadCount := int64(len(payloads))
	ks.log.Debugf("Writing chunk of %d payloads to stream ...", payloadCount)

	entries := make([]*kinesis.PutRecordsRequestEntry, payloadCount)
	for i := 0; i < len(entries); i++ {
		p := payloads[i]
		entries[i] = &kinesis.PutRecordsRequestEntry{
			Data:         p.Data,
			PartitionKey: aws.String(p.PartitionKey),
		}
	}

	requestStarted := time.Now()
	res, err := ks.client.PutRecords(&kinesis.PutRecordsInput{
		Records:    entries,
		StreamName: aws.String(ks.streamName),
	})
	requestFinished := time.Now()

	for _, p := range payloads {
		p.TimeRequestStarted = requestStarted
		p.TimeRequestFinished = requestFinished
	}

	if err != nil {
		failed := payloads

		return models.NewSinkWriteResult(
			nil,
			failed,
			nil,
			nil,
		), errors.Wrap(err, "Failed to send record batch to Kinesis stream")
	}

	if res.FailedRecordCount != nil && *res.FailedRecordCount > int64(0) {
		var sent []*models.Payload
		var failed []*models.Payload

		// Only the entries flagged with an error are retried; the rest
		// are owned by the stream now
		var kinesisErrs error
		for i, record := range res.Records {
			if record.ErrorMessage != nil {
				kinesisErrs = multierror.Append(kinesisErrs, errors.New(*record.ErrorMessage))
				failed = append(failed, payloads[i])
			} else {
				sent = append(sent, payloads[i])
			}
		}

		return models.NewSinkWriteResult(
			sent,
			failed,
			nil,
			nil,
		), errors.Wrap(kinesisErrs, "Failed to write all records in batch to Kinesis stream")
	}

	sent := payloads

	ks.log.Debugf("Successfully wrote %d payloads", len(entries))
	return models.NewSinkWriteResult(
		sent,
		nil,
		nil,
		nil,
	), nil
}

// Open does not do anything for this sink
func (ks *KinesisSink) Open() {}

// Close does not do anything for this sink
func (ks *KinesisSink) Close() {}

// Ping checks that the stream exists and is reachable
func (ks *KinesisSink) Ping() error {
	_, err := ks.client.DescribeStreamSummary(&kinesis.DescribeStreamSummaryInput{
		StreamName: aws.String(ks.streamName),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == kinesis.ErrCodeResourceNotFoundException {
			return models.RetryableError{
				Err: errors.Wrap(err, fmt.Sprintf("Kinesis stream '%s' does not exist", ks.streamName)),
			}
		}
		return errors.Wrap(err, "Failed to describe Kinesis stream")
	}
	return nil
}

// MaxRecordBytes returns the max number of bytes that can be sent per
// record for this sink
func (ks *KinesisSink) MaxRecordBytes() int {
	return kinesisPutRecordsRecordByteLimit
}

// MaxBatchBytes returns the max number of bytes that can be sent in one write
func (ks *KinesisSink) MaxBatchBytes() int {
	return kinesisPutRecordsRequestByteLimit
}

// MaxBatchRecords returns the most records that can be sent in one write
func (ks *KinesisSink) MaxBatchRecords() int {
	return kinesisPutRecordsChunkSize
}

// GetID returns the identifier for this sink
func (ks *KinesisSink) GetID() string {
	return fmt.Sprintf("arn:aws:kinesis:%s:%s:stream/%s", ks.region, ks.accountID, ks.streamName)
}
