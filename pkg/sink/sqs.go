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
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/common"
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

const (
	// API Documentation: https://docs.aws.amazon.com/AWSSimpleQueueService/latest/SQSDeveloperGuide/quotas-messages.html

	// Limited to 10 messages in a single request
	sqsSendMessageBatchChunkSize = 10
	// Each message can only be up to 256 KB in size
	sqsSendMessageByteLimit = 262144
	// Each request can be a maximum of 256 KB in size total
	sqsSendMessageBatchByteLimit = 262144
)

// SQSSinkConfig configures the queue destination for buffered batches
type SQSSinkConfig struct {
	QueueName         string `hcl:"queue_name" env:"SINK_SQS_QUEUE_NAME"`
	Region            string `hcl:"region" env:"SINK_SQS_REGION"`
	RoleARN           string `hcl:"role_arn,optional" env:"SINK_SQS_ROLE_ARN"`
	CustomAWSEndpoint string `hcl:"custom_aws_endpoint,optional" env:"SINK_SQS_CUSTOM_AWS_ENDPOINT"`
}

// SQSSink holds a new client for writing batches to sqs
type SQSSink struct {
	client    sqsiface.SQSAPI
	queueName string
	region    string
	accountID string

	// queueURL is written by Open and refreshed by Ping while the dispatch
	// loop reads it concurrently
	urlMu    sync.Mutex
	queueURL string

	log *log.Entry
}

func (st *SQSSink) getQueueURL() string {
	st.urlMu.Lock()
	defer st.urlMu.Unlock()
	return st.queueURL
}

func (st *SQSSink) setQueueURL(url string) {
	st.urlMu.Lock()
	defer st.urlMu.Unlock()
	st.queueURL = url
}

// newSQSSink creates a new client for writing batches to sqs
func newSQSSink(region string, queueName string, roleARN string, customAWSEndpoint string) (*SQSSink, error) {
	awsSession, awsConfig, awsAccountID, err := common.GetAWSSession(region, roleARN, customAWSEndpoint)
	if err != nil {
		return nil, err
	}
	sqsClient := sqs.New(awsSession, awsConfig)

	return newSQSSinkWithInterfaces(sqsClient, *awsAccountID, region, queueName)
}

// newSQSSinkWithInterfaces allows you to provide an SQS client directly to
// allow for mocking and localstack usage
func newSQSSinkWithInterfaces(client sqsiface.SQSAPI, awsAccountID string, region string, queueName string) (*SQSSink, error) {
	return &SQSSink{
		client:    client,
		queueName: queueName,
		region:    region,
		accountID: awsAccountID,
		log:       log.WithFields(log.Fields{"sink": "sqs", "cloud": "AWS", "region": region, "queue": queueName}),
	}, nil
}

// SQSSinkConfigFunction creates an SQSSink from an SQSSinkConfig
func SQSSinkConfigFunction(c *SQSSinkConfig) (*SQSSink, error) {
	return newSQSSink(c.Region, c.QueueName, c.RoleARN, c.CustomAWSEndpoint)
}

// The SQSSinkAdapter type is an adapter for functions to be used as
// pluggable components for the SQS sink. Implements the Pluggable interface.
type SQSSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f SQSSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f SQSSinkAdapter) ProvideDefault() (interface{}, error) {
	cfg := &SQSSinkConfig{}

	return cfg, nil
}

// AdaptSQSSinkFunc returns an SQSSinkAdapter.
func AdaptSQSSinkFunc(f func(c *SQSSinkConfig) (*SQSSink, error)) SQSSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*SQSSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected SQSSinkConfig")
		}

		return f(cfg)
	}
}

// Write pushes the batch to the queue
func (st *SQSSink) Write(batch *models.Batch) (*models.SinkWriteResult, error) {
	st.log.Debugf("Writing %d payloads to queue ...", batch.Count())

	chunks, oversized := models.GetChunkedPayloads(
		batch.Payloads,
		sqsSendMessageBatchChunkSize,
		st.MaxRecordBytes(),
		sqsSendMessageBatchByteLimit,
	)

	writeResult := &models.SinkWriteResult{
		Oversized: oversized,
	}

	var errResult error

	for _, chunk := range chunks {
		res, err := st.process(chunk)
		writeResult = writeResult.Append(res)

		if err != nil {
			errResult = multierror.Append(errResult, err)
		}
	}

	if errResult != nil {
		errResult = models.RetryableError{
			Err: errors.Wrap(errResult, "Error writing payloads to SQS queue"),
		}
	}

	st.log.Debugf("Successfully wrote %d/%d payloads", writeResult.SentCount, writeResult.Total())
	return writeResult, errResult
}

func (st *SQSSink) process(payloads []*models.Payload) (*models.SinkWriteResult, error) {
	payloadCount := int64(len(payloads))
	st.log.Debugf("Writing chunk of %d payloads to queue ...", payloadCount)

	lookup := make(map[string]*models.Payload)

	entries := make([]*sqs.SendMessageBatchRequestEntry, payloadCount)
	for i := 0; i < len(entries); i++ {
		p := payloads[i]
		msgID := strconv.Itoa(i)

		entries[i] = &sqs.SendMessageBatchRequestEntry{
			DelaySeconds: aws.Int64(0),
			MessageBody:  aws.String(string(p.Data)),
			Id:           aws.String(msgID),
		}
		lookup[msgID] = p
	}

	requestStarted := time.Now()
	res, err := st.client.SendMessageBatch(&sqs.SendMessageBatchInput{
		Entries:  entries,
		QueueUrl: aws.String(st.getQueueURL()),
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
		), errors.Wrap(err, "Failed to send message batch to SQS queue")
	}

	var sent []*models.Payload
	var failed []*models.Payload
	var invalid []*models.Payload
	var errResult error

	for _, f := range res.Failed {
		p := lookup[*f.Id]
		fErr := errors.New(fmt.Sprintf("%s: %s", *f.Code, *f.Message))

		if *f.Code == sqs.ErrCodeInvalidMessageContents {
			st.log.Warn(fErr.Error())
			invalid = append(invalid, p)
		} else {
			errResult = multierror.Append(errResult, fErr)
			failed = append(failed, p)
		}
		delete(lookup, *f.Id)
	}

	for _, s := range res.Successful {
		sent = append(sent, lookup[*s.Id])
	}

	if errResult != nil {
		errResult = errors.Wrap(errResult, "Failed to write some messages in batch to SQS queue")
	}

	return models.NewSinkWriteResult(
		sent,
		failed,
		nil,
		invalid,
	), errResult
}

// Open resolves the queue URL from its name
func (st *SQSSink) Open() {
	urlResult, err := st.client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: aws.String(st.queueName),
	})
	if err != nil {
		st.log.WithError(err).Warn("Failed to resolve SQS queue URL, sink will report unreachable until it exists")
		return
	}

	st.setQueueURL(*urlResult.QueueUrl)
}

// Close does not do anything for this sink
func (st *SQSSink) Close() {}

// Ping checks that the queue exists and is reachable
func (st *SQSSink) Ping() error {
	urlResult, err := st.client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: aws.String(st.queueName),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == sqs.ErrCodeQueueDoesNotExist {
			return models.RetryableError{
				Err: errors.Wrap(err, fmt.Sprintf("SQS queue '%s' does not exist", st.queueName)),
			}
		}
		return errors.Wrap(err, "Failed to resolve SQS queue URL")
	}

	// Recovery path also refreshes the queue URL in case the queue was
	// recreated while unreachable
	st.setQueueURL(*urlResult.QueueUrl)
	return nil
}

// MaxRecordBytes returns the max number of bytes that can be sent per
// message for this sink
func (st *SQSSink) MaxRecordBytes() int {
	return sqsSendMessageByteLimit
}

// MaxBatchBytes returns the max number of bytes that can be sent in one write
func (st *SQSSink) MaxBatchBytes() int {
	return sqsSendMessageBatchByteLimit
}

// MaxBatchRecords returns the most messages that can be sent in one write
func (st *SQSSink) MaxBatchRecords() int {
	return sqsSendMessageBatchChunkSize
}

// GetID returns the identifier for this sink
func (st *SQSSink) GetID() string {
	return fmt.Sprintf("arn:aws:sqs:%s:%s:%s", st.region, st.accountID, st.queueName)
}
