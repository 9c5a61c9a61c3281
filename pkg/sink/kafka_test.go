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
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/collector-relay/pkg/models"
	"github.com/snowplow-devops/collector-relay/pkg/testutil"
)

func TestKafkaSink_WriteSuccess(t *testing.T) {
	assert := assert.New(t)

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	for i := 0; i < 10; i++ {
		producer.ExpectSendMessageAndSucceed()
	}

	sink, err := newKafkaSinkWithInterfaces(nil, producer, "localhost:9092", "events", 1048576, sarama.DefaultVersion)
	assert.Nil(err)
	assert.NotNil(sink)

	sink.Open()

	batch := testutil.GetTestBatch(10, "Hello Kafka!!")

	writeRes, err := sink.Write(batch)
	assert.Nil(err)
	assert.NotNil(writeRes)

	assert.Equal(int64(10), writeRes.SentCount)
	assert.Equal(int64(0), writeRes.FailedCount)
}

func TestKafkaSink_WriteFailure(t *testing.T) {
	assert := assert.New(t)

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink, err := newKafkaSinkWithInterfaces(nil, producer, "localhost:9092", "events", 1048576, sarama.DefaultVersion)
	assert.Nil(err)

	batch := testutil.GetTestBatch(2, "Hello Kafka!!")

	writeRes, err := sink.Write(batch)
	assert.NotNil(err)
	assert.True(models.IsRetryable(err))

	assert.Equal(int64(1), writeRes.SentCount)
	assert.Equal(int64(1), writeRes.FailedCount)
}

func TestKafkaSink_WriteOversized(t *testing.T) {
	assert := assert.New(t)

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())

	sink, err := newKafkaSinkWithInterfaces(nil, producer, "localhost:9092", "events", 1048576, sarama.DefaultVersion)
	assert.Nil(err)

	batch := testutil.GetTestBatch(1, testutil.GenRandomString(sink.MaxRecordBytes()+1))

	writeRes, err := sink.Write(batch)
	assert.Nil(err)
	assert.Equal(int64(0), writeRes.SentCount)
	assert.Equal(1, len(writeRes.Oversized))
}

func TestKafkaSink_GetID(t *testing.T) {
	assert := assert.New(t)

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())

	sink, err := newKafkaSinkWithInterfaces(nil, producer, "localhost:9092,localhost:9093", "events", 1048576, sarama.DefaultVersion)
	assert.Nil(err)
	assert.Equal("brokers:localhost:9092,localhost:9093:topic:events", sink.GetID())
}
