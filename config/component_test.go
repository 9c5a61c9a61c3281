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
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/collector-relay/pkg/sink"
)

func parseHclBody(t *testing.T, src string) hcl.Body {
	t.Helper()

	p := hclparse.NewParser()
	hclFile, diags := p.ParseHCL([]byte(src), "placeholder.hcl")
	if diags.HasErrors() {
		t.Fatalf("Failed parsing HCL test source: %s", diags.Error())
	}

	return hclFile.Body
}

func TestCreateSinkComponentHCL(t *testing.T) {
	testCases := []struct {
		TestName string
		Source   string
		Plug     Pluggable
		Expected interface{}
	}{
		{
			TestName: "sqs",
			Source: `
queue_name = "testQueue"
region     = "eu-test-1"
role_arn   = "xxx-test-role-arn"
`,
			Plug: MockSQSSinkAdapter(),
			Expected: &sink.SQSSinkConfig{
				QueueName: "testQueue",
				Region:    "eu-test-1",
				RoleARN:   "xxx-test-role-arn",
			},
		},
		{
			TestName: "kinesis",
			Source: `
stream_name = "testStream"
region      = "eu-test-1"
`,
			Plug: MockKinesisSinkAdapter(),
			Expected: &sink.KinesisSinkConfig{
				StreamName: "testStream",
				Region:     "eu-test-1",
			},
		},
		{
			TestName: "pubsub",
			Source: `
project_id = "testId"
topic_name = "testTopic"
`,
			Plug: MockPubSubSinkAdapter(),
			Expected: &sink.PubSubSinkConfig{
				ProjectID: "testId",
				TopicName: "testTopic",
			},
		},
		{
			TestName: "kafka_simple",
			Source: `
brokers    = "testBrokers"
topic_name = "testTopic"
`,
			Plug: MockKafkaSinkAdapter(),
			Expected: &sink.KafkaSinkConfig{
				Brokers:    "testBrokers",
				TopicName:  "testTopic",
				MaxRetries: 10,
				ByteLimit:  1048576,
			},
		},
		{
			TestName: "kafka_extended",
			Source: `
brokers        = "testBrokers"
topic_name     = "testTopic"
target_version = "2.7.0"
max_retries    = 11
byte_limit     = 1000000
compress       = true
wait_for_all   = true
idempotent     = true
enable_sasl    = true
sasl_username  = "testUsername"
sasl_password  = "testPass"
`,
			Plug: MockKafkaSinkAdapter(),
			Expected: &sink.KafkaSinkConfig{
				Brokers:       "testBrokers",
				TopicName:     "testTopic",
				TargetVersion: "2.7.0",
				MaxRetries:    11,
				ByteLimit:     1000000,
				Compress:      true,
				WaitForAll:    true,
				Idempotent:    true,
				EnableSASL:    true,
				SASLUsername:  "testUsername",
				SASLPassword:  "testPass",
			},
		},
		{
			TestName: "stdout",
			Source: `
data_only_output = true
`,
			Plug: MockStdoutSinkAdapter(),
			Expected: &sink.StdoutSinkConfig{
				DataOnlyOutput: true,
			},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.TestName, func(t *testing.T) {
			assert := assert.New(t)

			decoderOpts := &DecoderOptions{
				Input: parseHclBody(t, tt.Source),
			}
			hclDecoder := &HclDecoder{EvalContext: CreateHclContext()}

			result, err := WithDecoderOptions(decoderOpts)(tt.Plug, hclDecoder)
			assert.Nil(err)
			assert.NotNil(result)

			if !reflect.DeepEqual(result, tt.Expected) {
				t.Errorf("GOT:\n%s\nEXPECTED:\n%s",
					spew.Sdump(result),
					spew.Sdump(tt.Expected))
			}
		})
	}
}

func TestCreateSinkComponentENV(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("SINK_SQS_QUEUE_NAME", "envQueue")
	t.Setenv("SINK_SQS_REGION", "eu-test-2")
	t.Setenv("BAD_SINK_SQS_QUEUE_NAME", "envBadQueue")
	t.Setenv("BAD_SINK_SQS_REGION", "eu-test-2")

	envDecoder := &EnvDecoder{}

	result, err := WithDecoderOptions(&DecoderOptions{})(MockSQSSinkAdapter(), envDecoder)
	assert.Nil(err)
	cfg, ok := result.(*sink.SQSSinkConfig)
	assert.True(ok)
	assert.Equal("envQueue", cfg.QueueName)
	assert.Equal("eu-test-2", cfg.Region)

	result, err = WithDecoderOptions(&DecoderOptions{Prefix: "BAD_"})(MockSQSSinkAdapter(), envDecoder)
	assert.Nil(err)
	cfg, ok = result.(*sink.SQSSinkConfig)
	assert.True(ok)
	assert.Equal("envBadQueue", cfg.QueueName)
}
