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
	"github.com/pkg/errors"

	"github.com/snowplow-devops/collector-relay/pkg/sink"
)

// Mocks in this file decode sink configurations without building clients, so
// config decoding can be tested against backends that need live credentials.

// MockStdoutSinkAdapter mocks a stdout sink adapter to return a stdout config.
func MockStdoutSinkAdapter() sink.StdoutSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*sink.StdoutSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected StdoutSinkConfig")
		}

		return cfg, nil
	}
}

// MockKinesisSinkAdapter mocks a Kinesis sink adapter to return a Kinesis config.
func MockKinesisSinkAdapter() sink.KinesisSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*sink.KinesisSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected KinesisSinkConfig")
		}

		return cfg, nil
	}
}

// MockSQSSinkAdapter mocks an SQS sink adapter to return an SQS config.
func MockSQSSinkAdapter() sink.SQSSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*sink.SQSSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected SQSSinkConfig")
		}

		return cfg, nil
	}
}

// MockPubSubSinkAdapter mocks a PubSub sink adapter to return a PubSub config.
func MockPubSubSinkAdapter() sink.PubSubSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*sink.PubSubSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected PubSubSinkConfig")
		}

		return cfg, nil
	}
}

// MockKafkaSinkAdapter mocks a Kafka sink adapter to return a Kafka config.
func MockKafkaSinkAdapter() sink.KafkaSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*sink.KafkaSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected KafkaSinkConfig")
		}

		return cfg, nil
	}
}
