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

package badrows

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewGenericError(t *testing.T) {
	assert := assert.New(t)

	timeNow := time.Now()

	ge, err := NewGenericError(
		&GenericErrorInput{
			ProcessorArtifact: "collector-relay",
			ProcessorVersion:  "0.1.0",
			Payload:           []byte("Hello World!"),
			FailureTimestamp:  timeNow,
			FailureErrors:     []string{"retry budget exhausted", "stream unreachable"},
		},
		262144,
	)
	assert.Nil(err)
	assert.NotNil(ge)

	compact, err := ge.Compact()
	assert.Nil(err)
	assert.NotNil(compact)

	var decoded map[string]interface{}
	assert.Nil(json.Unmarshal([]byte(compact), &decoded))
	assert.Equal(genericErrorSchema, decoded["schema"])

	data := decoded["data"].(map[string]interface{})
	assert.Equal("Hello World!", data["payload"])

	failure := data["failure"].(map[string]interface{})
	errs := failure["errors"].([]interface{})
	assert.Equal(2, len(errs))
	assert.Equal("retry budget exhausted", errs[0])
	assert.Equal(timeNow.UTC().Format("2006-01-02T15:04:05Z07:00"), failure["timestamp"])
}

func TestNewGenericError_NilErrors(t *testing.T) {
	assert := assert.New(t)

	ge, err := NewGenericError(
		&GenericErrorInput{
			ProcessorArtifact: "collector-relay",
			ProcessorVersion:  "0.1.0",
			Payload:           []byte("Hello World!"),
			FailureTimestamp:  time.Now(),
			FailureErrors:     nil,
		},
		262144,
	)
	assert.Nil(err)
	assert.NotNil(ge)

	compact, err := ge.Compact()
	assert.Nil(err)

	var decoded map[string]interface{}
	assert.Nil(json.Unmarshal([]byte(compact), &decoded))

	data := decoded["data"].(map[string]interface{})
	failure := data["failure"].(map[string]interface{})
	errs := failure["errors"].([]interface{})
	assert.Equal(0, len(errs))
}
