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

package testutil

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/snowplow-devops/collector-relay/pkg/models"
)

const charset = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	seededRand *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// GenRandomString can produce a random string of any provided length which is
// useful for testing situations that might have byte limitations
func GenRandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}

// GetTestPayloads will return an array of payloads ready to be used for
// testing sinks and buffers
func GetTestPayloads(count int, body string) []*models.Payload {
	var payloads []*models.Payload
	for i := 0; i < count; i++ {
		payloads = append(payloads, &models.Payload{
			Data:         []byte(body),
			PartitionKey: uuid.NewString(),
			Destination:  models.DestinationGood,
			TimeCreated:  time.Now().UTC(),
		})
	}
	return payloads
}

// GetTestBatch wraps GetTestPayloads into a sealed batch for sink tests
func GetTestBatch(count int, body string) *models.Batch {
	batch := models.NewBatch(models.DestinationGood)
	for _, p := range GetTestPayloads(count, body) {
		batch.Append(p)
	}
	batch.Seal()
	return batch
}
