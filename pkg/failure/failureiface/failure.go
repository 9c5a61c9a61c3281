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

package failureiface

import (
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// Failure describes the interface for converting payloads that can no
// longer be delivered into bad rows on the bad path.
//
// This can be for:
// 1. Oversized payloads
// 2. Payloads the backend refused to accept
// 3. Payloads from batches the dispatcher abandoned
type Failure interface {
	WriteOversized(maximumAllowedSizeBytes int, payloads []*models.Payload) error
	WriteRejected(err error, payloads []*models.Payload) error
	WriteAbandoned(err error, payloads []*models.Payload) error
}
