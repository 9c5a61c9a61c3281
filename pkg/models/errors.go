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

package models

import (
	"errors"
	"fmt"
)

// RetryableError wraps a transient sink failure: throttling, network
// errors, or the backend not existing yet. The dispatch loop retries
// these under the backoff policy.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string {
	return e.Err.Error()
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

// FatalError wraps a failure the sink will never recover from for this
// exact batch. These are not retried; the batch is abandoned and its
// contents rewritten as bad rows.
type FatalError struct {
	Err error
}

func (e FatalError) Error() string {
	return e.Err.Error()
}

func (e FatalError) Unwrap() error {
	return e.Err
}

// BufferOverflowError reports that the pending-batch memory ceiling for a
// destination was exceeded while its sink was unreachable. This is an
// operator-actionable condition, surfaced distinctly from ordinary
// unhealthy status.
type BufferOverflowError struct {
	Destination  Destination
	PendingBytes int64
	CeilingBytes int64
}

func (e BufferOverflowError) Error() string {
	return fmt.Sprintf(
		"pending batches for destination '%s' exceed memory ceiling (%d > %d bytes)",
		e.Destination,
		e.PendingBytes,
		e.CeilingBytes,
	)
}

// IsRetryable reports whether any error in the chain is a RetryableError
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}

// IsFatal reports whether any error in the chain is a FatalError
func IsFatal(err error) bool {
	var fe FatalError
	return errors.As(err, &fe)
}

// IsBufferOverflow reports whether any error in the chain is a BufferOverflowError
func IsBufferOverflow(err error) bool {
	var oe BufferOverflowError
	return errors.As(err, &oe)
}
