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

package warmup

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config configures the startup warmup loop
type Config struct {
	Enabled          bool `hcl:"enabled,optional" env:"WARMUP_ENABLED"`
	MaxAttempts      int  `hcl:"max_attempts,optional" env:"WARMUP_MAX_ATTEMPTS"`
	DelayMs          int  `hcl:"delay_ms,optional" env:"WARMUP_DELAY_MS"`
	ConfirmTimeoutMs int  `hcl:"confirm_timeout_ms,optional" env:"WARMUP_CONFIRM_TIMEOUT_MS"`
}

// RoundTripper performs one warmup round trip: accept a synthetic payload
// and see it through to a successful flush
type RoundTripper func(ctx context.Context) error

// DeliveryWatcher reports completed flushes of the destination the warmup
// payloads are buffered into
type DeliveryWatcher interface {
	Delivered() <-chan struct{}
}

// Runner drives the round trip under retry until it succeeds, then
// invokes onReady. The process stays in the Warming state until then.
type Runner struct {
	roundTrip RoundTripper
	cfg       *Config
	onReady   func()

	log *log.Entry
}

// NewRunner creates a warmup runner
func NewRunner(roundTrip RoundTripper, cfg *Config, onReady func()) *Runner {
	return &Runner{
		roundTrip: roundTrip,
		cfg:       cfg,
		onReady:   onReady,
		log:       log.WithFields(log.Fields{"name": "Warmup"}),
	}
}

// Run blocks until a round trip succeeds or the attempt budget runs out.
// When disabled it marks the process ready immediately.
func (r *Runner) Run(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("Warmup disabled, marking ready")
		r.onReady()
		return nil
	}

	delay := time.Duration(r.cfg.DelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	r.log.Info("Starting warmup ...")

	err := retry.Do(
		func() error {
			return r.roundTrip(ctx)
		},
		retry.Context(ctx),
		retry.Delay(delay),
		retry.Attempts(uint(r.cfg.MaxAttempts)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			r.log.Warnf("Warmup round trip failed. Retry counter: %d, error: %s\n", attempt+1, err)
		}),
	)
	if err != nil {
		return errors.Wrap(err, "Warmup never completed a round trip")
	}

	r.log.Info("Warmup complete, marking ready")
	r.onReady()
	return nil
}

// ConfirmedRoundTrip extends a round trip so it only succeeds once the
// buffered payload's destination completes a flush: post the payload, then
// wait for a delivery signal. A 2xx from the ingest endpoint alone proves
// the payload was accepted and buffered, not that the sink can take it.
func ConfirmedRoundTrip(post RoundTripper, watcher DeliveryWatcher, confirmTimeout time.Duration) RoundTripper {
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Second
	}

	return func(ctx context.Context) error {
		// Discard any flush that happened before this attempt's payload
		// was buffered
		select {
		case <-watcher.Delivered():
		default:
		}

		if err := post(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(confirmTimeout)
		defer timer.Stop()

		select {
		case <-watcher.Delivered():
			return nil
		case <-timer.C:
			return fmt.Errorf("no flush observed within %v of accepting the warmup payload", confirmTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HTTPRoundTrip builds a round trip that posts a synthetic payload to the
// local ingest endpoint and requires a 2xx answer
func HTTPRoundTrip(client *http.Client, endpoint string) RoundTripper {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString("warmup"))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "text/plain")

		res, err := client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return fmt.Errorf("warmup request answered %d", res.StatusCode)
		}
		return nil
	}
}
