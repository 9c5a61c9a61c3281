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

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"net/http"
	// pprof imported for the side effect of registering its HTTP handlers
	_ "net/http/pprof"

	"github.com/snowplow-devops/collector-relay/cmd"
	"github.com/snowplow-devops/collector-relay/config"
	"github.com/snowplow-devops/collector-relay/pkg/buffer"
	"github.com/snowplow-devops/collector-relay/pkg/collector"
	"github.com/snowplow-devops/collector-relay/pkg/dispatch"
	"github.com/snowplow-devops/collector-relay/pkg/failure"
	"github.com/snowplow-devops/collector-relay/pkg/health"
	"github.com/snowplow-devops/collector-relay/pkg/models"
	"github.com/snowplow-devops/collector-relay/pkg/outage"
	"github.com/snowplow-devops/collector-relay/pkg/shutdown"
	"github.com/snowplow-devops/collector-relay/pkg/warmup"
)

const (
	appVersion   = cmd.AppVersion
	appName      = cmd.AppName
	appUsage     = "Buffers collected events and relays them to supported sinks"
	appCopyright = "(c) 2020-present Snowplow Analytics Ltd. All rights reserved."
)

// RunCli allows running application from cli
func RunCli() {
	cfg, sentryEnabled, err := cmd.Init()
	if err != nil {
		exitWithError(err, sentryEnabled)
	}
	app := cli.NewApp()
	app.Name = appName
	app.Usage = appUsage
	app.Version = appVersion
	app.Copyright = appCopyright
	app.Compiled = time.Now().UTC()
	app.Authors = []cli.Author{
		{
			Name:  "Joshua Beemster",
			Email: "support@snowplow.io",
		},
	}

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "profile, p",
			Usage: "Enable application profiling endpoint on port 8081",
		},
	}

	app.Action = func(c *cli.Context) error {
		profile := c.Bool("profile")
		if profile {
			go func() {
				if err := http.ListenAndServe("localhost:8081", nil); err != nil {
					log.WithError(err).Fatal("failed to start up the profiling server")
				}
			}()
		}
		return RunApp(cfg)
	}

	app.ExitErrHandler = func(context *cli.Context, err error) {
		if err != nil {
			exitWithError(err, sentryEnabled)
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("failed to run cli")
	}
}

// RunApp wires the buffers, dispatch loops and HTTP surface together and
// blocks until a shutdown signal arrives.
func RunApp(cfg *config.Config) error {
	goodSink, err := cfg.GetGoodSink()
	if err != nil {
		return err
	}
	goodSink.Open()

	badSink, err := cfg.GetBadSink()
	if err != nil {
		return err
	}
	badSink.Open()

	tags, err := cfg.GetTags()
	if err != nil {
		return err
	}

	obs, err := cfg.GetObserver(tags)
	if err != nil {
		return err
	}
	obs.Start()

	goodBuffer := buffer.NewEventBuffer(models.DestinationGood, cfg.Data.Buffer)
	badBuffer := buffer.NewEventBuffer(models.DestinationBad, cfg.Data.BadBuffer)

	goodMonitor := outage.NewMonitor(goodSink, cfg.Data.Outage)
	badMonitor := outage.NewMonitor(badSink, cfg.Data.Outage)

	badRowHandler := failure.NewBadRowHandler(cmd.AppName, cmd.AppVersion, badSink.MaxRecordBytes(), badBuffer, obs)

	policy := cfg.GetRetryPolicy()

	goodLoop := dispatch.NewLoop(models.DestinationGood, goodBuffer, goodSink, policy, goodMonitor, badRowHandler, obs)
	badLoop := dispatch.NewLoop(models.DestinationBad, badBuffer, badSink, policy, badMonitor, nil, obs)

	loopCtx, cancelLoops := context.WithCancel(context.Background())
	goodLoop.Start(loopCtx)
	badLoop.Start(loopCtx)

	healthService := health.NewService()
	healthService.RegisterReporter("good", goodMonitor)
	healthService.RegisterReporter("bad", badMonitor)

	relay := collector.New(goodBuffer, badRowHandler, goodSink.MaxRecordBytes(), healthService)

	server := &http.Server{
		Addr:    cfg.Data.ListenAddr,
		Handler: newServeMux(relay, healthService),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start up the server")
		}
	}()

	warmupRunner := warmup.NewRunner(
		warmup.ConfirmedRoundTrip(
			warmup.HTTPRoundTrip(http.DefaultClient, selfEndpoint(cfg.Data.ListenAddr)),
			goodLoop,
			time.Duration(cfg.Data.Warmup.ConfirmTimeoutMs)*time.Millisecond,
		),
		cfg.Data.Warmup,
		healthService.SetReady,
	)
	go func() {
		if err := warmupRunner.Run(loopCtx); err != nil {
			log.WithError(err).Error("Warmup never succeeded; instance will stay in Warming state")
		}
	}()

	// Handle SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Warn("SIGTERM called, cleaning up and closing application ...")

	coordinator := shutdown.NewCoordinator(
		cfg.Data.Shutdown,
		func() {
			relay.CloseIntake()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := server.Shutdown(stopCtx); err != nil {
				log.WithError(err).Warn("HTTP server did not stop cleanly")
			}
		},
		cancelLoops,
		[]shutdown.DrainableLoop{goodLoop, badLoop},
		goodMonitor.Stop,
		badMonitor.Stop,
		goodBuffer.Stop,
		badBuffer.Stop,
		goodSink.Close,
		badSink.Close,
		obs.Stop,
	)

	if clean := coordinator.Shutdown(); !clean {
		return errors.New("forced shutdown: undelivered payloads were lost")
	}
	return nil
}

// newServeMux mounts the ingest and health surfaces
func newServeMux(relay *collector.Collector, healthService *health.Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", relay.Handler())
	mux.Handle("/health", healthService.HealthHandler())
	mux.Handle("/sink-health", healthService.SinkHealthHandler())

	return mux
}

// selfEndpoint builds the URL the warmup loop uses to post synthetic
// payloads back into this instance.
func selfEndpoint(listenAddr string) string {
	if strings.HasPrefix(listenAddr, ":") {
		return fmt.Sprintf("http://127.0.0.1%s/", listenAddr)
	}
	return fmt.Sprintf("http://%s/", listenAddr)
}

// exitWithError will ensure we log the error and leave time for Sentry to flush
func exitWithError(err error, flushSentry bool) {
	log.WithFields(log.Fields{"error": err}).Error(err)
	if flushSentry {
		sentry.Flush(2 * time.Second)
	}
	os.Exit(1)
}
