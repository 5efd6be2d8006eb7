// Copyright 2025 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/recorder"
	"github.com/livekit/screen-recorder/pkg/service"
	"github.com/livekit/screen-recorder/pkg/session"
	"github.com/livekit/screen-recorder/version"
)

func main() {
	cmd := &cli.Command{
		Name:        "screen-recorder",
		Usage:       "LiveKit Screen Recorder",
		Version:     version.Version,
		Description: "records a screen or window, and optionally the webcam, into per-session webm files",
		Commands: []*cli.Command{
			{
				Name:   "sources",
				Usage:  "lists capturable screens and windows",
				Action: listSources,
			},
			{
				Name:  "record",
				Usage: "records until interrupted, or until the duration or a session limit is reached",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "source id, as listed by sources",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "webcam",
						Usage: "also record the webcam",
					},
					&cli.DurationFlag{
						Name:  "duration",
						Usage: "stop after this long",
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "session id, generated if empty",
					},
				},
				Action: runRecord,
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Screen Recorder yaml config file",
				Sources: cli.EnvVars("RECORDER_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "Screen Recorder yaml config body",
				Sources: cli.EnvVars("RECORDER_CONFIG_BODY"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Command) (*config.Config, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" && configFile != "" {
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}

	return config.NewConfig(configBody)
}

func listSources(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	if err = conf.InitLogger(); err != nil {
		return err
	}

	acquirer, err := service.NewAcquirer(&conf.Capture)
	if err != nil {
		return err
	}
	sources, err := acquirer.ListSources(ctx)
	if err != nil {
		return err
	}

	return printJSON(sources)
}

func runRecord(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	sessionID := c.String("session")
	if sessionID == "" {
		sessionID = session.NewID()
	}
	if err = conf.InitLogger("sessionID", sessionID); err != nil {
		return err
	}

	svc, err := service.NewService(conf, sessionID)
	if err != nil {
		return err
	}

	if conf.HealthPort != 0 {
		go func() {
			_ = http.ListenAndServe(fmt.Sprintf(":%d", conf.HealthPort), newHealthRouter(svc))
		}()
	}
	if conf.PrometheusPort != 0 {
		go func() {
			_ = http.ListenAndServe(fmt.Sprintf(":%d", conf.PrometheusPort), svc.PromHandler())
		}()
	}
	svc.StartDebugHandlers()

	started, err := svc.StartRecording(ctx, c.String("source"), c.Bool("webcam"))
	if err != nil {
		return err
	}
	if started.Warning != nil {
		fmt.Println("warning:", started.Warning)
	}
	logger.Infow("recording", "recordingID", started.RecordingID, "kinds", started.Kinds)

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var timeout <-chan time.Time
	if d := c.Duration("duration"); d > 0 {
		timeout = time.After(d)
	}

	var res *recorder.StopResult
	select {
	case sig := <-stopChan:
		logger.Infow("exit requested, stopping recording", "signal", sig)
	case <-timeout:
		logger.Infow("duration reached, stopping recording")
	case res = <-svc.Stopped():
	}

	if res == nil {
		res, err = svc.StopRecording(ctx)
		if errors.Is(err, errors.ErrNotRecording) {
			// stopped by a session limit in the meantime
			res = <-svc.Stopped()
		} else if err != nil {
			return err
		}
	}
	svc.Shutdown(ctx)

	if err = printJSON(res); err != nil {
		return err
	}
	return res.Err()
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
