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

package service

import (
	"context"
	"encoding/json"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/tracer"
	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/capture/ffmpeg"
	"github.com/livekit/screen-recorder/pkg/capture/gstreamer"
	"github.com/livekit/screen-recorder/pkg/capture/x11"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/display"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/recorder"
	"github.com/livekit/screen-recorder/pkg/session"
	"github.com/livekit/screen-recorder/pkg/sink"
	"github.com/livekit/screen-recorder/pkg/stats"
	"github.com/livekit/screen-recorder/pkg/types"
)

// Service is the control surface of one recording session
type Service struct {
	conf     *config.Config
	acquirer capture.Acquirer
	recorder *recorder.Recorder
	registry *prometheus.Registry
	monitor  *stats.Monitor
	cpu      *stats.CPUMonitor
	display  *display.Display

	stopped  chan *recorder.StopResult
	shutdown core.Fuse
}

func NewService(conf *config.Config, sessionID string) (*Service, error) {
	acquirer, err := NewAcquirer(&conf.Capture)
	if err != nil {
		return nil, err
	}

	var d *display.Display
	if conf.Capture.VirtualDisplay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeouts.Acquire)
		d, err = display.Launch(ctx, conf.Capture.VirtualDisplay, conf.Capture.Display)
		cancel()
		if err != nil {
			return nil, err
		}
	}

	s, err := NewServiceWithAcquirer(conf, sessionID, acquirer)
	if err != nil {
		if d != nil {
			_ = d.Close()
		}
		return nil, err
	}
	s.display = d
	return s, nil
}

func NewServiceWithAcquirer(conf *config.Config, sessionID string, acquirer capture.Acquirer) (*Service, error) {
	if sessionID == "" {
		sessionID = session.NewID()
	}

	registry := prometheus.NewRegistry()
	monitor, err := stats.NewMonitor(registry, sessionID)
	if err != nil {
		return nil, err
	}
	cpu, err := stats.NewCPUMonitor(monitor)
	if err != nil {
		return nil, err
	}
	gateway, err := sink.NewFileGateway(conf, monitor)
	if err != nil {
		return nil, err
	}

	s := &Service{
		conf:     conf,
		acquirer: acquirer,
		registry: registry,
		monitor:  monitor,
		cpu:      cpu,
		stopped:  make(chan *recorder.StopResult, 1),
	}
	s.recorder = recorder.New(recorder.Params{
		SessionID: sessionID,
		Acquirer:  acquirer,
		Gateway:   gateway,
		Monitor:   monitor,
		Timeouts:  conf.Timeouts,
		Limits:    conf.SessionLimits,
		OnStopped: s.onStopped,
	})
	if err = monitor.RegisterRecorder(s.recorder); err != nil {
		return nil, err
	}

	cpu.Start()
	logger.Infow("session ready",
		"sessionID", sessionID,
		"backend", conf.Capture.Backend,
		"outputDir", conf.OutputDir,
		"storage", conf.StorageConfig,
	)
	return s, nil
}

// NewAcquirer returns the capture backend named by the config
func NewAcquirer(conf *config.CaptureConfig) (capture.Acquirer, error) {
	switch conf.Backend {
	case config.BackendGStreamer:
		return gstreamer.NewAcquirer(conf, x11.NewRegistry(conf)), nil
	case config.BackendFFmpeg:
		return ffmpeg.NewAcquirer(conf, x11.NewRegistry(conf)), nil
	case config.BackendMock:
		return capture.NewMockAcquirer(), nil
	default:
		return nil, errors.ErrInvalidInput("capture.backend")
	}
}

func (s *Service) SessionID() string {
	return s.recorder.Info().SessionID
}

func (s *Service) ListSources(ctx context.Context) ([]*capture.Source, error) {
	ctx, span := tracer.Start(ctx, "Service.ListSources")
	defer span.End()

	sources, err := s.acquirer.ListSources(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sources, nil
}

func (s *Service) StartRecording(ctx context.Context, sourceID string, webcam bool) (*recorder.StartResult, error) {
	if s.shutdown.IsBroken() {
		return nil, errors.ErrShuttingDown
	}

	res, err := s.recorder.Start(ctx, sourceID, webcam)
	if err != nil {
		return nil, err
	}
	s.cpu.Reset()
	return res, nil
}

func (s *Service) StopRecording(ctx context.Context) (*recorder.StopResult, error) {
	res, err := s.recorder.Stop(ctx)
	if err != nil {
		return nil, err
	}
	s.logResult(res)
	return res, nil
}

func (s *Service) onStopped(res *recorder.StopResult) {
	s.logResult(res)
	select {
	case s.stopped <- res:
	default:
	}
}

// Stopped delivers recordings stopped by a session limit or a lost screen source
func (s *Service) Stopped() <-chan *recorder.StopResult {
	return s.stopped
}

func (s *Service) GetElapsedSeconds() int64 {
	return s.recorder.ElapsedSeconds()
}

func (s *Service) GetState() types.State {
	return s.recorder.State()
}

func (s *Service) Info() *recorder.Info {
	return s.recorder.Info()
}

func (s *Service) Status() ([]byte, error) {
	status := map[string]interface{}{
		"session": s.recorder.Info(),
		"cpuLoad": s.cpu.Load(),
	}
	return json.Marshal(status)
}

func (s *Service) logResult(res *recorder.StopResult) {
	values := []interface{}{
		"sessionID", res.SessionID,
		"recordingID", res.RecordingID,
		"reason", res.Reason,
		"elapsed", res.ElapsedSeconds,
		"cpu", s.cpu.Stats(),
	}
	for _, a := range res.Artifacts {
		values = append(values, string(a.Kind), a)
	}

	if err := res.Err(); err != nil {
		logger.Warnw("recording finished with errors", err, values...)
		return
	}
	logger.Infow("recording finished", values...)
}

// Shutdown stops any active recording. No new recordings are accepted afterwards.
func (s *Service) Shutdown(ctx context.Context) {
	s.shutdown.Once(func() {
		if s.recorder.State() == types.StateRecording {
			logger.Infow("stopping recording before shutdown")
			if _, err := s.StopRecording(ctx); err != nil && !errors.Is(err, errors.ErrNotRecording) {
				logger.Errorw("failed to stop recording", err)
			}
		}
		s.cpu.Close()
		if s.display != nil {
			if err := s.display.Close(); err != nil {
				logger.Warnw("failed to close display", err)
			}
		}
	})
}

func (s *Service) Done() <-chan struct{} {
	return s.shutdown.Watch()
}
