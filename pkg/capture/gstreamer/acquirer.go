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

package gstreamer

import (
	"context"
	"fmt"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/tracer"
	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
)

type SourceRegistry interface {
	ListSources(ctx context.Context) ([]*capture.Source, error)
	Lookup(ctx context.Context, sourceID string) (*capture.Source, error)
}

// Acquirer captures X11 sources with ximagesrc and cameras with v4l2src, encoding vp8 into webm
type Acquirer struct {
	conf     *config.CaptureConfig
	registry SourceRegistry
	locks    *capture.DeviceLocks

	started core.Fuse
	loop    *glib.MainLoop
}

func NewAcquirer(conf *config.CaptureConfig, registry SourceRegistry) *Acquirer {
	return &Acquirer{
		conf:     conf,
		registry: registry,
		locks:    capture.NewDeviceLocks(),
	}
}

// bus watches are dispatched from the default main context
func (a *Acquirer) init(ctx context.Context) {
	a.started.Once(func() {
		_, span := tracer.Start(ctx, "gst.Init")
		defer span.End()

		gst.Init(nil)
		a.loop = glib.NewMainLoop(glib.MainContextDefault(), false)
		go a.loop.Run()
	})
}

func (a *Acquirer) ListSources(ctx context.Context) ([]*capture.Source, error) {
	return a.registry.ListSources(ctx)
}

func (a *Acquirer) AcquireScreen(ctx context.Context, sourceID string) (capture.Stream, error) {
	ctx, span := tracer.Start(ctx, "gstreamer.AcquireScreen")
	defer span.End()

	source, err := a.registry.Lookup(ctx, sourceID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.ErrSourceUnavailableFor(sourceID, err)
	}

	release, err := a.locks.Lock(source.ID)
	if err != nil {
		return nil, errors.ErrSourceUnavailableFor(sourceID, err)
	}

	s, err := a.start(ctx, screenSettings(a.conf.Display, source), release)
	if err != nil {
		span.RecordError(err)
		return nil, errors.ErrSourceUnavailableFor(sourceID, err)
	}
	return s, nil
}

func (a *Acquirer) AcquireWebcam(ctx context.Context) (capture.Stream, error) {
	ctx, span := tracer.Start(ctx, "gstreamer.AcquireWebcam")
	defer span.End()

	release, err := a.locks.Lock(a.conf.WebcamDevice)
	if err != nil {
		return nil, errors.ErrWebcamUnavailableFor(err)
	}

	s, err := a.start(ctx, webcamSettings(a.conf.WebcamDevice), release)
	if err != nil {
		span.RecordError(err)
		return nil, errors.ErrWebcamUnavailableFor(err)
	}
	return s, nil
}

func (a *Acquirer) start(ctx context.Context, settings *captureSettings, release func()) (*stream, error) {
	a.init(ctx)

	pipeline, sink, err := buildPipeline(settings)
	if err != nil {
		release()
		return nil, fmt.Errorf("could not build %s pipeline: %w", settings.kind, err)
	}

	s := newStream(settings.kind, pipeline, sink, release)
	logger.Debugw("starting pipeline", "kind", settings.kind, "width", settings.width, "height", settings.height)
	if err = pipeline.SetState(gst.StatePlaying); err != nil {
		_ = s.Close()
		return nil, err
	}

	select {
	case <-s.playing.Watch():
		return s, nil
	case <-s.ended.Watch():
		if err = s.Err(); err == nil {
			err = errors.ErrStreamClosed
		}
		_ = s.Close()
		return nil, err
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err())
	}
}
