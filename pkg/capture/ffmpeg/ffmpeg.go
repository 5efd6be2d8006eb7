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

package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/tracer"
	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/capture/x11"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

type SourceRegistry interface {
	ListSources(ctx context.Context) ([]*capture.Source, error)
	Lookup(ctx context.Context, sourceID string) (*capture.Source, error)
}

// Acquirer captures X11 sources and v4l2 cameras with ffmpeg processes encoding to webm on stdout
type Acquirer struct {
	conf     *config.CaptureConfig
	registry SourceRegistry
	locks    *capture.DeviceLocks
}

func NewAcquirer(conf *config.CaptureConfig, registry SourceRegistry) *Acquirer {
	return &Acquirer{
		conf:     conf,
		registry: registry,
		locks:    capture.NewDeviceLocks(),
	}
}

func (a *Acquirer) ListSources(ctx context.Context) ([]*capture.Source, error) {
	return a.registry.ListSources(ctx)
}

func (a *Acquirer) AcquireScreen(ctx context.Context, sourceID string) (capture.Stream, error) {
	ctx, span := tracer.Start(ctx, "ffmpeg.AcquireScreen")
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

	width, height := capture.FitWithin(source.Geometry.Width, source.Geometry.Height, types.ScreenMaxWidth, types.ScreenMaxHeight)
	logger.Debugw("capturing screen", "sourceID", source.ID, "name", source.Name, "width", width, "height", height)

	s, err := startStream(ctx, types.StreamKindScreen, a.conf.FFmpegPath, ScreenArgs(a.conf.Display, source, width, height), release)
	if err != nil {
		span.RecordError(err)
		return nil, errors.ErrSourceUnavailableFor(sourceID, err)
	}
	return s, nil
}

func (a *Acquirer) AcquireWebcam(ctx context.Context) (capture.Stream, error) {
	ctx, span := tracer.Start(ctx, "ffmpeg.AcquireWebcam")
	defer span.End()

	release, err := a.locks.Lock(a.conf.WebcamDevice)
	if err != nil {
		return nil, errors.ErrWebcamUnavailableFor(err)
	}

	s, err := startStream(ctx, types.StreamKindWebcam, a.conf.FFmpegPath, WebcamArgs(a.conf.WebcamDevice), release)
	if err != nil {
		span.RecordError(err)
		return nil, errors.ErrWebcamUnavailableFor(err)
	}
	return s, nil
}

func ScreenArgs(display string, source *capture.Source, width, height int) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-nostdin",
		"-f", "x11grab",
		"-framerate", strconv.Itoa(types.Framerate),
		"-draw_mouse", "1",
	}
	args = append(args, x11.InputArgs(display, source)...)
	return append(args, outputArgs(width, height)...)
}

func WebcamArgs(device string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-nostdin",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(types.Framerate),
		"-video_size", fmt.Sprintf("%dx%d", types.WebcamWidth, types.WebcamHeight),
		"-i", device,
	}
	return append(args, outputArgs(types.WebcamWidth, types.WebcamHeight)...)
}

// order matters, output options follow all inputs
func outputArgs(width, height int) []string {
	return []string{
		"-an",
		"-vf", strings.Join([]string{
			fmt.Sprintf("scale=%d:%d", width, height),
			"format=yuv420p",
		}, ","),
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", fmt.Sprintf("%dk", types.VideoBitrate),
		"-f", "webm",
		"pipe:1",
	}
}
