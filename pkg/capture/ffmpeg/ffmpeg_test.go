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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

func TestScreenArgs(t *testing.T) {
	source := &capture.Source{
		ID:       "screen:0:0",
		Type:     capture.SourceTypeScreen,
		Geometry: capture.Geometry{Width: 3840, Height: 2160},
	}
	args := strings.Join(ScreenArgs(":0", source, 1920, 1080), " ")
	require.Contains(t, args, "-f x11grab -framerate 30")
	require.Contains(t, args, "-video_size 3840x2160 -i :0+0,0")
	require.Contains(t, args, "-vf scale=1920:1080,format=yuv420p")
	require.Contains(t, args, "-c:v libvpx")
	require.True(t, strings.HasSuffix(args, "-f webm pipe:1"))
}

func TestWebcamArgs(t *testing.T) {
	args := strings.Join(WebcamArgs("/dev/video2"), " ")
	require.Contains(t, args, "-f v4l2 -framerate 30 -video_size 640x480 -i /dev/video2")
	require.Contains(t, args, "scale=640:480")
}

func collect(s capture.Stream) string {
	var sb strings.Builder
	for chunk := range s.Chunks() {
		sb.Write(chunk)
	}
	return sb.String()
}

func TestStreamStop(t *testing.T) {
	var released bool
	s, err := startStream(context.Background(), types.StreamKindScreen, "sh", []string{
		"-c", "trap 'printf end; exit 0' INT; printf start; while true; do sleep 0.05; done",
	}, func() { released = true })
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.Equal(t, "startend", collect(s))
	require.NoError(t, s.Close())
	require.NoError(t, s.Err())
	require.True(t, released)
}

func TestStreamClose(t *testing.T) {
	s, err := startStream(context.Background(), types.StreamKindWebcam, "sh", []string{
		"-c", "trap '' INT; while true; do sleep 0.05; done",
	}, func() {})
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	select {
	case <-s.exited.Watch():
		t.Fatal("process should ignore interrupt")
	case <-time.After(time.Millisecond * 200):
	}

	require.NoError(t, s.Close())
	require.Empty(t, collect(s))
}

func TestStreamStartupFailure(t *testing.T) {
	var released bool
	_, err := startStream(context.Background(), types.StreamKindWebcam, "sh", []string{
		"-c", "echo 'Cannot open video device /dev/video0' >&2; exit 1",
	}, func() { released = true })
	require.Error(t, err)
	require.Contains(t, err.Error(), "Cannot open video device")
	require.True(t, released)
}

func TestStreamUnexpectedExit(t *testing.T) {
	s, err := startStream(context.Background(), types.StreamKindScreen, "sh", []string{
		"-c", "printf data; sleep 0.5; exit 3",
	}, func() {})
	require.NoError(t, err)

	require.Equal(t, "data", collect(s))
	require.Error(t, s.Err())
}

func TestAcquirer(t *testing.T) {
	conf := &config.CaptureConfig{Display: ":0", FFmpegPath: "/nonexistent/ffmpeg", WebcamDevice: "/dev/video0"}
	registry := capture.NewMockAcquirer()
	a := NewAcquirer(conf, &mockRegistry{sources: registry.Sources})

	_, err := a.AcquireScreen(context.Background(), "screen:4:0")
	require.ErrorIs(t, err, errors.ErrSourceUnavailable)
	require.ErrorIs(t, err, errors.ErrSourceNotFound)

	_, err = a.AcquireScreen(context.Background(), "screen:0:0")
	require.ErrorIs(t, err, errors.ErrSourceUnavailable)
	require.Equal(t, 0, a.locks.Held())

	_, err = a.AcquireWebcam(context.Background())
	require.ErrorIs(t, err, errors.ErrWebcamUnavailable)
	require.Equal(t, 0, a.locks.Held())
}

type mockRegistry struct {
	sources []*capture.Source
}

func (r *mockRegistry) ListSources(_ context.Context) ([]*capture.Source, error) {
	return r.sources, nil
}

func (r *mockRegistry) Lookup(_ context.Context, sourceID string) (*capture.Source, error) {
	return capture.FindSource(r.sources, sourceID)
}
