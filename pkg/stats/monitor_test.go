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

package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/livekit/screen-recorder/pkg/types"
)

type fakeRecorder struct {
	state   types.State
	elapsed int64
}

func (f *fakeRecorder) State() types.State    { return f.state }
func (f *fakeRecorder) ElapsedSeconds() int64 { return f.elapsed }

func TestMonitor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMonitor(reg, "session")
	require.NoError(t, err)

	m.IncRecording("started")
	m.IncRecording("started")
	m.IncRecording("completed")
	m.IncWebcamFallback()
	m.ObservePersist(types.StreamKindScreen, true, 12)
	m.ObservePersist(types.StreamKindWebcam, false, 3)
	m.SetBuffered(types.StreamKindScreen, 1024)

	require.Equal(t, float64(2), testutil.ToFloat64(m.recordingsCounter.WithLabelValues("started")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.webcamFallbacks))
	require.Equal(t, float64(1), testutil.ToFloat64(m.artifactsCounter.WithLabelValues("webcam", "failure")))
	require.Equal(t, float64(1024), testutil.ToFloat64(m.bufferedBytes.WithLabelValues("screen")))

	r := &fakeRecorder{state: types.StateRecording, elapsed: 7}
	require.NoError(t, m.RegisterRecorder(r))
	count, err := testutil.GatherAndCount(reg, "livekit_screen_recorder_elapsed_seconds", "livekit_screen_recorder_is_recording")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// registering a second monitor on the same registry fails
	_, err = NewMonitor(reg, "session")
	require.Error(t, err)
}

func TestNilMonitor(t *testing.T) {
	var m *Monitor
	m.IncRecording("started")
	m.IncWebcamFallback()
	m.ObservePersist(types.StreamKindScreen, true, 1)
	m.IncUploadCountSuccess("video/webm", 1)
	m.IncUploadCountFailure("video/webm", 1)
	m.IncBackupStorageWrites("video/webm")
	m.SetBuffered(types.StreamKindScreen, 1)
	require.NoError(t, m.RegisterRecorder(&fakeRecorder{}))
}
