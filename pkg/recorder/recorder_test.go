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

package recorder

import (
	"context"
	"os"
	"path"
	"testing"
	"time"

	"github.com/linkdata/deadlock"
	"github.com/stretchr/testify/require"

	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/session"
	"github.com/livekit/screen-recorder/pkg/sink"
	"github.com/livekit/screen-recorder/pkg/types"
)

const screenSource = "screen:0:0"

type fakeGateway struct {
	mu       deadlock.Mutex
	payloads map[types.StreamKind][]byte
	fail     map[types.StreamKind]error
	delay    time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payloads: make(map[types.StreamKind][]byte),
		fail:     make(map[types.StreamKind]error),
	}
}

func (g *fakeGateway) Persist(ctx context.Context, sessionID string, kind types.StreamKind, payload []byte) (*sink.Result, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.fail[kind]; err != nil {
		return nil, err
	}
	g.payloads[kind] = payload
	return &sink.Result{
		SessionID: sessionID,
		Kind:      kind,
		Location:  path.Join(sessionID, kind.Filename()),
		Size:      int64(len(payload)),
	}, nil
}

func (g *fakeGateway) payload(kind types.StreamKind) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payloads[kind]
}

func newTestRecorder(acq capture.Acquirer, gw sink.Gateway, opts ...func(*Params)) *Recorder {
	params := Params{
		SessionID: "session",
		Acquirer:  acq,
		Gateway:   gw,
		Timeouts: config.TimeoutConfig{
			Acquire:  time.Second,
			Finalize: time.Second,
			Persist:  time.Second,
		},
	}
	for _, opt := range opts {
		opt(&params)
	}

	r := New(params)
	r.tickInterval = time.Millisecond * 20
	return r
}

func chunks(s ...string) [][]byte {
	res := make([][]byte, 0, len(s))
	for _, c := range s {
		res = append(res, []byte(c))
	}
	return res
}

func TestScreenOnly(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("a", "", "b"), Final: []byte("c")}
	gw := newFakeGateway()
	r := newTestRecorder(acq, gw)

	require.Equal(t, types.StateIdle, r.State())

	started, err := r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)
	require.NoError(t, started.Warning)
	require.Equal(t, []types.StreamKind{types.StreamKindScreen}, started.Kinds)
	require.Equal(t, types.StateRecording, r.State())

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Equal(t, ReasonRequested, res.Reason)
	require.Len(t, res.Artifacts, 1)

	screen := res.Artifact(types.StreamKindScreen)
	require.True(t, screen.Success)
	require.Equal(t, 3, screen.Chunks)
	require.Equal(t, int64(3), screen.Size)
	require.Equal(t, "abc", string(gw.payload(types.StreamKindScreen)))
	require.Nil(t, res.Artifact(types.StreamKindWebcam))

	require.Equal(t, types.StateCompleted, r.State())
	require.Zero(t, acq.Open())
}

func TestScreenAndWebcam(t *testing.T) {
	dir := t.TempDir()
	gw, err := sink.NewFileGateway(&config.Config{OutputDir: dir}, nil)
	require.NoError(t, err)

	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("s1", "s2"), Final: []byte("s3")}
	acq.Webcam = capture.StreamScript{Chunks: chunks("w1"), Final: []byte("w2")}

	sessionID := session.NewID()
	r := newTestRecorder(acq, gw, func(p *Params) { p.SessionID = sessionID })

	started, err := r.Start(context.Background(), screenSource, true)
	require.NoError(t, err)
	require.NoError(t, started.Warning)
	require.Equal(t, []types.StreamKind{types.StreamKindScreen, types.StreamKindWebcam}, started.Kinds)
	require.Equal(t, 2, acq.Open())

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Len(t, res.Artifacts, 2)

	for kind, expected := range map[types.StreamKind]string{
		types.StreamKindScreen: "s1s2s3",
		types.StreamKindWebcam: "w1w2",
	} {
		a := res.Artifact(kind)
		require.NotNil(t, a)
		require.True(t, a.Success)

		b, err := os.ReadFile(path.Join(dir, sessionID, kind.Filename()))
		require.NoError(t, err)
		require.Equal(t, expected, string(b))
		require.Equal(t, path.Join(dir, sessionID, kind.Filename()), a.Location)
	}

	require.Zero(t, acq.Open())
	for _, s := range acq.Streams() {
		require.True(t, s.Released())
		require.Equal(t, 1, s.StopCalls())
	}
}

func TestWebcamFallback(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("a")}
	acq.Webcam = capture.StreamScript{AcquireErr: errors.New("permission denied")}
	gw := newFakeGateway()
	r := newTestRecorder(acq, gw)

	started, err := r.Start(context.Background(), screenSource, true)
	require.NoError(t, err)
	require.ErrorIs(t, started.Warning, errors.ErrWebcamUnavailable)
	require.Equal(t, []types.StreamKind{types.StreamKindScreen}, started.Kinds)
	require.Equal(t, types.StateRecording, r.State())

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)
	require.Equal(t, types.StreamKindScreen, res.Artifacts[0].Kind)
	require.Nil(t, gw.payload(types.StreamKindWebcam))
}

// mislabeledAcquirer hands out a screen stream when asked for the webcam
type mislabeledAcquirer struct {
	*capture.MockAcquirer
}

func (m *mislabeledAcquirer) AcquireWebcam(ctx context.Context) (capture.Stream, error) {
	return m.AcquireScreen(ctx, capture.WindowSourceID(0x3e00004))
}

func TestUnexpectedStreamKind(t *testing.T) {
	acq := &mislabeledAcquirer{MockAcquirer: capture.NewMockAcquirer()}
	acq.Screen = capture.StreamScript{Chunks: chunks("a")}
	gw := newFakeGateway()
	r := newTestRecorder(acq, gw)

	started, err := r.Start(context.Background(), screenSource, true)
	require.NoError(t, err)
	require.ErrorIs(t, started.Warning, errors.ErrWebcamUnavailable)
	require.Equal(t, []types.StreamKind{types.StreamKindScreen}, started.Kinds)
	require.Equal(t, 1, acq.Open())

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)
	require.Equal(t, "a", string(gw.payload(types.StreamKindScreen)))
	require.Zero(t, acq.Open())
}

func TestWebcamAcquireTimeout(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Webcam = capture.StreamScript{AcquireDelay: time.Second * 5}
	r := newTestRecorder(acq, newFakeGateway(), func(p *Params) {
		p.Timeouts.Acquire = time.Millisecond * 50
	})

	started, err := r.Start(context.Background(), screenSource, true)
	require.NoError(t, err)
	require.ErrorIs(t, started.Warning, errors.ErrWebcamUnavailable)
	require.ErrorIs(t, started.Warning, errors.ErrTimeout)

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)
	require.Zero(t, acq.Open())
}

func TestScreenUnavailable(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		acq := capture.NewMockAcquirer()
		acq.Screen = capture.StreamScript{AcquireErr: errors.New("permission denied")}
		r := newTestRecorder(acq, newFakeGateway())

		_, err := r.Start(context.Background(), screenSource, true)
		require.ErrorIs(t, err, errors.ErrSourceUnavailable)
		require.Equal(t, types.StateAborted, r.State())
		require.Zero(t, acq.Open())
		require.Empty(t, acq.Streams())
	})

	t.Run("unknown source", func(t *testing.T) {
		acq := capture.NewMockAcquirer()
		r := newTestRecorder(acq, newFakeGateway())

		_, err := r.Start(context.Background(), "screen:5:0", false)
		require.ErrorIs(t, err, errors.ErrSourceUnavailable)
		require.Equal(t, types.StateAborted, r.State())
	})

	t.Run("timeout", func(t *testing.T) {
		acq := capture.NewMockAcquirer()
		acq.Screen = capture.StreamScript{AcquireDelay: time.Second * 5}
		r := newTestRecorder(acq, newFakeGateway(), func(p *Params) {
			p.Timeouts.Acquire = time.Millisecond * 50
		})

		_, err := r.Start(context.Background(), screenSource, false)
		require.ErrorIs(t, err, errors.ErrSourceUnavailable)
		require.ErrorIs(t, err, errors.ErrTimeout)
		require.Equal(t, types.StateAborted, r.State())
		require.Zero(t, acq.Open())
	})

	t.Run("empty source", func(t *testing.T) {
		r := newTestRecorder(capture.NewMockAcquirer(), newFakeGateway())

		_, err := r.Start(context.Background(), "", false)
		require.ErrorIs(t, err, errors.ErrInvalidInputField)
		require.Equal(t, types.StateIdle, r.State())
	})
}

func TestRestartAfterAbort(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{AcquireErr: errors.New("permission denied")}
	r := newTestRecorder(acq, newFakeGateway())

	_, err := r.Start(context.Background(), screenSource, false)
	require.Error(t, err)
	require.Equal(t, types.StateAborted, r.State())

	acq.Screen = capture.StreamScript{Chunks: chunks("a")}
	_, err = r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)
	require.Equal(t, types.StateRecording, r.State())

	_, err = r.Stop(context.Background())
	require.NoError(t, err)
}

func TestStopNotRecording(t *testing.T) {
	acq := capture.NewMockAcquirer()
	r := newTestRecorder(acq, newFakeGateway())

	_, err := r.Stop(context.Background())
	require.ErrorIs(t, err, errors.ErrNotRecording)
	require.Equal(t, types.StateIdle, r.State())

	_, err = r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)
	_, err = r.Stop(context.Background())
	require.NoError(t, err)

	_, err = r.Stop(context.Background())
	require.ErrorIs(t, err, errors.ErrNotRecording)
	require.Equal(t, types.StateCompleted, r.State())
}

func TestStopAfterAbort(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{AcquireErr: errors.New("permission denied")}
	r := newTestRecorder(acq, newFakeGateway())

	_, err := r.Start(context.Background(), screenSource, false)
	require.ErrorIs(t, err, errors.ErrSourceUnavailable)

	_, err = r.Stop(context.Background())
	require.ErrorIs(t, err, errors.ErrNotRecording)
	require.Equal(t, types.StateAborted, r.State())
}

func TestStopWhileStopping(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("a")}
	gw := newFakeGateway()
	gw.delay = time.Millisecond * 200
	r := newTestRecorder(acq, gw)

	_, err := r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)

	var res *StopResult
	var stopErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, stopErr = r.Stop(context.Background())
	}()
	require.Eventually(t, func() bool {
		return r.State() == types.StateStopping
	}, time.Second, time.Millisecond*5)

	_, err = r.Stop(context.Background())
	require.ErrorIs(t, err, errors.ErrNotRecording)
	require.Equal(t, types.StateStopping, r.State())

	select {
	case <-done:
	case <-time.After(time.Second * 2):
		t.Fatal("stop did not complete")
	}
	require.NoError(t, stopErr)
	require.NoError(t, res.Err())
	require.Len(t, res.Artifacts, 1)
	require.Equal(t, "a", string(gw.payload(types.StreamKindScreen)))
	require.Equal(t, types.StateCompleted, r.State())
}

func TestStopIgnoresCallerCancellation(t *testing.T) {
	dir := t.TempDir()
	gw, err := sink.NewFileGateway(&config.Config{OutputDir: dir}, nil)
	require.NoError(t, err)

	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("a", "b"), Final: []byte("c")}
	r := newTestRecorder(acq, gw)

	_, err = r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.Info().BufferedBytes == 2
	}, time.Second, time.Millisecond*5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Stop(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	screen := res.Artifact(types.StreamKindScreen)
	require.True(t, screen.Success)
	require.Empty(t, screen.Warning)

	b, err := os.ReadFile(path.Join(dir, "session", types.StreamKindScreen.Filename()))
	require.NoError(t, err)
	require.Equal(t, "abc", string(b))
	require.Equal(t, types.StateCompleted, r.State())
	require.Zero(t, acq.Open())
}

func TestAlreadyRecording(t *testing.T) {
	acq := capture.NewMockAcquirer()
	r := newTestRecorder(acq, newFakeGateway())

	started, err := r.Start(context.Background(), screenSource, true)
	require.NoError(t, err)

	_, err = r.Start(context.Background(), screenSource, true)
	require.ErrorIs(t, err, errors.ErrAlreadyRecording)
	require.Equal(t, types.StateRecording, r.State())
	require.Equal(t, 2, acq.Open())
	require.Equal(t, started.RecordingID, r.Info().RecordingID)

	_, err = r.Stop(context.Background())
	require.NoError(t, err)
}

func TestElapsed(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("a"), Interval: time.Millisecond * 10}
	r := newTestRecorder(acq, newFakeGateway())

	require.Zero(t, r.ElapsedSeconds())

	_, err := r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.ElapsedSeconds() >= 3
	}, time.Second*2, time.Millisecond*5)

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.ElapsedSeconds, int64(3))

	frozen := r.ElapsedSeconds()
	time.Sleep(r.tickInterval * 3)
	require.Equal(t, frozen, r.ElapsedSeconds())

	_, err = r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)
	require.Less(t, r.ElapsedSeconds(), frozen)
	_, err = r.Stop(context.Background())
	require.NoError(t, err)
}

func TestPersistenceFailure(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("s")}
	acq.Webcam = capture.StreamScript{Chunks: chunks("w")}
	gw := newFakeGateway()
	gw.fail[types.StreamKindWebcam] = errors.New("disk full")
	r := newTestRecorder(acq, gw)

	_, err := r.Start(context.Background(), screenSource, true)
	require.NoError(t, err)

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.Error(t, res.Err())
	require.Equal(t, types.StateCompleted, r.State())

	screen := res.Artifact(types.StreamKindScreen)
	require.True(t, screen.Success)
	require.Equal(t, "s", string(gw.payload(types.StreamKindScreen)))

	webcam := res.Artifact(types.StreamKindWebcam)
	require.False(t, webcam.Success)
	require.ErrorIs(t, webcam.Err(), errors.ErrPersistenceFailure)
	require.Contains(t, webcam.Error, "disk full")
	require.Zero(t, acq.Open())
}

func TestPersistTimeout(t *testing.T) {
	acq := capture.NewMockAcquirer()
	gw := newFakeGateway()
	gw.delay = time.Second * 5
	r := newTestRecorder(acq, gw, func(p *Params) {
		p.Timeouts.Persist = time.Millisecond * 50
	})

	_, err := r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	screen := res.Artifact(types.StreamKindScreen)
	require.False(t, screen.Success)
	require.ErrorIs(t, screen.Err(), errors.ErrPersistenceFailure)
	require.ErrorIs(t, screen.Err(), errors.ErrTimeout)
	require.Equal(t, types.StateCompleted, r.State())
}

func TestFinalizeTimeout(t *testing.T) {
	acq := capture.NewMockAcquirer()
	acq.Screen = capture.StreamScript{Chunks: chunks("a", "b"), Final: []byte("never"), IgnoreStop: true}
	gw := newFakeGateway()
	r := newTestRecorder(acq, gw, func(p *Params) {
		p.Timeouts.Finalize = time.Millisecond * 50
	})

	_, err := r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.Info().BufferedBytes == 2
	}, time.Second, time.Millisecond*5)

	res, err := r.Stop(context.Background())
	require.NoError(t, err)

	screen := res.Artifact(types.StreamKindScreen)
	require.True(t, screen.Success)
	require.Contains(t, screen.Warning, errors.ErrTimeout.Error())
	require.Equal(t, "ab", string(gw.payload(types.StreamKindScreen)))
	require.Zero(t, acq.Open())
}

func TestAutoStop(t *testing.T) {
	for _, test := range []struct {
		name   string
		script capture.StreamScript
		limits config.SessionLimits
		reason string
	}{
		{
			name:   "max duration",
			script: capture.StreamScript{Chunks: chunks("a"), Interval: time.Millisecond * 10},
			limits: config.SessionLimits{MaxDuration: time.Millisecond * 100},
			reason: ReasonMaxDuration,
		},
		{
			name:   "max buffer size",
			script: capture.StreamScript{Chunks: chunks("ab", "cd", "ef")},
			limits: config.SessionLimits{MaxBufferSize: 3},
			reason: ReasonMaxBufferSize,
		},
		{
			name:   "screen ended",
			script: capture.StreamScript{Chunks: chunks("a"), EndErr: errors.New("display closed")},
			reason: ReasonScreenEnded,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			acq := capture.NewMockAcquirer()
			acq.Screen = test.script
			stopped := make(chan *StopResult, 1)
			r := newTestRecorder(acq, newFakeGateway(), func(p *Params) {
				p.Limits = test.limits
				p.OnStopped = func(res *StopResult) { stopped <- res }
			})

			_, err := r.Start(context.Background(), screenSource, true)
			require.NoError(t, err)

			select {
			case res := <-stopped:
				require.Equal(t, test.reason, res.Reason)
				require.True(t, res.Artifact(types.StreamKindScreen).Success)
				require.Len(t, res.Artifacts, 2)
			case <-time.After(time.Second * 2):
				t.Fatal("recording was not stopped")
			}

			require.Equal(t, types.StateCompleted, r.State())
			require.Zero(t, acq.Open())

			_, err = r.Stop(context.Background())
			require.ErrorIs(t, err, errors.ErrNotRecording)
		})
	}
}

func TestInfo(t *testing.T) {
	acq := capture.NewMockAcquirer()
	r := newTestRecorder(acq, newFakeGateway())

	info := r.Info()
	require.Equal(t, "session", info.SessionID)
	require.Equal(t, types.StateIdle, info.State)
	require.Empty(t, info.RecordingID)

	started, err := r.Start(context.Background(), screenSource, false)
	require.NoError(t, err)

	info = r.Info()
	require.Equal(t, types.StateRecording, info.State)
	require.Equal(t, started.RecordingID, info.RecordingID)
	require.Equal(t, screenSource, info.SourceID)
	require.Equal(t, []types.StreamKind{types.StreamKindScreen}, info.Kinds)

	res, err := r.Stop(context.Background())
	require.NoError(t, err)

	info = r.Info()
	require.Equal(t, types.StateCompleted, info.State)
	require.Empty(t, info.RecordingID)
	require.Equal(t, res, info.LastResult)
}
