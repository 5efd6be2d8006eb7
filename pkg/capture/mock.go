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

package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

// StreamScript controls the behavior of a mock stream
type StreamScript struct {
	Chunks   [][]byte      // delivered in order after acquisition
	Interval time.Duration // if set, Chunks repeat on this interval until stopped
	Final    []byte        // flushed on Stop
	EndErr   error         // if set, the stream ends with this error once Chunks are delivered

	AcquireErr   error         // acquisition fails with this error
	AcquireDelay time.Duration // acquisition waits this long, or until the context is done
	IgnoreStop   bool          // the stream never flushes, only Close ends it
}

// MockAcquirer serves scripted streams without capture hardware
type MockAcquirer struct {
	Sources []*Source
	Screen  StreamScript
	Webcam  StreamScript

	locks   *DeviceLocks
	open    atomic.Int32
	mu      deadlock.Mutex
	streams []*MockStream
}

func NewMockAcquirer() *MockAcquirer {
	return &MockAcquirer{
		Sources: []*Source{{
			ID:       ScreenSourceID(0),
			Name:     "Screen 1",
			Type:     SourceTypeScreen,
			Geometry: Geometry{Width: 2560, Height: 1440},
		}, {
			ID:       WindowSourceID(0x3e00004),
			Name:     "Terminal",
			Type:     SourceTypeWindow,
			Geometry: Geometry{X: 100, Y: 100, Width: 800, Height: 600},
			WindowID: 0x3e00004,
		}},
		locks: NewDeviceLocks(),
	}
}

func (m *MockAcquirer) ListSources(_ context.Context) ([]*Source, error) {
	return m.Sources, nil
}

func (m *MockAcquirer) AcquireScreen(ctx context.Context, sourceID string) (Stream, error) {
	source, err := FindSource(m.Sources, sourceID)
	if err != nil {
		return nil, errors.ErrSourceUnavailableFor(sourceID, err)
	}
	s, err := m.acquire(ctx, types.StreamKindScreen, source.ID, m.Screen)
	if err != nil {
		return nil, errors.ErrSourceUnavailableFor(sourceID, err)
	}
	return s, nil
}

func (m *MockAcquirer) AcquireWebcam(ctx context.Context) (Stream, error) {
	s, err := m.acquire(ctx, types.StreamKindWebcam, "webcam", m.Webcam)
	if err != nil {
		return nil, errors.ErrWebcamUnavailableFor(err)
	}
	return s, nil
}

func (m *MockAcquirer) acquire(ctx context.Context, kind types.StreamKind, device string, script StreamScript) (*MockStream, error) {
	if script.AcquireDelay > 0 {
		select {
		case <-time.After(script.AcquireDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err())
		}
	}
	if script.AcquireErr != nil {
		return nil, script.AcquireErr
	}

	release, err := m.locks.Lock(device)
	if err != nil {
		return nil, err
	}

	m.open.Inc()
	s := newMockStream(kind, script, func() {
		release()
		m.open.Dec()
	})

	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()

	go s.run()
	return s, nil
}

// Open returns the number of streams still holding a device
func (m *MockAcquirer) Open() int {
	return int(m.open.Load())
}

func (m *MockAcquirer) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

type MockStream struct {
	kind    types.StreamKind
	script  StreamScript
	chunks  chan []byte
	release func()

	stop   core.Fuse
	closed core.Fuse
	done   core.Fuse

	stopCalls atomic.Int32
	err       atomic.Error
}

func newMockStream(kind types.StreamKind, script StreamScript, release func()) *MockStream {
	return &MockStream{
		kind:    kind,
		script:  script,
		chunks:  make(chan []byte),
		release: release,
	}
}

func (s *MockStream) run() {
	defer func() {
		close(s.chunks)
		s.release()
		s.done.Break()
	}()

	stop := s.stop.Watch()
	if s.script.IgnoreStop {
		stop = nil
	}

	for {
		for _, chunk := range s.script.Chunks {
			if !s.send(chunk) {
				return
			}
		}

		if s.script.EndErr != nil {
			s.err.Store(s.script.EndErr)
			return
		}
		if s.script.Interval <= 0 {
			break
		}

		select {
		case <-time.After(s.script.Interval):
		case <-stop:
			s.flush()
			return
		case <-s.closed.Watch():
			return
		}
	}

	select {
	case <-stop:
		s.flush()
	case <-s.closed.Watch():
	}
}

func (s *MockStream) flush() {
	if s.script.Final != nil {
		s.send(s.script.Final)
	}
	logger.Debugw("mock stream flushed", "kind", s.kind)
}

func (s *MockStream) send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.closed.Watch():
		return false
	}
}

func (s *MockStream) Kind() types.StreamKind {
	return s.kind
}

func (s *MockStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *MockStream) Stop() error {
	s.stopCalls.Inc()
	s.stop.Break()
	return nil
}

func (s *MockStream) Close() error {
	s.closed.Break()
	<-s.done.Watch()
	return nil
}

func (s *MockStream) Err() error {
	return s.err.Load()
}

func (s *MockStream) Released() bool {
	return s.done.IsBroken()
}

func (s *MockStream) StopCalls() int {
	return int(s.stopCalls.Load())
}
