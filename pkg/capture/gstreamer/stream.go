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
	"regexp"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

const chunkBuffer = 64

type stream struct {
	kind      types.StreamKind
	pipeline  *gst.Pipeline
	sink      *app.Sink
	release   func()
	logger    logger.Logger
	gstLogger *zap.SugaredLogger

	mu     deadlock.Mutex
	chunks chan []byte

	playing  core.Fuse
	stopping core.Fuse
	ended    core.Fuse // no more chunks
	closing  core.Fuse // senders give up
	closed   core.Fuse // pipeline torn down

	err atomic.Error
}

func newStream(kind types.StreamKind, pipeline *gst.Pipeline, sink *app.Sink, release func()) *stream {
	s := &stream{
		kind:      kind,
		pipeline:  pipeline,
		sink:      sink,
		release:   release,
		logger:    logger.GetLogger().WithValues("kind", kind),
		gstLogger: newGstLogger(kind),
		chunks:    make(chan []byte, chunkBuffer),
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		EOSFunc:       func(_ *app.Sink) { s.end() },
		NewSampleFunc: func(_ *app.Sink) gst.FlowReturn { return s.pullSample() },
	})
	pipeline.GetPipelineBus().AddWatch(s.messageWatch)

	return s
}

func (s *stream) pullSample() gst.FlowReturn {
	sample := s.sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	data := buffer.Bytes()
	chunk := make([]byte, len(data))
	copy(chunk, data)

	if !s.send(chunk) {
		return gst.FlowFlushing
	}
	return gst.FlowOK
}

func (s *stream) send(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended.IsBroken() {
		return false
	}
	select {
	case s.chunks <- chunk:
		return true
	case <-s.closing.Watch():
		return false
	}
}

// end closes the chunk channel once
func (s *stream) end() {
	s.ended.Once(func() {
		s.mu.Lock()
		close(s.chunks)
		s.mu.Unlock()
	})
}

func (s *stream) messageWatch(msg *gst.Message) bool {
	switch msg.Type() {
	case gst.MessageEOS:
		s.logger.Debugw("EOS received, stopping pipeline")
		s.end()
		s.teardown()
		return false

	case gst.MessageError:
		gErr := msg.ParseError()
		element, message := parseDebugInfo(gErr.DebugString())
		err := errors.New(gErr.Error())
		s.logger.Errorw("pipeline error", err, "element", element, "message", message)
		if !s.stopping.IsBroken() {
			s.err.Store(err)
		}
		s.end()
		s.teardown()
		return false

	case gst.MessageStateChanged:
		if s.playing.IsBroken() || msg.Source() != string(s.kind) {
			return true
		}
		_, newState := msg.ParseStateChanged()
		if newState == gst.StatePlaying {
			s.logger.Debugw("pipeline playing")
			s.playing.Break()
		}

	default:
		s.gstLogger.Debug(msg.String())
	}

	return true
}

func newGstLogger(kind types.StreamKind) *zap.SugaredLogger {
	if zl, ok := logger.GetLogger().(logger.ZapLogger); ok {
		return zl.ToZap().WithOptions(zap.WithCaller(false)).With("kind", kind)
	}
	return zap.NewNop().Sugar()
}

func (s *stream) teardown() {
	s.closing.Break()
	s.closed.Once(func() {
		_ = s.pipeline.BlockSetState(gst.StateNull)
		s.release()
		s.logger.Debugw("pipeline stopped")
	})
}

func (s *stream) Kind() types.StreamKind {
	return s.kind
}

func (s *stream) Chunks() <-chan []byte {
	return s.chunks
}

// Stop sends EOS so webmmux writes its final cluster
func (s *stream) Stop() error {
	s.stopping.Once(func() {
		if s.closed.IsBroken() {
			return
		}
		s.logger.Debugw("sending EOS to pipeline")
		s.pipeline.SendEvent(gst.NewEOSEvent())
	})
	return nil
}

func (s *stream) Close() error {
	s.teardown()
	s.end()
	return nil
}

func (s *stream) Err() error {
	return s.err.Load()
}

// Debug info comes in the following format:
// file.c(line): method_name (): /GstPipeline:pipeline/GstElement:element_name:\nError message
var debugRegExp = regexp.MustCompile(`(?s)GstPipeline:[^/]*/(.*?):([^:/\n]*):\n(.*)$`)

func parseDebugInfo(debug string) (element, message string) {
	match := debugRegExp.FindStringSubmatch(debug)
	if match == nil {
		return "", debug
	}
	return match[2], match[3]
}
