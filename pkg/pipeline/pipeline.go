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

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

// time allowed for a stream to drain after being force closed
const closeGracePeriod = time.Second

type Options struct {
	Logger logger.Logger

	// OnChunk is called after each accepted chunk with its size
	OnChunk func(kind types.StreamKind, size int)
	// OnEnded is called if the stream ends on its own while recording
	OnEnded func(kind types.StreamKind, err error)
}

// Artifact is the finalized output of one pipeline
type Artifact struct {
	Kind     types.StreamKind
	Payload  []byte
	Chunks   int
	Duration time.Duration

	// set if the stream failed or had to be force closed. Payload holds everything captured before.
	Err error
}

// Pipeline is one capture, buffer and finalize chain for a single stream kind
type Pipeline struct {
	kind   types.StreamKind
	stream capture.Stream
	opts   Options
	logger logger.Logger

	mu        deadlock.Mutex
	state     types.PipelineState
	chunks    [][]byte
	startedAt time.Time
	endedAt   time.Time
	artifact  *Artifact
	stopping  bool

	size      atomic.Int64
	drained   core.Fuse
	finalized core.Fuse
}

func New(kind types.StreamKind, stream capture.Stream, opts *Options) *Pipeline {
	p := &Pipeline{
		kind:   kind,
		stream: stream,
		state:  types.PipelineStateIdle,
	}
	if opts != nil {
		p.opts = *opts
	}
	if p.opts.Logger != nil {
		p.logger = p.opts.Logger.WithValues("kind", kind)
	} else {
		p.logger = logger.GetLogger().WithValues("kind", kind)
	}
	return p
}

func (p *Pipeline) Kind() types.StreamKind {
	return p.kind
}

// Start begins accumulating chunks from the stream
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != types.PipelineStateIdle {
		return fmt.Errorf("%s pipeline already started", p.kind)
	}
	p.state = types.PipelineStateRecording
	p.startedAt = time.Now()

	go p.accumulate()
	return nil
}

func (p *Pipeline) accumulate() {
	defer p.drained.Break()

	for chunk := range p.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}

		p.mu.Lock()
		accepted := p.state == types.PipelineStateRecording
		if accepted {
			p.chunks = append(p.chunks, chunk)
		}
		p.mu.Unlock()

		if !accepted {
			p.logger.Debugw("discarding chunk after seal", "size", len(chunk))
			continue
		}
		p.size.Add(int64(len(chunk)))
		if p.opts.OnChunk != nil {
			p.opts.OnChunk(p.kind, len(chunk))
		}
	}

	p.mu.Lock()
	unexpected := !p.stopping
	p.mu.Unlock()
	if unexpected {
		err := p.stream.Err()
		p.logger.Warnw("stream ended while recording", err)
		if p.opts.OnEnded != nil {
			p.opts.OnEnded(p.kind, err)
		}
	}
}

// Stop flushes the stream, seals the buffer and assembles the artifact. The stream is always released.
// If ctx expires before the stream drains, the stream is force closed and whatever was captured is finalized.
// Concurrent and repeated calls return the same artifact.
func (p *Pipeline) Stop(ctx context.Context) (*Artifact, error) {
	p.mu.Lock()
	switch {
	case p.state == types.PipelineStateIdle:
		p.mu.Unlock()
		return nil, errors.ErrNotRecording
	case p.stopping:
		p.mu.Unlock()
		select {
		case <-p.finalized.Watch():
			return p.Artifact(), nil
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err())
		}
	}
	p.stopping = true
	p.mu.Unlock()

	var streamErr error
	if err := p.stream.Stop(); err != nil {
		p.logger.Warnw("failed to stop stream", err)
	}

	select {
	case <-p.drained.Watch():
		streamErr = p.stream.Err()
	case <-ctx.Done():
		p.logger.Warnw("stream did not drain, closing", ctx.Err())
		streamErr = errors.ErrTimeout
		_ = p.stream.Close()
		select {
		case <-p.drained.Watch():
		case <-time.After(closeGracePeriod):
		}
	}

	p.seal()

	if err := p.stream.Close(); err != nil {
		p.logger.Warnw("failed to release stream", err)
	}

	return p.finalize(streamErr), nil
}

// seal moves the pipeline out of recording. No chunks are accepted afterwards.
func (p *Pipeline) seal() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = types.PipelineStateStopping
	p.endedAt = time.Now()
}

func (p *Pipeline) finalize(streamErr error) *Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()

	var size int
	for _, chunk := range p.chunks {
		size += len(chunk)
	}
	payload := make([]byte, 0, size)
	for _, chunk := range p.chunks {
		payload = append(payload, chunk...)
	}

	p.artifact = &Artifact{
		Kind:     p.kind,
		Payload:  payload,
		Chunks:   len(p.chunks),
		Duration: p.endedAt.Sub(p.startedAt),
		Err:      streamErr,
	}
	p.chunks = nil
	p.state = types.PipelineStateFinalized
	p.finalized.Break()

	p.logger.Debugw("pipeline finalized", "chunks", p.artifact.Chunks, "size", size)
	return p.artifact
}

func (p *Pipeline) State() types.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Size returns the number of bytes accepted so far
func (p *Pipeline) Size() int64 {
	return p.size.Load()
}

// Artifact returns the finalized artifact, or nil before Stop completes
func (p *Pipeline) Artifact() *Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.artifact
}
