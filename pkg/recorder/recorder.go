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
	"fmt"
	"time"

	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/tracer"
	"github.com/livekit/protocol/utils"
	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/pipeline"
	"github.com/livekit/screen-recorder/pkg/sink"
	"github.com/livekit/screen-recorder/pkg/stats"
	"github.com/livekit/screen-recorder/pkg/types"
)

const recordingPrefix = "REC_"

type Params struct {
	SessionID string
	Acquirer  capture.Acquirer
	Gateway   sink.Gateway
	Monitor   *stats.Monitor
	Timeouts  config.TimeoutConfig
	Limits    config.SessionLimits

	// OnStopped receives the result of a recording stopped automatically by a session limit
	OnStopped func(*StopResult)
}

// Recorder coordinates the screen and webcam pipelines of one session
type Recorder struct {
	params       Params
	logger       logger.Logger
	tickInterval time.Duration

	mu         deadlock.Mutex
	state      types.State
	starting   bool
	active     *recording
	lastResult *StopResult

	elapsed atomic.Int64
}

type recording struct {
	id        string
	sourceID  string
	pipelines [2]*pipeline.Pipeline // indexed by types.StreamKind.Slot
	buffered  atomic.Int64

	stopTick   core.Fuse
	limited    core.Fuse
	limitTimer *time.Timer
}

func (rec *recording) kinds() []types.StreamKind {
	return lo.FilterMap(rec.pipelines[:], func(p *pipeline.Pipeline, _ int) (types.StreamKind, bool) {
		if p == nil {
			return "", false
		}
		return p.Kind(), true
	})
}

func New(params Params) *Recorder {
	return &Recorder{
		params:       params,
		logger:       logger.GetLogger().WithValues("sessionID", params.SessionID),
		tickInterval: types.ElapsedTick,
		state:        types.StateIdle,
	}
}

// Start acquires the screen stream and, if requested, the webcam stream, and begins recording.
// A screen failure aborts the attempt. A webcam failure is returned as a warning and recording continues screen only.
func (r *Recorder) Start(ctx context.Context, sourceID string, webcam bool) (*StartResult, error) {
	ctx, span := tracer.Start(ctx, "Recorder.Start")
	defer span.End()

	if sourceID == "" {
		return nil, errors.ErrInvalidInput("sourceId")
	}

	r.mu.Lock()
	if r.starting || r.state.Active() {
		r.mu.Unlock()
		return nil, errors.ErrAlreadyRecording
	}
	r.starting = true
	r.mu.Unlock()

	screen, err := r.acquire(ctx, types.StreamKindScreen, func(ctx context.Context) (capture.Stream, error) {
		return r.params.Acquirer.AcquireScreen(ctx, sourceID)
	})
	if err != nil {
		if !errors.Is(err, errors.ErrSourceUnavailable) {
			err = errors.ErrSourceUnavailableFor(sourceID, err)
		}
		span.RecordError(err)
		r.logger.Warnw("recording aborted", err, "sourceID", sourceID)

		r.mu.Lock()
		r.state = types.StateAborted
		r.starting = false
		r.mu.Unlock()

		r.params.Monitor.IncRecording(recordingStatusAbort)
		return nil, err
	}

	rec := &recording{
		id:       utils.NewGuid(recordingPrefix),
		sourceID: sourceID,
	}
	res := &StartResult{
		RecordingID: rec.id,
		SourceID:    sourceID,
	}

	streams := []capture.Stream{screen}
	if webcam {
		s, err := r.acquire(ctx, types.StreamKindWebcam, r.params.Acquirer.AcquireWebcam)
		if err != nil {
			if !errors.Is(err, errors.ErrWebcamUnavailable) {
				err = errors.ErrWebcamUnavailableFor(err)
			}
			r.logger.Warnw("webcam unavailable, recording screen only", err)
			r.params.Monitor.IncWebcamFallback()
			res.Warning = err
		} else {
			streams = append(streams, s)
		}
	}

	opts := &pipeline.Options{
		Logger:  r.logger.WithValues("recordingID", rec.id),
		OnChunk: func(kind types.StreamKind, size int) { r.onChunk(rec, kind, size) },
		OnEnded: func(kind types.StreamKind, err error) { r.onEnded(rec, kind, err) },
	}
	for _, s := range streams {
		rec.pipelines[s.Kind().Slot()] = pipeline.New(s.Kind(), s, opts)
	}
	res.Kinds = rec.kinds()

	r.mu.Lock()
	r.elapsed.Store(0)
	r.active = rec
	r.state = types.StateRecording
	r.starting = false
	for _, p := range rec.pipelines {
		if p != nil {
			if err = p.Start(); err != nil {
				r.logger.Warnw("failed to start pipeline", err, "recordingID", rec.id, "kind", p.Kind())
			}
		}
	}
	go r.tick(rec)
	if limit := r.params.Limits.MaxDuration; limit > 0 {
		rec.limitTimer = time.AfterFunc(limit, func() {
			r.autoStop(rec, ReasonMaxDuration)
		})
	}
	r.mu.Unlock()

	r.params.Monitor.IncRecording(recordingStatusStart)
	r.logger.Infow("recording started", "recordingID", rec.id, "sourceID", sourceID, "kinds", res.Kinds)
	return res, nil
}

// acquire bounds acquisition by the acquire timeout. A stream arriving after the timeout,
// or one of the wrong kind, is released.
func (r *Recorder) acquire(ctx context.Context, kind types.StreamKind, acquire func(context.Context) (capture.Stream, error)) (capture.Stream, error) {
	if timeout := r.params.Timeouts.Acquire; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type acquired struct {
		stream capture.Stream
		err    error
	}
	done := make(chan acquired, 1)
	go func() {
		s, err := acquire(ctx)
		done <- acquired{s, err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			return nil, a.err
		}
		if got := a.stream.Kind(); got != kind {
			_ = a.stream.Close()
			return nil, errors.ErrUnexpectedStreamKind(kind, got)
		}
		return a.stream, nil
	case <-ctx.Done():
		go func() {
			if a := <-done; a.stream != nil {
				_ = a.stream.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err())
	}
}

func (r *Recorder) tick(rec *recording) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.elapsed.Inc()
		case <-rec.stopTick.Watch():
			return
		}
	}
}

func (r *Recorder) onChunk(rec *recording, kind types.StreamKind, size int) {
	total := rec.buffered.Add(int64(size))
	if p := rec.pipelines[kind.Slot()]; p != nil {
		r.params.Monitor.SetBuffered(kind, p.Size())
	}

	if limit := r.params.Limits.MaxBufferSize; limit > 0 && total > limit {
		r.autoStop(rec, ReasonMaxBufferSize)
	}
}

func (r *Recorder) onEnded(rec *recording, kind types.StreamKind, err error) {
	if kind == types.StreamKindScreen {
		r.autoStop(rec, ReasonScreenEnded)
	}
}

// autoStop stops rec at most once, if it is still the active recording
func (r *Recorder) autoStop(rec *recording, reason string) {
	rec.limited.Once(func() {
		go func() {
			r.logger.Infow("stopping recording", "recordingID", rec.id, "reason", reason)
			res, err := r.stop(context.Background(), rec, reason)
			if err != nil {
				return
			}
			if r.params.OnStopped != nil {
				r.params.OnStopped(res)
			}
		}()
	})
}

// Stop ends the active recording. Each pipeline is finalized and persisted independently,
// and the recorder reaches Completed once every artifact has been handed off.
func (r *Recorder) Stop(ctx context.Context) (*StopResult, error) {
	ctx, span := tracer.Start(ctx, "Recorder.Stop")
	defer span.End()

	// finalize and persist are bounded by their own timeouts, not by the caller
	ctx = context.WithoutCancel(ctx)

	res, err := r.stop(ctx, nil, ReasonRequested)
	if err != nil {
		return nil, err
	}
	if err = res.Err(); err != nil {
		span.RecordError(err)
	}
	return res, nil
}

func (r *Recorder) stop(ctx context.Context, expected *recording, reason string) (*StopResult, error) {
	r.mu.Lock()
	rec := r.active
	if r.state != types.StateRecording || (expected != nil && expected != rec) {
		r.mu.Unlock()
		return nil, errors.ErrNotRecording
	}
	r.state = types.StateStopping
	rec.stopTick.Break()
	if rec.limitTimer != nil {
		rec.limitTimer.Stop()
	}
	r.mu.Unlock()

	res := &StopResult{
		SessionID:      r.params.SessionID,
		RecordingID:    rec.id,
		Reason:         reason,
		ElapsedSeconds: r.elapsed.Load(),
	}

	artifacts := make([]*ArtifactResult, len(rec.pipelines))
	var eg errgroup.Group
	for slot, p := range rec.pipelines {
		if p == nil {
			continue
		}
		eg.Go(func() error {
			artifacts[slot] = r.finalizeAndPersist(ctx, rec, p)
			return nil
		})
	}
	_ = eg.Wait()

	for _, a := range artifacts {
		if a != nil {
			res.Artifacts = append(res.Artifacts, a)
		}
	}

	r.mu.Lock()
	r.state = types.StateCompleted
	r.active = nil
	r.lastResult = res
	r.mu.Unlock()

	for _, kind := range rec.kinds() {
		r.params.Monitor.SetBuffered(kind, 0)
	}
	r.params.Monitor.IncRecording(recordingStatusFinish)
	r.logger.Infow("recording completed", "recordingID", rec.id, "reason", reason, "elapsed", res.ElapsedSeconds, "error", res.Err())
	return res, nil
}

func (r *Recorder) finalizeAndPersist(ctx context.Context, rec *recording, p *pipeline.Pipeline) *ArtifactResult {
	ctx, span := tracer.Start(ctx, "Recorder.finalizeAndPersist")
	defer span.End()

	kind := p.Kind()
	res := &ArtifactResult{Kind: kind}

	finalizeCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := r.params.Timeouts.Finalize; timeout > 0 {
		finalizeCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	artifact, err := p.Stop(finalizeCtx)
	cancel()
	if err != nil {
		res.fail(errors.ErrPersistFailed(kind, err))
		return res
	}

	res.Chunks = artifact.Chunks
	res.Duration = artifact.Duration
	if artifact.Err != nil {
		res.Warning = artifact.Err.Error()
	}

	persisted, err := r.persist(ctx, kind, artifact.Payload)
	if err != nil {
		span.RecordError(err)
		r.logger.Errorw("failed to persist recording", err, "recordingID", rec.id, "kind", kind)
		res.fail(err)
		return res
	}

	res.Success = true
	res.Location = persisted.Location
	res.Size = persisted.Size
	return res
}

// persist hands the payload to the gateway once, bounded by the persist timeout
func (r *Recorder) persist(ctx context.Context, kind types.StreamKind, payload []byte) (*sink.Result, error) {
	if timeout := r.params.Timeouts.Persist; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type persisted struct {
		res *sink.Result
		err error
	}
	done := make(chan persisted, 1)
	go func() {
		res, err := r.params.Gateway.Persist(ctx, r.params.SessionID, kind, payload)
		done <- persisted{res, err}
	}()

	var err error
	select {
	case p := <-done:
		if p.err == nil {
			return p.res, nil
		}
		err = p.err
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err())
	}

	if !errors.Is(err, errors.ErrPersistenceFailure) {
		err = errors.ErrPersistFailed(kind, err)
	}
	return nil, err
}

func (r *Recorder) State() types.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) ElapsedSeconds() int64 {
	return r.elapsed.Load()
}

func (r *Recorder) Info() *Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := &Info{
		SessionID:      r.params.SessionID,
		State:          r.state,
		ElapsedSeconds: r.elapsed.Load(),
		LastResult:     r.lastResult,
	}
	if r.active != nil {
		info.RecordingID = r.active.id
		info.SourceID = r.active.sourceID
		info.Kinds = r.active.kinds()
		info.BufferedBytes = r.active.buffered.Load()
	}
	return info
}
