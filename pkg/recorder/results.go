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
	"time"

	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

const (
	ReasonRequested       = "requested"
	ReasonMaxDuration     = "max duration reached"
	ReasonMaxBufferSize   = "max buffer size reached"
	ReasonScreenEnded     = "screen stream ended"
	recordingStatusStart  = "started"
	recordingStatusAbort  = "aborted"
	recordingStatusFinish = "completed"
)

type StartResult struct {
	RecordingID string             `json:"recordingId"`
	SourceID    string             `json:"sourceId"`
	Kinds       []types.StreamKind `json:"kinds"`

	// non-fatal, set when the webcam was requested but could not be acquired
	Warning error `json:"-"`
}

type ArtifactResult struct {
	Kind     types.StreamKind `json:"kind"`
	Success  bool             `json:"success"`
	Location string           `json:"location,omitempty"`
	Size     int64            `json:"size,omitempty"`
	Chunks   int              `json:"chunks"`
	Duration time.Duration    `json:"duration"`
	Error    string           `json:"error,omitempty"`
	Warning  string           `json:"warning,omitempty"`

	err error
}

func (a *ArtifactResult) Err() error {
	return a.err
}

func (a *ArtifactResult) fail(err error) {
	a.Success = false
	a.err = err
	a.Error = err.Error()
}

type StopResult struct {
	SessionID      string            `json:"sessionId"`
	RecordingID    string            `json:"recordingId"`
	Reason         string            `json:"reason"`
	ElapsedSeconds int64             `json:"elapsedSeconds"`
	Artifacts      []*ArtifactResult `json:"artifacts"`
}

// Err combines every artifact failure, or returns nil if all artifacts were persisted
func (r *StopResult) Err() error {
	errs := &errors.ErrArray{}
	for _, a := range r.Artifacts {
		if a.err != nil {
			errs.AppendErr(a.err)
		}
	}
	if errs.Len() == 0 {
		return nil
	}
	return errs.ToError()
}

func (r *StopResult) Artifact(kind types.StreamKind) *ArtifactResult {
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a
		}
	}
	return nil
}

// Info is a snapshot of the recorder
type Info struct {
	SessionID      string             `json:"sessionId"`
	State          types.State        `json:"state"`
	ElapsedSeconds int64              `json:"elapsedSeconds"`
	RecordingID    string             `json:"recordingId,omitempty"`
	SourceID       string             `json:"sourceId,omitempty"`
	Kinds          []types.StreamKind `json:"kinds,omitempty"`
	BufferedBytes  int64              `json:"bufferedBytes,omitempty"`
	LastResult     *StopResult        `json:"lastResult,omitempty"`
}
