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

package types

import "time"

type StreamKind string
type State string
type PipelineState string
type OutputType string
type FileExtension string

const (
	// stream kinds
	StreamKindScreen StreamKind = "screen"
	StreamKindWebcam StreamKind = "webcam"

	// recorder states
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"

	// pipeline states
	PipelineStateIdle      PipelineState = "idle"
	PipelineStateRecording PipelineState = "recording"
	PipelineStateStopping  PipelineState = "stopping"
	PipelineStateFinalized PipelineState = "finalized"

	// output types
	OutputTypeWebM OutputType = "video/webm"
	OutputTypePNG  OutputType = "image/png"

	// file extensions
	FileExtensionWebM FileExtension = ".webm"
	FileExtensionPNG  FileExtension = ".png"
)

// Fixed capture parameters. These are not user-tunable.
const (
	ScreenMaxWidth  = 1920
	ScreenMaxHeight = 1080
	WebcamWidth     = 640
	WebcamHeight    = 480
	Framerate       = 30
	VideoBitrate    = 2500 // kbps

	ThumbnailSize = 150

	ElapsedTick = time.Second
)

// StreamKinds lists every kind in slot order. Screen always comes first.
var StreamKinds = []StreamKind{StreamKindScreen, StreamKindWebcam}

var FileExtensionForOutputType = map[OutputType]FileExtension{
	OutputTypeWebM: FileExtensionWebM,
	OutputTypePNG:  FileExtensionPNG,
}

// Slot returns the index of the kind's pipeline slot, or -1 for unknown kinds.
func (k StreamKind) Slot() int {
	switch k {
	case StreamKindScreen:
		return 0
	case StreamKindWebcam:
		return 1
	default:
		return -1
	}
}

func (k StreamKind) String() string {
	return string(k)
}

func (k StreamKind) Valid() bool {
	return k.Slot() >= 0
}

// Filename is the name an artifact of this kind is persisted under.
func (k StreamKind) Filename() string {
	return string(k) + string(FileExtensionForOutputType[OutputTypeWebM])
}

// Active reports whether a recording is in progress or still finishing.
func (s State) Active() bool {
	return s == StateRecording || s == StateStopping
}
