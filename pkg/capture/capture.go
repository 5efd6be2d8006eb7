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
	"strconv"
	"strings"

	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

// Stream is a live encoded media stream. Chunks are delivered in capture order.
type Stream interface {
	Kind() types.StreamKind
	// Chunks is closed once the stream has ended and all pending data has been delivered
	Chunks() <-chan []byte
	// Stop asks the encoder to flush and end the stream. Idempotent.
	Stop() error
	// Close releases the underlying device immediately. Idempotent.
	Close() error
	// Err is set when the stream ended abnormally
	Err() error
}

// Acquirer enumerates capture sources and opens live streams from them
type Acquirer interface {
	ListSources(ctx context.Context) ([]*Source, error)
	AcquireScreen(ctx context.Context, sourceID string) (Stream, error)
	AcquireWebcam(ctx context.Context) (Stream, error)
}

type SourceType string

const (
	SourceTypeScreen SourceType = "screen"
	SourceTypeWindow SourceType = "window"
)

type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Source struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      SourceType `json:"type"`
	Geometry  Geometry   `json:"geometry"`
	WindowID  uint64     `json:"window_id,omitempty"`
	Thumbnail []byte     `json:"thumbnail,omitempty"` // png
}

// SourceRef is a parsed source id of the form "screen:<index>[:<n>]" or "window:<xid>[:<n>]"
type SourceRef struct {
	Type  SourceType
	Index uint64
}

func ParseSourceID(id string) (*SourceRef, error) {
	parts := strings.Split(id, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, errors.ErrInvalidInput("sourceId")
	}

	ref := &SourceRef{Type: SourceType(parts[0])}
	switch ref.Type {
	case SourceTypeScreen, SourceTypeWindow:
	default:
		return nil, errors.ErrInvalidInput("sourceId")
	}

	idx, err := strconv.ParseUint(parts[1], 0, 64)
	if err != nil {
		return nil, errors.ErrInvalidInput("sourceId")
	}
	ref.Index = idx
	return ref, nil
}

func (r *SourceRef) String() string {
	return fmt.Sprintf("%s:%d:0", r.Type, r.Index)
}

func ScreenSourceID(index int) string {
	return fmt.Sprintf("%s:%d:0", SourceTypeScreen, index)
}

func WindowSourceID(xid uint64) string {
	return fmt.Sprintf("%s:%d:0", SourceTypeWindow, xid)
}

// FindSource looks up a source by id, matching on type and index
func FindSource(sources []*Source, id string) (*Source, error) {
	ref, err := ParseSourceID(id)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		r, err := ParseSourceID(s.ID)
		if err == nil && *r == *ref {
			return s, nil
		}
	}
	return nil, errors.ErrSourceNotFound
}
