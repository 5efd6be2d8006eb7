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

package logging

import (
	"testing"

	"github.com/aws/smithy-go/logging"
	"github.com/stretchr/testify/require"
)

func TestProcessLogger(t *testing.T) {
	l := NewProcessLogger("ffmpeg", 3)

	_, err := l.Write([]byte("Input #0, x11grab"))
	require.NoError(t, err)
	require.Equal(t, "Input #0, x11grab", l.Tail())

	_, _ = l.Write([]byte(", from ':0.0':\nframe=  10 fps=30\r"))
	require.Equal(t, "Input #0, x11grab, from ':0.0':\nframe=  10 fps=30", l.Tail())

	_, _ = l.Write([]byte("\n\nline 3\nline 4\n"))
	require.Equal(t, "frame=  10 fps=30\nline 3\nline 4", l.Tail())

	_, _ = l.Write([]byte("[video4linux2] Cannot open video device /dev/video0: error\n"))
	require.Equal(t, "line 3\nline 4\n[video4linux2] Cannot open video device /dev/video0: error", l.Tail())
}

func TestS3Logger(t *testing.T) {
	l := NewS3Logger("bucket")
	for range 15 {
		l.Logf(logging.Debug, "request %s", "PutObject")
	}
	l.WriteLogs()
	for _, msg := range l.msgs {
		require.Empty(t, msg)
	}
}
