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
	"bytes"
	"strings"

	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
)

const defaultTailSize = 10

// ProcessLogger forwards capture process output line by line, keeping the last lines for error reports
type ProcessLogger struct {
	logger logger.Logger

	mu      deadlock.Mutex
	partial []byte
	tail    []string
	idx     int
}

func NewProcessLogger(process string, tailSize int, keysAndValues ...interface{}) *ProcessLogger {
	if tailSize <= 0 {
		tailSize = defaultTailSize
	}
	return &ProcessLogger{
		logger: logger.GetLogger().WithValues(append([]interface{}{"process", process}, keysAndValues...)...),
		tail:   make([]string, tailSize),
	}
}

func (l *ProcessLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexAny(l.partial, "\r\n")
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(l.partial[:i]))
		l.partial = l.partial[i+1:]
		if line != "" {
			l.log(line)
		}
	}

	return len(p), nil
}

func (l *ProcessLogger) log(line string) {
	switch {
	case strings.HasPrefix(line, "frame="), strings.HasPrefix(line, "size="):
		// progress
	case strings.Contains(strings.ToLower(line), "error"):
		l.logger.Warnw(line, nil)
	default:
		l.logger.Debugw(line)
	}

	l.tail[l.idx%len(l.tail)] = line
	l.idx++
}

// Tail returns the most recent complete lines, oldest first
func (l *ProcessLogger) Tail() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := len(l.tail)
	lines := make([]string, 0, size)
	for i := range size {
		if line := l.tail[(l.idx+i)%size]; line != "" {
			lines = append(lines, line)
		}
	}
	if rest := strings.TrimSpace(string(l.partial)); rest != "" {
		lines = append(lines, rest)
	}
	return strings.Join(lines, "\n")
}
