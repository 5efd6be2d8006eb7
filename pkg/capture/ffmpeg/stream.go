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

package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/logging"
	"github.com/livekit/screen-recorder/pkg/types"
)

const (
	startupGracePeriod = time.Millisecond * 250
	readSize           = 64 * 1024
	chunkBuffer        = 16
)

type shutdownPhase struct {
	name    string
	signal  syscall.Signal
	timeout time.Duration
}

var closePhases = []shutdownPhase{
	{"terminate", syscall.SIGTERM, time.Millisecond * 250},
	{"kill", syscall.SIGKILL, time.Millisecond * 100},
}

type stream struct {
	kind    types.StreamKind
	cmd     *exec.Cmd
	log     *logging.ProcessLogger
	release func()
	chunks  chan []byte

	stopping core.Fuse
	closed   core.Fuse
	exited   core.Fuse

	err atomic.Error
}

func startStream(ctx context.Context, kind types.StreamKind, path string, args []string, release func()) (*stream, error) {
	s := &stream{
		kind:    kind,
		log:     logging.NewProcessLogger(path, 0, "kind", kind),
		release: release,
		chunks:  make(chan []byte, chunkBuffer),
	}

	logger.Debugw(fmt.Sprintf("%s %s", path, strings.Join(args, " ")), "kind", kind)

	s.cmd = exec.Command(path, args...)
	// signals reach the whole process group
	s.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	s.cmd.Stderr = s.log
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		release()
		return nil, err
	}

	if err = s.cmd.Start(); err != nil {
		release()
		return nil, errors.ErrProcessFailed(path, err, "")
	}

	go s.read(stdout)

	select {
	case <-s.exited.Watch():
		err = s.err.Load()
		if err == nil {
			err = errors.ErrProcessFailed(path, errors.ErrStreamClosed, s.log.Tail())
		}
		return nil, err
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err())
	case <-time.After(startupGracePeriod):
		return s, nil
	}
}

func (s *stream) read(stdout io.Reader) {
	defer func() {
		close(s.chunks)
		s.release()
		s.exited.Break()
	}()

	buf := make([]byte, readSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.send(chunk)
		}
		if err != nil {
			break
		}
	}

	// all reads must complete before Wait
	err := s.cmd.Wait()
	switch {
	case s.stopping.IsBroken() || s.closed.IsBroken():
		logger.Debugw("ffmpeg exited", "kind", s.kind, "exitCode", s.cmd.ProcessState.ExitCode())
	case err != nil:
		s.err.Store(errors.ErrProcessFailed("ffmpeg", err, s.log.Tail()))
		logger.Warnw("ffmpeg exited unexpectedly", err, "kind", s.kind)
	default:
		s.err.Store(errors.ErrStreamClosed)
		logger.Warnw("ffmpeg exited unexpectedly", nil, "kind", s.kind)
	}
}

func (s *stream) send(chunk []byte) {
	select {
	case s.chunks <- chunk:
	case <-s.closed.Watch():
		// discard, stdout keeps draining until exit
	}
}

func (s *stream) Kind() types.StreamKind {
	return s.kind
}

func (s *stream) Chunks() <-chan []byte {
	return s.chunks
}

// Stop interrupts ffmpeg, which finalizes the webm and exits
func (s *stream) Stop() error {
	s.stopping.Once(func() {
		if s.exited.IsBroken() {
			return
		}
		logger.Debugw("stopping ffmpeg", "kind", s.kind)
		_ = syscall.Kill(-s.cmd.Process.Pid, syscall.SIGINT)
	})
	return nil
}

func (s *stream) Close() error {
	var err error
	s.closed.Once(func() {
		err = s.shutdownInPhases(closePhases)
	})
	if err != nil {
		return err
	}
	<-s.exited.Watch()
	return nil
}

func (s *stream) shutdownInPhases(phases []shutdownPhase) error {
	pgid := -s.cmd.Process.Pid
	for _, phase := range phases {
		if s.exited.IsBroken() {
			return nil
		}

		logger.Debugw("ffmpeg shutdown phase", "phase", phase.name, "kind", s.kind)
		_ = syscall.Kill(pgid, phase.signal)

		select {
		case <-s.exited.Watch():
			return nil
		case <-time.After(phase.timeout):
		}
	}
	return fmt.Errorf("failed to shutdown ffmpeg")
}

func (s *stream) Err() error {
	return s.err.Load()
}
