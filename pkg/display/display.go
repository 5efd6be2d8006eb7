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

package display

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/logging"
)

const (
	readyPollInterval = time.Millisecond * 50
	readyAttempts     = 100
	closeTimeout      = time.Second * 2
)

var socketDir = "/tmp/.X11-unix"

// Display is an Xvfb server providing a capturable X display on headless hosts
type Display struct {
	name string
	cmd  *exec.Cmd
	log  *logging.ProcessLogger

	err    atomic.Error
	exited core.Fuse
}

// Launch starts Xvfb on display and waits for its socket to appear
func Launch(ctx context.Context, conf *config.VirtualDisplayConfig, display string) (*Display, error) {
	socket, err := socketPath(display)
	if err != nil {
		return nil, err
	}

	dims := fmt.Sprintf("%dx%dx%d", conf.Width, conf.Height, conf.Depth)
	logger.Debugw("launching xvfb", "display", display, "dims", dims)

	d := &Display{
		name: display,
		log:  logging.NewProcessLogger("xvfb", 0, "display", display),
	}
	d.cmd = exec.Command(conf.XvfbPath, display, "-screen", "0", dims, "-ac", "-nolisten", "tcp")
	d.cmd.Stdout = d.log
	d.cmd.Stderr = d.log
	if err = d.cmd.Start(); err != nil {
		return nil, errors.ErrProcessFailed("xvfb", err, "")
	}
	go d.wait()

	err = retry.New(
		retry.Attempts(readyAttempts),
		retry.Delay(readyPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		if d.exited.IsBroken() {
			exitErr := d.err.Load()
			if exitErr == nil {
				exitErr = errors.ErrStreamClosed
			}
			return retry.Unrecoverable(errors.ErrProcessFailed("xvfb", exitErr, d.log.Tail()))
		}
		_, statErr := os.Stat(socket)
		return statErr
	})
	if err != nil {
		_ = d.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrTimeout, ctxErr)
		}
		return nil, err
	}
	return d, nil
}

func (d *Display) wait() {
	if err := d.cmd.Wait(); err != nil {
		d.err.Store(err)
	}
	d.exited.Break()
}

func (d *Display) Name() string {
	return d.name
}

func (d *Display) Close() error {
	if d.exited.IsBroken() {
		return nil
	}

	if err := d.cmd.Process.Signal(os.Interrupt); err != nil {
		logger.Errorw("failed to stop xvfb", err)
	}
	select {
	case <-d.exited.Watch():
		return nil
	case <-time.After(closeTimeout):
		logger.Warnw("xvfb did not exit, killing", nil, "display", d.name)
		return d.cmd.Process.Kill()
	}
}

// socketPath maps ":99" or ":99.0" to the server's unix socket
func socketPath(display string) (string, error) {
	number, ok := strings.CutPrefix(display, ":")
	if !ok || number == "" {
		return "", errors.ErrInvalidInput("capture.display")
	}
	number, _, _ = strings.Cut(number, ".")
	return path.Join(socketDir, "X"+number), nil
}
