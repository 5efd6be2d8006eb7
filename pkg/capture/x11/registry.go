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

package x11

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/types"
)

const maxThumbnailWorkers = 4

var (
	// " 0: +*DP-1 2560/597x1440/336+0+0  DP-1"
	monitorRegex = regexp.MustCompile(`^\s*(\d+):\s+\S+\s+(\d+)/\d+x(\d+)/\d+\+(-?\d+)\+(-?\d+)\s+(\S+)`)
	// "0x03e00004  0 0    0    1920 1080 host Title"
	windowRegex = regexp.MustCompile(`^(0x[0-9a-fA-F]+)\s+(-?\d+)\s+(-?\d+)\s+(-?\d+)\s+(\d+)\s+(\d+)\s+\S+\s*(.*)$`)
)

// Runner executes a command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Registry enumerates monitors and top level windows on an X display
type Registry struct {
	conf *config.CaptureConfig
	run  Runner
}

func NewRegistry(conf *config.CaptureConfig) *Registry {
	return &Registry{
		conf: conf,
		run:  execRunner(conf.Display),
	}
}

func NewRegistryWithRunner(conf *config.CaptureConfig, run Runner) *Registry {
	return &Registry{
		conf: conf,
		run:  run,
	}
}

func execRunner(display string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Env = append(cmd.Environ(), "DISPLAY="+display)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
		}
		return out, nil
	}
}

func (r *Registry) ListSources(ctx context.Context) ([]*capture.Source, error) {
	out, err := r.run(ctx, "xrandr", "--listmonitors")
	if err != nil {
		return nil, err
	}
	sources := parseMonitors(out)

	if out, err = r.run(ctx, "wmctrl", "-lG"); err != nil {
		logger.Warnw("could not list windows", err)
	} else {
		sources = append(sources, parseWindows(out)...)
	}

	if r.conf.Thumbnails {
		r.addThumbnails(ctx, sources)
	}

	logger.Debugw("listed sources", "count", len(sources))
	return sources, nil
}

func (r *Registry) Lookup(ctx context.Context, sourceID string) (*capture.Source, error) {
	if _, err := capture.ParseSourceID(sourceID); err != nil {
		return nil, err
	}

	out, err := r.run(ctx, "xrandr", "--listmonitors")
	if err != nil {
		return nil, err
	}
	sources := parseMonitors(out)
	if out, err = r.run(ctx, "wmctrl", "-lG"); err == nil {
		sources = append(sources, parseWindows(out)...)
	}

	return capture.FindSource(sources, sourceID)
}

func parseMonitors(out []byte) []*capture.Source {
	var sources []*capture.Source
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := monitorRegex.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		sources = append(sources, &capture.Source{
			ID:   capture.ScreenSourceID(idx),
			Name: fmt.Sprintf("Screen %d (%s)", idx+1, m[6]),
			Type: capture.SourceTypeScreen,
			Geometry: capture.Geometry{
				Width:  atoi(m[2]),
				Height: atoi(m[3]),
				X:      atoi(m[4]),
				Y:      atoi(m[5]),
			},
		})
	}
	return sources
}

func parseWindows(out []byte) []*capture.Source {
	var sources []*capture.Source
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := windowRegex.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		xid, err := strconv.ParseUint(m[1], 0, 64)
		if err != nil {
			continue
		}
		geometry := capture.Geometry{
			X:      atoi(m[3]),
			Y:      atoi(m[4]),
			Width:  atoi(m[5]),
			Height: atoi(m[6]),
		}
		if geometry.Width == 0 || geometry.Height == 0 {
			continue
		}
		name := strings.TrimSpace(m[7])
		if name == "" {
			name = m[1]
		}
		sources = append(sources, &capture.Source{
			ID:       capture.WindowSourceID(xid),
			Name:     name,
			Type:     capture.SourceTypeWindow,
			Geometry: geometry,
			WindowID: xid,
		})
	}
	return sources
}

func (r *Registry) addThumbnails(ctx context.Context, sources []*capture.Source) {
	var eg errgroup.Group
	eg.SetLimit(maxThumbnailWorkers)
	for _, source := range sources {
		eg.Go(func() error {
			thumbnail, err := r.run(ctx, r.conf.FFmpegPath, ThumbnailArgs(r.conf.Display, source)...)
			if err != nil {
				logger.Debugw("could not grab thumbnail", "sourceID", source.ID, "error", err)
				return nil
			}
			source.Thumbnail = thumbnail
			return nil
		})
	}
	_ = eg.Wait()
}

// ThumbnailArgs builds an ffmpeg command grabbing one png frame of the source
func ThumbnailArgs(display string, source *capture.Source) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "x11grab"}
	args = append(args, InputArgs(display, source)...)
	return append(args,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", types.ThumbnailSize, types.ThumbnailSize),
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
}

// InputArgs returns the x11grab input arguments for a source
func InputArgs(display string, source *capture.Source) []string {
	if source.Type == capture.SourceTypeWindow {
		return []string{"-window_id", fmt.Sprintf("0x%x", source.WindowID), "-i", display}
	}
	return []string{
		"-video_size", fmt.Sprintf("%dx%d", source.Geometry.Width, source.Geometry.Height),
		"-i", fmt.Sprintf("%s+%d,%d", display, source.Geometry.X, source.Geometry.Y),
	}
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
