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

package config

import (
	"github.com/livekit/screen-recorder/pkg/errors"
)

const (
	BackendGStreamer = "gstreamer"
	BackendFFmpeg    = "ffmpeg"
	BackendMock      = "mock"

	defaultDisplay      = ":0"
	defaultWebcamDevice = "/dev/video0"
	defaultFFmpegPath   = "ffmpeg"
	defaultXvfbPath     = "Xvfb"
	defaultXvfbWidth    = 1920
	defaultXvfbHeight   = 1080
	defaultXvfbDepth    = 24
)

type CaptureConfig struct {
	Backend      string `yaml:"backend"`       // gstreamer, ffmpeg or mock
	Display      string `yaml:"display"`       // (env DISPLAY) X display to capture
	WebcamDevice string `yaml:"webcam_device"` // default camera
	FFmpegPath   string `yaml:"ffmpeg_path"`   // ffmpeg binary, used by the ffmpeg backend and for thumbnails
	Thumbnails   bool   `yaml:"thumbnails"`    // grab a preview thumbnail for each listed source

	VirtualDisplay *VirtualDisplayConfig `yaml:"virtual_display,omitempty"` // launch Xvfb on Display, for headless hosts
}

type VirtualDisplayConfig struct {
	XvfbPath string `yaml:"xvfb_path"`
	Width    int32  `yaml:"width"`
	Height   int32  `yaml:"height"`
	Depth    int32  `yaml:"depth"`
}

func (c *CaptureConfig) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendGStreamer
	}
	if c.Display == "" {
		c.Display = defaultDisplay
	}
	if c.WebcamDevice == "" {
		c.WebcamDevice = defaultWebcamDevice
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = defaultFFmpegPath
	}
	if v := c.VirtualDisplay; v != nil {
		if v.XvfbPath == "" {
			v.XvfbPath = defaultXvfbPath
		}
		if v.Width == 0 {
			v.Width = defaultXvfbWidth
		}
		if v.Height == 0 {
			v.Height = defaultXvfbHeight
		}
		if v.Depth == 0 {
			v.Depth = defaultXvfbDepth
		}
	}
}

func (c *CaptureConfig) Validate() error {
	switch c.Backend {
	case BackendGStreamer, BackendFFmpeg, BackendMock:
		return nil
	default:
		return errors.ErrInvalidInput("capture.backend")
	}
}
