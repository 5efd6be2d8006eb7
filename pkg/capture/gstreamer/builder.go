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

package gstreamer

import (
	"fmt"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/livekit/screen-recorder/pkg/capture"
	"github.com/livekit/screen-recorder/pkg/types"
)

const (
	sinkName    = "sink"
	queueLength = uint64(1e9) // 1s
)

type captureSettings struct {
	kind   types.StreamKind
	width  int
	height int

	// screen
	display string
	source  *capture.Source

	// webcam
	device string
}

func screenSettings(display string, source *capture.Source) *captureSettings {
	width, height := capture.FitWithin(source.Geometry.Width, source.Geometry.Height, types.ScreenMaxWidth, types.ScreenMaxHeight)
	return &captureSettings{
		kind:    types.StreamKindScreen,
		width:   width,
		height:  height,
		display: display,
		source:  source,
	}
}

func webcamSettings(device string) *captureSettings {
	return &captureSettings{
		kind:   types.StreamKindWebcam,
		width:  types.WebcamWidth,
		height: types.WebcamHeight,
		device: device,
	}
}

func (s *captureSettings) caps() string {
	return fmt.Sprintf("video/x-raw,format=I420,width=%d,height=%d,framerate=%d/1,pixel-aspect-ratio=1/1",
		s.width, s.height, types.Framerate)
}

// buildPipeline creates src ! queue ! videoconvert ! videoscale ! videorate ! capsfilter ! vp8enc ! webmmux ! appsink
func buildPipeline(s *captureSettings) (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline(string(s.kind))
	if err != nil {
		return nil, nil, err
	}

	src, err := buildSource(s)
	if err != nil {
		return nil, nil, err
	}

	queue, err := buildQueue(fmt.Sprintf("%s_queue", s.kind))
	if err != nil {
		return nil, nil, err
	}

	videoConvert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, err
	}

	videoScale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, err
	}

	videoRate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, nil, err
	}

	capsFilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, err
	}
	if err = capsFilter.SetProperty("caps", gst.NewCapsFromString(s.caps())); err != nil {
		return nil, nil, err
	}

	vp8Enc, err := gst.NewElement("vp8enc")
	if err != nil {
		return nil, nil, err
	}
	if err = vp8Enc.SetProperty("target-bitrate", types.VideoBitrate*1000); err != nil {
		return nil, nil, err
	}
	if err = vp8Enc.SetProperty("deadline", int64(1)); err != nil {
		return nil, nil, err
	}
	if err = vp8Enc.SetProperty("cpu-used", 8); err != nil {
		return nil, nil, err
	}
	vp8Enc.SetArg("end-usage", "cbr")

	mux, err := gst.NewElement("webmmux")
	if err != nil {
		return nil, nil, err
	}
	if err = mux.SetProperty("streamable", true); err != nil {
		return nil, nil, err
	}

	sink, err := gst.NewElementWithName("appsink", sinkName)
	if err != nil {
		return nil, nil, err
	}
	if err = sink.SetProperty("sync", false); err != nil {
		return nil, nil, err
	}

	elements := []*gst.Element{src, queue, videoConvert, videoScale, videoRate, capsFilter, vp8Enc, mux, sink}
	if err = pipeline.AddMany(elements...); err != nil {
		return nil, nil, err
	}
	if err = gst.ElementLinkMany(elements...); err != nil {
		return nil, nil, err
	}

	return pipeline, app.SinkFromElement(sink), nil
}

func buildSource(s *captureSettings) (*gst.Element, error) {
	if s.kind == types.StreamKindWebcam {
		src, err := gst.NewElementWithName("v4l2src", "webcam_src")
		if err != nil {
			return nil, err
		}
		if err = src.SetProperty("device", s.device); err != nil {
			return nil, err
		}
		return src, nil
	}

	src, err := gst.NewElementWithName("ximagesrc", "screen_src")
	if err != nil {
		return nil, err
	}
	if err = src.SetProperty("display-name", s.display); err != nil {
		return nil, err
	}
	if err = src.SetProperty("use-damage", false); err != nil {
		return nil, err
	}
	if err = src.SetProperty("show-pointer", true); err != nil {
		return nil, err
	}

	if s.source.Type == capture.SourceTypeWindow {
		if err = src.SetProperty("xid", s.source.WindowID); err != nil {
			return nil, err
		}
		return src, nil
	}

	g := s.source.Geometry
	for prop, value := range map[string]uint{
		"startx": uint(g.X),
		"starty": uint(g.Y),
		"endx":   uint(g.X + g.Width - 1),
		"endy":   uint(g.Y + g.Height - 1),
	} {
		if err = src.SetProperty(prop, value); err != nil {
			return nil, err
		}
	}
	return src, nil
}

func buildQueue(name string) (*gst.Element, error) {
	queue, err := gst.NewElementWithName("queue", name)
	if err != nil {
		return nil, err
	}
	if err = queue.SetProperty("max-size-time", queueLength); err != nil {
		return nil, err
	}
	if err = queue.SetProperty("max-size-bytes", uint(0)); err != nil {
		return nil, err
	}
	if err = queue.SetProperty("max-size-buffers", uint(0)); err != nil {
		return nil, err
	}
	queue.SetArg("leaky", "downstream")
	return queue, nil
}
