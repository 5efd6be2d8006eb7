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

package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/livekit/screen-recorder/pkg/types"
)

type RecorderStatus interface {
	State() types.State
	ElapsedSeconds() int64
}

// RegisterRecorder exposes the live recorder state as gauges
func (m *Monitor) RegisterRecorder(r RecorderStatus) error {
	if m == nil {
		return nil
	}

	promRecording := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "is_recording",
		ConstLabels: m.labels,
	}, func() float64 {
		if r.State().Active() {
			return 1
		}
		return 0
	})

	promElapsed := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "elapsed_seconds",
		ConstLabels: m.labels,
	}, func() float64 {
		return float64(r.ElapsedSeconds())
	})

	for _, c := range []prometheus.Collector{promRecording, promElapsed} {
		if err := m.registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}
