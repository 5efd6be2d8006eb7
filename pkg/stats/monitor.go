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

const (
	namespace = "livekit"
	subsystem = "screen_recorder"
)

// Monitor records recording, persistence and upload metrics. A nil Monitor is valid and records nothing.
type Monitor struct {
	registerer prometheus.Registerer
	labels     prometheus.Labels

	recordingsCounter   *prometheus.CounterVec
	webcamFallbacks     prometheus.Counter
	artifactsCounter    *prometheus.CounterVec
	persistResponseTime *prometheus.HistogramVec
	uploadsCounter      *prometheus.CounterVec
	uploadsResponseTime *prometheus.HistogramVec
	backupCounter       *prometheus.CounterVec
	bufferedBytes       *prometheus.GaugeVec
}

func NewMonitor(registerer prometheus.Registerer, sessionID string) (*Monitor, error) {
	m := &Monitor{
		registerer: registerer,
		labels:     prometheus.Labels{"session_id": sessionID},
	}

	m.recordingsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "recordings",
		Help:        "Number of recordings by status",
		ConstLabels: m.labels,
	}, []string{"status"}) // status: started, aborted, completed

	m.webcamFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "webcam_fallbacks",
		Help:        "Number of recordings that continued screen-only after webcam acquisition failed",
		ConstLabels: m.labels,
	})

	m.artifactsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "artifacts",
		Help:        "Number of persisted artifacts with kind and status labels",
		ConstLabels: m.labels,
	}, []string{"kind", "status"}) // kind: screen, webcam; status: success, failure

	m.persistResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "persist_response_time_ms",
		Help:        "A histogram of artifact persistence latencies in milliseconds.",
		Buckets:     []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 15000, 20000, 30000},
		ConstLabels: m.labels,
	}, []string{"kind", "status"})

	m.uploadsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "uploads",
		Help:        "Number of uploads with type and status labels",
		ConstLabels: m.labels,
	}, []string{"type", "status"})

	m.uploadsResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "upload_response_time_ms",
		Help:        "A histogram of latencies for upload requests in milliseconds.",
		Buckets:     []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 15000, 20000, 30000},
		ConstLabels: m.labels,
	}, []string{"type", "status"})

	m.backupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "backup_storage_writes",
		Help:        "number of writes to backup storage location by output type",
		ConstLabels: m.labels,
	}, []string{"output_type"})

	m.bufferedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "buffered_bytes",
		Help:        "Bytes buffered in memory by the active recording",
		ConstLabels: m.labels,
	}, []string{"kind"})

	for _, c := range []prometheus.Collector{
		m.recordingsCounter, m.webcamFallbacks, m.artifactsCounter, m.persistResponseTime,
		m.uploadsCounter, m.uploadsResponseTime, m.backupCounter, m.bufferedBytes,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Monitor) IncRecording(status string) {
	if m == nil {
		return
	}
	m.recordingsCounter.With(prometheus.Labels{"status": status}).Inc()
}

func (m *Monitor) IncWebcamFallback() {
	if m == nil {
		return
	}
	m.webcamFallbacks.Inc()
}

func (m *Monitor) ObservePersist(kind types.StreamKind, success bool, elapsed float64) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"kind": string(kind), "status": status(success)}
	m.artifactsCounter.With(labels).Inc()
	m.persistResponseTime.With(labels).Observe(elapsed)
}

func (m *Monitor) IncUploadCountSuccess(uploadType string, elapsed float64) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"type": uploadType, "status": "success"}
	m.uploadsCounter.With(labels).Add(1)
	m.uploadsResponseTime.With(labels).Observe(elapsed)
}

func (m *Monitor) IncUploadCountFailure(uploadType string, elapsed float64) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"type": uploadType, "status": "failure"}
	m.uploadsCounter.With(labels).Add(1)
	m.uploadsResponseTime.With(labels).Observe(elapsed)
}

func (m *Monitor) IncBackupStorageWrites(outputType string) {
	if m == nil {
		return
	}
	m.backupCounter.With(prometheus.Labels{"output_type": outputType}).Add(1)
}

func (m *Monitor) SetBuffered(kind types.StreamKind, size int64) {
	if m == nil {
		return
	}
	m.bufferedBytes.With(prometheus.Labels{"kind": string(kind)}).Set(float64(size))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
