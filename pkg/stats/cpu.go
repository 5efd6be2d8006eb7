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
	"runtime"
	"time"

	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"
	"github.com/mackerelio/go-osstat/cpu"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
)

const (
	cpuSampleInterval = time.Second
	highLoadThreshold = 90
)

type CPUStats struct {
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// CPUMonitor samples system cpu load. Encoding runs on the host, so load is tracked per recording.
type CPUMonitor struct {
	numCPUs float64
	load    atomic.Float64
	gauge   prometheus.Gauge

	mu    deadlock.Mutex
	count float64
	total float64
	max   float64

	closed core.Fuse
}

func NewCPUMonitor(m *Monitor) (*CPUMonitor, error) {
	c := &CPUMonitor{
		numCPUs: float64(runtime.NumCPU()),
	}
	if m == nil {
		return c, nil
	}

	c.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "cpu_load",
		Help:        "System cpu load percentage",
		ConstLabels: m.labels,
	})
	if err := m.registerer.Register(c.gauge); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CPUMonitor) Start() {
	go c.run()
}

func (c *CPUMonitor) run() {
	prev, err := cpu.Get()
	if err != nil {
		logger.Warnw("cpu stats unavailable", err)
		return
	}

	ticker := time.NewTicker(cpuSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed.Watch():
			return
		case <-ticker.C:
			next, err := cpu.Get()
			if err != nil {
				continue
			}
			c.sample(prev, next)
			prev = next
		}
	}
}

func (c *CPUMonitor) sample(prev, next *cpu.Stats) {
	total := float64(next.Total - prev.Total)
	if total <= 0 {
		return
	}
	load := 100 - float64(next.Idle-prev.Idle)/total*100
	c.load.Store(load)
	if c.gauge != nil {
		c.gauge.Set(load)
	}

	c.mu.Lock()
	c.count++
	c.total += load
	if load > c.max {
		c.max = load
	}
	c.mu.Unlock()

	if load > highLoadThreshold {
		logger.Infow("high cpu load", "load", load, "numCPUs", c.numCPUs)
	}
}

// Load returns the most recent sample
func (c *CPUMonitor) Load() float64 {
	return c.load.Load()
}

// Reset clears the running average and max
func (c *CPUMonitor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count = 0
	c.total = 0
	c.max = 0
}

// Stats returns the average and max load since the last Reset
func (c *CPUMonitor) Stats() CPUStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return CPUStats{}
	}
	return CPUStats{
		Avg: c.total / c.count,
		Max: c.max,
	}
}

func (c *CPUMonitor) Close() {
	c.closed.Break()
}
