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
	"testing"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCPUMonitor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMonitor(reg, "session")
	require.NoError(t, err)
	c, err := NewCPUMonitor(m)
	require.NoError(t, err)

	require.Equal(t, CPUStats{}, c.Stats())

	c.sample(&cpu.Stats{Total: 100, Idle: 50}, &cpu.Stats{Total: 200, Idle: 125})
	require.InDelta(t, 25, c.Load(), 0.001)
	require.InDelta(t, 25, testutil.ToFloat64(c.gauge), 0.001)

	c.sample(&cpu.Stats{Total: 200, Idle: 125}, &cpu.Stats{Total: 300, Idle: 150})
	require.InDelta(t, 75, c.Load(), 0.001)

	stats := c.Stats()
	require.InDelta(t, 50, stats.Avg, 0.001)
	require.InDelta(t, 75, stats.Max, 0.001)

	// no elapsed ticks
	c.sample(&cpu.Stats{Total: 300}, &cpu.Stats{Total: 300})
	require.InDelta(t, 75, c.Load(), 0.001)

	c.Reset()
	require.Equal(t, CPUStats{}, c.Stats())
	c.Close()
}

func TestCPUMonitorWithoutMetrics(t *testing.T) {
	c, err := NewCPUMonitor(nil)
	require.NoError(t, err)
	c.sample(&cpu.Stats{Total: 100, Idle: 100}, &cpu.Stats{Total: 200, Idle: 200})
	require.Zero(t, c.Load())
	c.Close()
}
