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
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/screen-recorder/pkg/errors"
)

const (
	defaultOutputDir       = "videos"
	defaultAcquireTimeout  = time.Second * 10
	defaultFinalizeTimeout = time.Second * 30
	defaultPersistTimeout  = time.Minute

	// fraction of physical memory recordings may buffer before stopping
	defaultBufferMemoryDivisor = 4
)

type Config struct {
	// optional
	Logging           *logger.Config `yaml:"logging"`             // logging config
	OutputDir         string         `yaml:"output_dir"`          // (env RECORDER_OUTPUT_DIR) root of session directories
	DeleteAfterUpload bool           `yaml:"delete_after_upload"` // remove local files once uploaded to remote storage
	HealthPort        int            `yaml:"health_port"`         // status handler port
	PrometheusPort    int            `yaml:"prometheus_port"`     // prometheus handler port
	DebugHandlerPort  int            `yaml:"debug_handler_port"`  // pprof handler port

	Capture       CaptureConfig  `yaml:"capture"`           // capture backend
	Timeouts      TimeoutConfig  `yaml:"timeouts"`          // acquisition, finalize and persistence timeouts
	SessionLimits SessionLimits  `yaml:"session_limits"`    // automatic stop limits
	StorageConfig *StorageConfig `yaml:"storage,omitempty"` // remote storage config
	BackupConfig  *StorageConfig `yaml:"backup,omitempty"`  // backup config, for storage failures
}

// TimeoutConfig bounds each step of a recording. Non-positive values are replaced by defaults.
type TimeoutConfig struct {
	Acquire  time.Duration `yaml:"acquire"`  // per stream acquisition
	Finalize time.Duration `yaml:"finalize"` // per pipeline stop and drain
	Persist  time.Duration `yaml:"persist"`  // per artifact persistence
}

type SessionLimits struct {
	MaxDuration   time.Duration `yaml:"max_duration"`    // 0 to disable
	MaxBufferSize int64         `yaml:"max_buffer_size"` // bytes buffered across pipelines, -1 to disable
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		Logging: &logger.Config{
			Level: "info",
		},
		OutputDir: defaultOutputDir,
		Capture: CaptureConfig{
			Backend: BackendGStreamer,
		},
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}

	if err := conf.applyEnvOverrides(); err != nil {
		return nil, err
	}
	conf.applyDefaults()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

type envOverrides struct {
	OutputDir string `envconfig:"RECORDER_OUTPUT_DIR"`
	Display   string `envconfig:"DISPLAY"`
}

func (c *Config) applyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return errors.ErrCouldNotParseConfig(err)
	}

	if env.OutputDir != "" {
		c.OutputDir = env.OutputDir
	}
	if c.Capture.Display == "" {
		c.Capture.Display = env.Display
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Logging == nil {
		c.Logging = &logger.Config{Level: "info"}
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.Timeouts.Acquire <= 0 {
		c.Timeouts.Acquire = defaultAcquireTimeout
	}
	if c.Timeouts.Finalize <= 0 {
		c.Timeouts.Finalize = defaultFinalizeTimeout
	}
	if c.Timeouts.Persist <= 0 {
		c.Timeouts.Persist = defaultPersistTimeout
	}
	if c.SessionLimits.MaxBufferSize == 0 {
		c.SessionLimits.MaxBufferSize = int64(memory.TotalMemory() / defaultBufferMemoryDivisor)
	}

	c.Capture.applyDefaults()
	c.StorageConfig.applyDefaults()
	c.BackupConfig.applyDefaults()
}

func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return err
	}
	if c.SessionLimits.MaxDuration < 0 {
		return errors.ErrInvalidInput("session_limits.max_duration")
	}
	return nil
}

func (c *Config) InitLogger(values ...interface{}) error {
	zl, err := logger.NewZapLogger(c.Logging)
	if err != nil {
		return err
	}

	l := zl.WithValues(values...)

	logger.SetLogger(l, "screen-recorder")
	return nil
}
