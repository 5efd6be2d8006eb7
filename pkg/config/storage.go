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

	"go.uber.org/zap/zapcore"

	"github.com/livekit/screen-recorder/pkg/util"
	"github.com/livekit/storage"
)

const (
	defaultMaxRetries    = 5
	defaultMaxRetryDelay = time.Second * 5
	defaultMinRetryDelay = time.Millisecond * 100
)

type StorageConfig struct {
	Prefix string `yaml:"prefix"` // prefix applied to all storage paths

	S3    *storage.S3Config    `yaml:"s3"`    // upload to s3
	Azure *storage.AzureConfig `yaml:"azure"` // upload to azure
	GCP   *storage.GCPConfig   `yaml:"gcp"`   // upload to gcp
}

func (c *StorageConfig) applyDefaults() {
	if c == nil || c.S3 == nil {
		return
	}
	if c.S3.MaxRetries == 0 {
		c.S3.MaxRetries = defaultMaxRetries
	}
	if c.S3.MaxRetryDelay == 0 {
		c.S3.MaxRetryDelay = defaultMaxRetryDelay
	}
	if c.S3.MinRetryDelay == 0 {
		c.S3.MinRetryDelay = defaultMinRetryDelay
	}
}

func (c *StorageConfig) IsLocal() bool {
	return c == nil || (c.S3 == nil && c.GCP == nil && c.Azure == nil)
}

func (c *StorageConfig) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddString("prefix", c.Prefix)
	switch {
	case c.S3 != nil:
		e.AddString("type", "s3")
		e.AddString("bucket", c.S3.Bucket)
		e.AddString("region", c.S3.Region)
		e.AddString("endpoint", c.S3.Endpoint)
		e.AddString("accessKey", util.RedactSecret(c.S3.AccessKey))
		e.AddString("secret", util.Redact(c.S3.Secret, "{secret}"))
		e.AddString("proxy", redactProxy(c.S3.ProxyConfig))
	case c.GCP != nil:
		e.AddString("type", "gcp")
		e.AddString("bucket", c.GCP.Bucket)
		e.AddString("credentials", util.Redact(c.GCP.CredentialsJSON, "{credentials}"))
		e.AddString("proxy", redactProxy(c.GCP.ProxyConfig))
	case c.Azure != nil:
		e.AddString("type", "azure")
		e.AddString("account", c.Azure.AccountName)
		e.AddString("container", c.Azure.ContainerName)
		e.AddString("accountKey", util.Redact(c.Azure.AccountKey, "{accountKey}"))
	default:
		e.AddString("type", "local")
	}
	return nil
}

func redactProxy(p *storage.ProxyConfig) string {
	if p == nil {
		return ""
	}
	redacted, _ := util.RedactURL(p.Url)
	return redacted
}
