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

package sink

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/tracer"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/sink/uploader"
	"github.com/livekit/screen-recorder/pkg/stats"
	"github.com/livekit/screen-recorder/pkg/types"
)

// Gateway persists finalized artifacts under a session scoped location
type Gateway interface {
	Persist(ctx context.Context, sessionID string, kind types.StreamKind, payload []byte) (*Result, error)
}

type Result struct {
	SessionID string           `json:"sessionId"`
	Kind      types.StreamKind `json:"kind"`
	Location  string           `json:"location"`            // local path, or remote url when uploaded
	LocalPath string           `json:"localPath,omitempty"` // empty if deleted after upload
	Size      int64            `json:"size"`
}

// FileGateway writes <output_dir>/<sessionID>/<kind>.webm, optionally uploading the file afterwards
type FileGateway struct {
	outputDir         string
	deleteAfterUpload bool
	uploader          *uploader.Uploader
	monitor           *stats.Monitor
}

func NewFileGateway(conf *config.Config, monitor *stats.Monitor) (*FileGateway, error) {
	g := &FileGateway{
		outputDir:         conf.OutputDir,
		deleteAfterUpload: conf.DeleteAfterUpload,
		monitor:           monitor,
	}

	if conf.StorageConfig != nil {
		u, err := uploader.New(conf.StorageConfig, conf.BackupConfig, monitor)
		if err != nil {
			return nil, err
		}
		g.uploader = u
	}

	return g, nil
}

func (g *FileGateway) Persist(ctx context.Context, sessionID string, kind types.StreamKind, payload []byte) (*Result, error) {
	ctx, span := tracer.Start(ctx, "FileGateway.Persist")
	defer span.End()

	start := time.Now()
	res, err := g.persist(ctx, sessionID, kind, payload)
	g.monitor.ObservePersist(kind, err == nil, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		return nil, errors.ErrPersistFailed(kind, err)
	}

	logger.Infow("recording saved", "sessionID", sessionID, "kind", kind, "location", res.Location, "size", res.Size)
	return res, nil
}

func (g *FileGateway) persist(ctx context.Context, sessionID string, kind types.StreamKind, payload []byte) (*Result, error) {
	if !kind.Valid() {
		return nil, errors.ErrInvalidInput("kind")
	}
	if !validSessionID(sessionID) {
		return nil, errors.ErrInvalidInput("sessionId")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	localPath, err := g.write(sessionID, kind, payload)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID: sessionID,
		Kind:      kind,
		Location:  localPath,
		LocalPath: localPath,
		Size:      int64(len(payload)),
	}
	if g.uploader == nil {
		return res, nil
	}

	location, size, err := g.uploader.Upload(ctx, localPath, path.Join(sessionID, kind.Filename()), types.OutputTypeWebM, g.deleteAfterUpload)
	if err != nil {
		return nil, err
	}
	res.Location = location
	res.Size = size
	if g.deleteAfterUpload {
		res.LocalPath = ""
	}
	return res, nil
}

// write creates the session directory on first use and replaces the file atomically
func (g *FileGateway) write(sessionID string, kind types.StreamKind, payload []byte) (string, error) {
	dir := path.Join(g.outputDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "."+string(kind)+"-*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	localPath := path.Join(dir, kind.Filename())
	if err = os.Rename(tmpPath, localPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return localPath, nil
}

func validSessionID(sessionID string) bool {
	return sessionID != "" &&
		sessionID != "." &&
		sessionID != ".." &&
		!strings.ContainsAny(sessionID, `/\`)
}
