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

package uploader

import (
	"context"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/psrpc"
	"github.com/livekit/screen-recorder/pkg/config"
	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
	"github.com/livekit/storage"
)

type failingUploader struct {
	calls int
}

func (u *failingUploader) upload(_ context.Context, _, _ string, _ types.OutputType) (string, int64, error) {
	u.calls++
	return "", 0, errors.ErrUploadFailed("S3", errors.New("access denied"))
}

func writeTemp(t *testing.T, content string) string {
	local := path.Join(t.TempDir(), "screen.webm")
	require.NoError(t, os.WriteFile(local, []byte(content), 0644))
	return local
}

func TestLocalUploader(t *testing.T) {
	local := writeTemp(t, "webm")
	prefix := t.TempDir()

	u, err := New(&config.StorageConfig{Prefix: prefix}, nil, nil)
	require.NoError(t, err)

	location, size, err := u.Upload(context.Background(), local, "session/screen.webm", types.OutputTypeWebM, false)
	require.NoError(t, err)
	require.Equal(t, path.Join(prefix, "session/screen.webm"), location)
	require.Equal(t, int64(4), size)

	b, err := os.ReadFile(location)
	require.NoError(t, err)
	require.Equal(t, "webm", string(b))

	_, err = os.Stat(local)
	require.NoError(t, err)
}

func TestBackupUploader(t *testing.T) {
	local := writeTemp(t, "webm")
	prefix := t.TempDir()
	primary := &failingUploader{}
	backup, err := newLocalUploader(prefix)
	require.NoError(t, err)

	u := &Uploader{primary: primary, backup: backup}
	location, size, err := u.Upload(context.Background(), local, "session/webcam.webm", types.OutputTypeWebM, true)
	require.NoError(t, err)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, path.Join(prefix, "session/webcam.webm"), location)
	require.Equal(t, int64(4), size)

	_, err = os.Stat(local)
	require.True(t, os.IsNotExist(err))
}

func TestUploadFailure(t *testing.T) {
	local := writeTemp(t, "webm")

	u := &Uploader{primary: &failingUploader{}}
	_, _, err := u.Upload(context.Background(), local, "session/screen.webm", types.OutputTypeWebM, true)
	require.Error(t, err)
	_, err = os.Stat(local)
	require.NoError(t, err)

	u = &Uploader{primary: &failingUploader{}, backup: &failingUploader{}}
	_, _, err = u.Upload(context.Background(), local, "session/screen.webm", types.OutputTypeWebM, false)
	var psrpcErr psrpc.Error
	require.ErrorAs(t, err, &psrpcErr)
	require.Equal(t, psrpc.InvalidArgument, psrpcErr.Code())
}

func TestS3Location(t *testing.T) {
	conf := &storage.S3Config{Bucket: "recordings"}
	require.Equal(t, "https://recordings.s3.amazonaws.com/a/screen.webm", s3Location(conf, "a/screen.webm"))

	conf = &storage.S3Config{Bucket: "recordings", Endpoint: "http://localhost:9000", ForcePathStyle: true}
	require.Equal(t, "https://localhost:9000/recordings/a/screen.webm", s3Location(conf, "a/screen.webm"))
}
