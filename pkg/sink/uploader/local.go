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
	"io"
	"os"
	"path"

	"github.com/livekit/screen-recorder/pkg/errors"
	"github.com/livekit/screen-recorder/pkg/types"
)

// localUploader copies files into another directory, such as a mounted volume
type localUploader struct {
	prefix string
}

func newLocalUploader(prefix string) (*localUploader, error) {
	return &localUploader{prefix: prefix}, nil
}

func (u *localUploader) upload(ctx context.Context, localFilepath, storageFilepath string, _ types.OutputType) (string, int64, error) {
	storageFilepath = path.Join(u.prefix, storageFilepath)
	if storageFilepath == localFilepath {
		stat, err := os.Stat(localFilepath)
		if err != nil {
			return "", 0, errors.ErrUploadFailed("local", err)
		}
		return storageFilepath, stat.Size(), nil
	}

	if err := ctx.Err(); err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}

	dir, _ := path.Split(storageFilepath)
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", 0, errors.ErrUploadFailed("local", err)
		}
	}

	src, err := os.Open(localFilepath)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}
	defer func() {
		_ = src.Close()
	}()

	f, err := os.Create(storageFilepath)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}

	size, err := io.Copy(f, src)
	_ = f.Close()
	if err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}

	return storageFilepath, size, nil
}
