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

//go:build mage

package main

import (
	"context"
	"fmt"

	"github.com/livekit/mageutil"
	"github.com/livekit/screen-recorder/version"
)

const (
	gstVersion  = "1.24.12"
	dockerBuild = "docker build"
)

func Build() error {
	return mageutil.Run(context.Background(),
		"go build -o bin/screen-recorder ./cmd/recorder",
	)
}

func Test() error {
	return mageutil.Run(context.Background(), "go test -race ./pkg/...")
}

func Docker() error {
	return mageutil.Run(context.Background(),
		fmt.Sprintf("docker pull livekit/gstreamer:%s-dev", gstVersion),
		fmt.Sprintf("%s -t livekit/screen-recorder:%s --build-arg GSTREAMER_VERSION=%s -f build/Dockerfile .", dockerBuild, version.Version, gstVersion),
	)
}
