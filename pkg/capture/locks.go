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

package capture

import (
	"fmt"

	"github.com/linkdata/deadlock"

	"github.com/livekit/screen-recorder/pkg/errors"
)

// DeviceLocks tracks exclusive holds on capture devices
type DeviceLocks struct {
	mu   deadlock.Mutex
	held map[string]bool
}

func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{
		held: make(map[string]bool),
	}
}

// Lock takes the device, returning a release func which may be called more than once
func (d *DeviceLocks) Lock(device string) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.held[device] {
		return nil, fmt.Errorf("%w: %s", errors.ErrDeviceBusy, device)
	}
	d.held[device] = true

	var released bool
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !released {
			released = true
			delete(d.held, device)
		}
	}, nil
}

func (d *DeviceLocks) Held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.held)
}
