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

// FitWithin scales width and height down to fit inside maxWidth x maxHeight,
// preserving aspect ratio. Sources are never upscaled and results are even.
func FitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return even(maxWidth), even(maxHeight)
	}

	if width > maxWidth || height > maxHeight {
		// compare ratios without floats: width/height vs maxWidth/maxHeight
		if width*maxHeight > height*maxWidth {
			height = height * maxWidth / width
			width = maxWidth
		} else {
			width = width * maxHeight / height
			height = maxHeight
		}
	}

	return even(width), even(height)
}

func even(v int) int {
	v -= v % 2
	if v < 2 {
		return 2
	}
	return v
}
