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

package util

import (
	"fmt"
	"net/url"
)

// RedactSecret keeps at most three characters at each end of a credential
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}

	var prefix, suffix string
	for i := 3; i > 0; i-- {
		if len(secret) >= i*3 {
			prefix = secret[:i]
			suffix = secret[len(secret)-i:]
			break
		}
	}

	return fmt.Sprintf("{%s...%s}", prefix, suffix)
}

// Redact replaces a non-empty value with its name
func Redact(s, name string) string {
	if s != "" {
		return name
	}
	return ""
}

// RedactURL masks the password of a url with user info
func RedactURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL, false
	}
	if _, ok := u.User.Password(); !ok {
		return rawURL, false
	}

	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String(), true
}
