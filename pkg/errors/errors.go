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

package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/livekit/psrpc"
)

var (
	ErrNoConfig           = errors.New("missing config")
	ErrSourceUnavailable  = errors.New("capture source unavailable")
	ErrWebcamUnavailable  = errors.New("webcam unavailable")
	ErrAlreadyRecording   = errors.New("recording already in progress")
	ErrNotRecording       = errors.New("not recording")
	ErrPersistenceFailure = errors.New("recording could not be persisted")
	ErrDeviceBusy         = errors.New("device busy")
	ErrStreamClosed       = errors.New("stream closed")
	ErrSourceNotFound     = errors.New("source not found")
	ErrTimeout            = errors.New("timed out")
	ErrShuttingDown       = errors.New("shutting down")
	ErrInvalidInputField  = errors.New("request has missing or invalid field")
)

func New(err string) error {
	return errors.New(err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func ErrCouldNotParseConfig(err error) error {
	return fmt.Errorf("could not parse config: %v", err)
}

func ErrInvalidInput(field string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInputField, field)
}

func ErrSourceUnavailableFor(sourceID string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, sourceID, err)
}

func ErrWebcamUnavailableFor(err error) error {
	return fmt.Errorf("%w: %w", ErrWebcamUnavailable, err)
}

func ErrUnexpectedStreamKind(want, got fmt.Stringer) error {
	return fmt.Errorf("expected %s stream, got %q", want, got)
}

func ErrPersistFailed(kind fmt.Stringer, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, kind, err)
}

func ErrUploadFailed(location string, err error) error {
	return fmt.Errorf("%s upload failed: %v", location, err)
}

func ErrProcessFailed(process string, err error, tail string) error {
	if tail == "" {
		return fmt.Errorf("%s failed: %w", process, err)
	}
	return fmt.Errorf("%s failed: %w\n%s", process, err, tail)
}

type ErrArray struct {
	errs []error
}

func (e *ErrArray) AppendErr(err error) {
	e.errs = append(e.errs, err)
}

func (e *ErrArray) Len() int {
	return len(e.errs)
}

// ToError joins every appended error. The code of the first psrpc error is kept.
func (e *ErrArray) ToError() psrpc.Error {
	if len(e.errs) == 0 {
		return nil
	}

	code := psrpc.Unknown
	errStr := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		if code == psrpc.Unknown {
			var psrpcErr psrpc.Error
			if errors.As(err, &psrpcErr) {
				code = psrpcErr.Code()
			}
		}
		errStr = append(errStr, err.Error())
	}

	return psrpc.NewErrorf(code, "%s", strings.Join(errStr, "\n"))
}
