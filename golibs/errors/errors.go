// Copyright 2023 The acquirecloud Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// The general class of errors any service in the system may return. Callers
// should compare against these with Is (or the standard errors.Is) rather
// than against concrete types. ErrInvalid, ErrNotExist and ErrExist are the
// os package errors, so file-system errors match them as well.
var (
	ErrClosed        = stderrors.New("closed")
	ErrInternal      = stderrors.New("internal error")
	ErrExhausted     = stderrors.New("resource exhausted")
	ErrInvalid       = os.ErrInvalid
	ErrNotExist      = os.ErrNotExist
	ErrExist         = os.ErrExist
	ErrDataLoss      = stderrors.New("data loss")
	ErrConflict      = stderrors.New("conflict")
	ErrCanceled      = stderrors.New("canceled")
	ErrNotAuthorized = stderrors.New("not authorized")
	ErrUnimplemented = stderrors.New("not implemented")
	ErrCommunication = stderrors.New("communication error")
)

const jsonErrorMarker = "\x00__eobj__\x00"

// As is a re-export of the standard errors.As, kept here so callers only need
// to import this package when working with the general error classes.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is reports whether err matches target, either through the standard
// unwrapping chain or, if err is a gRPC status error, through the mapping
// FromGRPCError establishes between gRPC codes and the general errors here.
func Is(err, target error) bool {
	if stderrors.Is(err, target) {
		return true
	}
	if code := status.Code(err); code != codes.Unknown {
		return FromGRPCError(err) == target
	}
	return false
}

// EmbedObject returns an error which wraps err and carries obj as a JSON
// payload recoverable with ExtractObject. obj and err must not be nil, and
// err must not already carry an embedded object.
func EmbedObject(obj any, err error) error {
	if obj == nil {
		panic("errors.EmbedObject: obj must not be nil")
	}
	if err == nil {
		panic("errors.EmbedObject: err must not be nil")
	}
	if strings.Contains(err.Error(), jsonErrorMarker) {
		panic("errors.EmbedObject: err already carries an embedded object")
	}
	buf, mErr := json.Marshal(obj)
	if mErr != nil {
		panic(fmt.Sprintf("errors.EmbedObject: could not marshal object: %v", mErr))
	}
	return fmt.Errorf("%s%s%s: %w", jsonErrorMarker, buf, jsonErrorMarker, err)
}

// ExtractObject looks for a JSON payload embedded by EmbedObject anywhere in
// err's message and, if found, unmarshals it into target. It returns false if
// err is nil, carries no embedded payload, or the payload does not unmarshal
// into T.
func ExtractObject[T any](err error, target *T) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	start := strings.Index(s, jsonErrorMarker)
	if start < 0 {
		return false
	}
	rest := s[start+len(jsonErrorMarker):]
	end := strings.Index(rest, jsonErrorMarker)
	if end < 0 {
		return false
	}
	return json.Unmarshal([]byte(rest[:end]), target) == nil
}
