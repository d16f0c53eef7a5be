// Copyright 2026 fanjia1024
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
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
	if wrapped.Error() != "context: base" {
		t.Errorf("message: got %q", wrapped.Error())
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "format %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrapf(err, "idx=%d", 7)
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
	if wrapped.Error() != "idx=7: base" {
		t.Errorf("message: got %q", wrapped.Error())
	}
}

func TestMark(t *testing.T) {
	if Mark(nil, ErrNotFound) != nil {
		t.Error("Mark(nil) should return nil")
	}
	base := errors.New("connection reset")
	marked := Mark(base, ErrNotConfigured)
	if !errors.Is(marked, base) || !errors.Is(marked, ErrNotConfigured) {
		t.Errorf("marked error should match both base and kind: %v", marked)
	}
	if again := Mark(marked, ErrNotConfigured); again != marked {
		t.Error("marking twice with the same kind should be a no-op")
	}
}

func TestIsAny(t *testing.T) {
	err := Wrap(ErrInvalidArg, "parse")
	if !IsAny(err, ErrNotFound, ErrInvalidArg) {
		t.Error("IsAny should match ErrInvalidArg")
	}
	if IsAny(err, ErrNotFound) {
		t.Error("IsAny should not match ErrNotFound")
	}
	if IsAny(err) {
		t.Error("IsAny with no targets should be false")
	}
}
