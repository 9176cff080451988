// Copyright 2025 ram-hammer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package hammer

import "github.com/pkg/errors"

func pin(worker int) error {
	return errors.New("thread affinity is not supported on this OS")
}
