// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package env abstracts the runtime environment the engine suspends against.
package env

import (
	"context"
	"time"
)

// Environment provides timers to the engine. The shard verifier uses it to
// poll for not-yet-committed shard blocks; tests substitute an instant clock.
type Environment interface {
	// SetTimer suspends the calling task for at least ms milliseconds or
	// until the context is cancelled.
	SetTimer(ctx context.Context, ms uint32) error
}

// RealEnvironment sleeps on the wall clock.
type RealEnvironment struct{}

// SetTimer implements Environment.
func (RealEnvironment) SetTimer(ctx context.Context, ms uint32) error {
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
