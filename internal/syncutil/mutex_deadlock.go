//go:build deadlock

// Package syncutil holds the mutex types used across the module.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// A status change wait can legitimately block for a long time, but no lock in
// this module is held across one.
func init() {
	deadlock.Opts.DeadlockTimeout = 10 * time.Second
}

// Mutex is a deadlock-detecting mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock-detecting read/write mutex.
type RWMutex struct {
	deadlock.RWMutex
}
