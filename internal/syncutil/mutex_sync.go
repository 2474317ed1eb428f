//go:build !deadlock

// Package syncutil holds the mutex types used across the module. Building with
// -tags=deadlock swaps them for github.com/sasha-s/go-deadlock implementations.
package syncutil

import "sync"

// Mutex is a plain sync.Mutex unless built with -tags=deadlock.
type Mutex struct {
	sync.Mutex
}

// RWMutex is a plain sync.RWMutex unless built with -tags=deadlock.
type RWMutex struct {
	sync.RWMutex
}
