// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package driver defines the contract between the command
// graph and an underlying GPU implementation.
// It covers command recording, synchronization (barriers,
// layout transitions and queue ownership transfers),
// submission with semaphores and completion notification,
// resource creation and descriptor pools.
package driver

import (
	"errors"
	"sync"

	"github.com/gviegas/rgraph"
)

// Driver is the interface that provides methods for
// loading and unloading an underlying implementation.
type Driver interface {
	// Open initializes the driver.
	// If it succeeds, further calls with the same receiver
	// have no effect and must return the same GPU instance.
	// Callers should assume that Open is not safe for
	// parallel execution.
	Open() (GPU, error)

	// Name returns the name of the driver.
	// It must not cause the driver to be opened.
	Name() string

	// Close deinitializes the driver.
	// Closing a driver that is not open has no effect.
	Close()
}

// ErrNotInstalled means that a platform-specific library
// required for the driver to work is not present in the
// system.
var ErrNotInstalled = errors.New("driver: missing required library")

// ErrNoDevice means that no suitable device could be
// found.
var ErrNoDevice = errors.New("driver: no suitable device found")

// ErrNoHostMemory means that host memory could not be
// allocated.
var ErrNoHostMemory = errors.New("driver: out of host memory")

// ErrNoDeviceMemory means that device memory could not
// be allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrPoolExhausted means that a descriptor pool has no
// room left for the requested allocation.
// The pool remains valid and can be reset.
var ErrPoolExhausted = errors.New("driver: descriptor pool exhausted")

// ErrFatal means that the driver is in an unrecoverable
// state. Upon encountering such an error, the application
// must destroy everything that it created using the
// driver's GPU and then call the Close method.
var ErrFatal = errors.New("driver: fatal error")

// Drivers returns the registered Drivers.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Register registers a Driver.
// Driver implementations are expected to call Register
// exactly once, from an init function.
// If a driver with the same name has already been
// registered, it will be replaced by drv.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			rgraph.Logger().Warn("driver replaced", "name", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
	rgraph.Logger().Info("driver registered", "name", drv.Name())
}

var (
	mu      sync.Mutex
	drivers = make([]Driver, 0, 1)
)
