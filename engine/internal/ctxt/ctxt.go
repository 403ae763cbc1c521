// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package ctxt provides the GPU driver used in the engine.
package ctxt

import (
	"errors"
	"strings"
	"sync"

	"github.com/gviegas/rgraph"
	"github.com/gviegas/rgraph/driver"
	_ "github.com/gviegas/rgraph/driver/soft"
)

var (
	mu     sync.Mutex
	drv    driver.Driver
	gpu    driver.GPU
	limits driver.Limits
)

var errNoDriver = errors.New("ctxt: driver not found")

// loadDriver attempts to load any driver whose name
// contains the name string. It is case insensitive.
// If name is the empty string, then all registered
// drivers are considered.
// It assumes that the drv and gpu vars hold invalid
// values and replaces both on success.
// The limits var is queried from the new gpu.
func loadDriver(name string) error {
	drivers := driver.Drivers()
	err := errNoDriver
	name = strings.ToLower(name)
	for i := range drivers {
		if !strings.Contains(strings.ToLower(drivers[i].Name()), name) {
			continue
		}
		var u driver.GPU
		if u, err = drivers[i].Open(); err != nil {
			continue
		}
		drv = drivers[i]
		gpu = u
		limits = gpu.Limits()
		rgraph.Logger().Info("driver selected", "name", drv.Name())
		return nil
	}
	return err
}

// Open loads the driver if it has not been loaded yet.
// name is matched as in loadDriver. Once a driver is
// loaded, name is ignored.
func Open(name string) (driver.GPU, error) {
	mu.Lock()
	defer mu.Unlock()
	if gpu != nil {
		return gpu, nil
	}
	if err := loadDriver(name); err != nil {
		return nil, err
	}
	return gpu, nil
}

// Close closes the driver.
// A later call to Open loads a driver again.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if drv != nil {
		drv.Close()
	}
	drv, gpu, limits = nil, nil, driver.Limits{}
}

// Driver returns the driver.Driver.
func Driver() driver.Driver {
	mu.Lock()
	defer mu.Unlock()
	return drv
}

// GPU returns the driver.GPU.
func GPU() driver.GPU {
	mu.Lock()
	defer mu.Unlock()
	return gpu
}

// Limits returns GPU().Limits().
// This value is retrieved only once. It must not be
// changed by the caller.
func Limits() *driver.Limits { return &limits }
