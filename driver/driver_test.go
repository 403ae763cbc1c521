// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"testing"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/driver/soft"
)

func TestDrivers(t *testing.T) {
	drivers := driver.Drivers()
	for i := range drivers {
		name := drivers[i].Name()
		for j := range i {
			if name == drivers[j].Name() {
				t.Error("driver.Drivers: Driver.Name is not unique")
			}
		}
	}
	drivers2 := driver.Drivers()
	if len(drivers) != len(drivers2) {
		t.Error("driver.Drivers: length mismatch")
	} else {
		for i := range drivers {
			if drivers[i].Name() != drivers2[i].Name() {
				t.Error("driver.Drivers: Driver.Name mismatch")
			}
		}
	}
	var found bool
	for _, d := range drivers {
		if d.Name() == "soft" {
			found = true
		}
	}
	if !found {
		t.Error("driver.Drivers: soft driver not registered")
	}
}

func TestRegister(t *testing.T) {
	n := len(driver.Drivers())
	driver.Register(soft.New(soft.Config{}))
	if m := len(driver.Drivers()); m != n {
		t.Fatalf("driver.Register: same name:\nhave %d drivers\nwant %d", m, n)
	}
}

func TestDriverName(t *testing.T) {
	drv := soft.New(soft.Config{})
	name := drv.Name()
	if name == "" {
		t.Error("Driver.Name: name is empty")
	}
	drv.Close()
	if drv.Name() != name {
		t.Error("Driver.Name: unexpected name after call to Close")
	}
	gpu, err := drv.Open()
	if err != nil {
		t.Fatal("Failed to Open drv - cannot continue")
	}
	defer drv.Close()
	if drv.Name() != name {
		t.Error("Driver.Name: unexpected name after call to Open")
	}
	if g, _ := drv.Open(); g != gpu {
		t.Error("Driver.Open: unexpected GPU after second call")
	}
	if gpu.Driver() != driver.Driver(drv) {
		t.Error("GPU.Driver: unexpected Driver value")
	}
}

func TestAccess(t *testing.T) {
	a := driver.ACopyRead | driver.ACopyWrite | driver.AShaderRead
	if w := a.Writes(); w != driver.ACopyWrite {
		t.Fatalf("Access.Writes:\nhave %#x\nwant %#x", w, driver.ACopyWrite)
	}
	if r := a.Reads(); r != driver.ACopyRead|driver.AShaderRead {
		t.Fatalf("Access.Reads:\nhave %#x\nwant %#x", r, driver.ACopyRead|driver.AShaderRead)
	}
	if driver.ANone.Writes() != driver.ANone {
		t.Fatal("Access.Writes: ANone is not empty")
	}
}

func TestPixelFmt(t *testing.T) {
	for _, x := range [...]struct {
		pf   driver.PixelFmt
		size int
		ds   bool
	}{
		{driver.RGBA8un, 4, false},
		{driver.R8un, 1, false},
		{driver.RGBA16f, 8, false},
		{driver.RGBA32f, 16, false},
		{driver.D16un, 2, true},
		{driver.D24unS8ui, 4, true},
		{driver.FInvalid, 0, false},
	} {
		if n := x.pf.Size(); n != x.size {
			t.Fatalf("PixelFmt.Size(%d):\nhave %d\nwant %d", x.pf, n, x.size)
		}
		if ds := x.pf.IsDS(); ds != x.ds {
			t.Fatalf("PixelFmt.IsDS(%d):\nhave %t\nwant %t", x.pf, ds, x.ds)
		}
	}
}

func TestQueuesDedicated(t *testing.T) {
	if (driver.Queues{Graphics: 0, Transfer: 0}).Dedicated() {
		t.Fatal("Queues.Dedicated: unified:\nhave true\nwant false")
	}
	if !(driver.Queues{Graphics: 0, Transfer: 1}).Dedicated() {
		t.Fatal("Queues.Dedicated: dedicated:\nhave false\nwant true")
	}
}
