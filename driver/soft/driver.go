// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package soft implements driver interfaces in software.
//
// Commands are recorded in host memory and executed in
// submission order by one goroutine per queue family.
// Copies, fills, clears and blits operate on host copies of
// resource contents; draw commands are only recorded.
// The driver validates image layouts and queue family
// ownership as commands execute, and reports violations
// through Driver.Violations instead of failing, so that
// tests can assert on them.
package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gviegas/rgraph"
	"github.com/gviegas/rgraph/driver"
)

const (
	driverName    = "soft"
	driverNameDTQ = "soft-transfer"
)

// Config configures a software driver.
type Config struct {
	// DedicatedTransfer exposes a transfer-only queue
	// family distinct from the graphics family.
	DedicatedTransfer bool

	// MaxImage is the maximum width/height of images.
	// Zero means 16384.
	MaxImage int

	// MaxBuffer is the maximum buffer size, in bytes.
	// Zero means 1 GiB.
	MaxBuffer int64

	// Surface is the size of swapchain images.
	// Zero means 640x480.
	Surface driver.Dim3D
}

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	cfg Config

	mu     sync.Mutex
	open   bool
	queues []*queue
	log    []Submission
	viol   []string
	seq    int
	owner  map[any]driver.Queue
	pend   map[any]driver.Queue
	layout map[*image]driver.Layout
}

// inTransit marks a resource released but not yet acquired.
const inTransit driver.Queue = -2

// New creates a new software driver.
// It is not registered.
func New(cfg Config) *Driver {
	if cfg.MaxImage <= 0 {
		cfg.MaxImage = 16384
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = 1 << 30
	}
	if cfg.Surface.Width <= 0 || cfg.Surface.Height <= 0 {
		cfg.Surface = driver.Dim3D{Width: 640, Height: 480}
	}
	return &Driver{cfg: cfg}
}

func init() {
	driver.Register(New(Config{}))
	driver.Register(New(Config{DedicatedTransfer: true}))
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return d, nil
	}
	d.queues = make([]*queue, d.nqueue())
	for i := range d.queues {
		d.queues[i] = newQueue(d, driver.Queue(i))
	}
	d.owner = make(map[any]driver.Queue)
	d.pend = make(map[any]driver.Queue)
	d.layout = make(map[*image]driver.Layout)
	d.open = true
	return d, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	if d.cfg.DedicatedTransfer {
		return driverNameDTQ
	}
	return driverName
}

// Close deinitializes the driver.
// It waits for queued work to finish executing.
func (d *Driver) Close() {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return
	}
	qs := d.queues
	d.queues = nil
	d.open = false
	d.mu.Unlock()
	for _, q := range qs {
		q.stop()
	}
}

// Driver returns d.
func (d *Driver) Driver() driver.Driver { return d }

// Queues returns the queue families of d.
func (d *Driver) Queues() driver.Queues {
	if d.cfg.DedicatedTransfer {
		return driver.Queues{Graphics: 0, Transfer: 1}
	}
	return driver.Queues{Graphics: 0, Transfer: 0}
}

// Limits returns the implementation limits.
func (d *Driver) Limits() driver.Limits {
	return driver.Limits{
		MaxImage2D:      d.cfg.MaxImage,
		MaxLayers:       2048,
		MaxBuffer:       d.cfg.MaxBuffer,
		MaxColorTargets: 8,
		MaxVertexIn:     16,
	}
}

// Submission is the record of an executed WorkItem.
type Submission struct {
	// Seq is the global execution order.
	Seq      int
	Queue    driver.Queue
	Wait     []driver.Semaphore
	WaitSync []driver.Sync
	Signal   []driver.Semaphore
	Cmds     []Cmd
}

// Log returns the submissions executed so far, in
// execution order.
func (d *Driver) Log() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := make([]Submission, len(d.log))
	copy(s, d.log)
	return s
}

// ClearLog discards the recorded submissions and
// violations.
func (d *Driver) ClearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = d.log[:0]
	d.viol = d.viol[:0]
}

// Violations returns the validation failures detected so
// far.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := make([]string, len(d.viol))
	copy(v, d.viol)
	return v
}

// violate records a validation failure.
// d.mu must be held.
func (d *Driver) violate(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	d.viol = append(d.viol, s)
	rgraph.Logger().Warn("soft: validation failure", "reason", s)
}

var errNotOpen = errors.New("soft: driver not open")

// Commit commits a batch of command buffers for execution.
func (d *Driver) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	if len(wk.Wait) != len(wk.WaitSync) {
		return errors.New("soft: Wait/WaitSync length mismatch")
	}
	if len(wk.Work) == 0 {
		return errors.New("soft: empty WorkItem")
	}
	q := wk.Work[0].Queue()
	for _, x := range wk.Work {
		cb := x.(*cmdBuffer)
		if cb.q != q {
			return errors.New("soft: command buffers from different queues")
		}
		if cb.status != cbEnded {
			return errors.New("soft: command buffer not ended")
		}
	}
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return errNotOpen
	}
	que := d.queues[q]
	d.mu.Unlock()
	for _, x := range wk.Work {
		x.(*cmdBuffer).status = cbPending
	}
	if err := que.push(job{wk: wk, ch: ch}); err != nil {
		for _, x := range wk.Work {
			x.(*cmdBuffer).status = cbEnded
		}
		return err
	}
	return nil
}

// NewCmdBuffer creates a new command buffer.
func (d *Driver) NewCmdBuffer(q driver.Queue) (driver.CmdBuffer, error) {
	if q < 0 || int(q) >= d.nqueue() {
		return nil, errors.New("soft: invalid queue")
	}
	return &cmdBuffer{d: d, q: q}, nil
}

// nqueue returns the number of queue families.
func (d *Driver) nqueue() int {
	if d.cfg.DedicatedTransfer {
		return 2
	}
	return 1
}
