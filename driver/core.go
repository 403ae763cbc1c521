// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Commit commits a batch of command buffers to the GPU
	// for execution.
	// All command buffers in wk.Work must have been created
	// for the same queue. Execution waits on every semaphore
	// in wk.Wait (at the scope given by the matching element
	// of wk.WaitSync) and signals every semaphore in
	// wk.Signal upon completion.
	// When execution completes, wk.Err is set and wk is sent
	// on ch, which acts as the fence of the submission.
	// Command buffers in wk.Work cannot be used for
	// recording until then.
	// Commit itself never blocks waiting for execution.
	Commit(wk *WorkItem, ch chan<- *WorkItem) error

	// NewCmdBuffer creates a new command buffer whose
	// commands will execute on queue q.
	NewCmdBuffer(q Queue) (CmdBuffer, error)

	// NewSemaphore creates a new semaphore for GPU-side
	// synchronization between submissions.
	NewSemaphore() (Semaphore, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new image.
	NewImage(pf PixelFmt, size Dim3D, layers, levels int, usg Usage) (Image, error)

	// NewDescPool creates a new descriptor pool with room
	// for sets descriptor sets. The number of descriptors
	// of each type is sets times the type's ratio.
	NewDescPool(sets int, ratios []DescRatio) (DescPool, error)

	// Queues returns the queue families used for graphics
	// and transfer commands.
	Queues() Queues

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// Queue identifies a queue family.
type Queue int

// QIgnored means that no queue family ownership transfer
// takes place.
const QIgnored Queue = -1

// Queues describes the queue families of a GPU.
type Queues struct {
	// Graphics executes every kind of command.
	Graphics Queue
	// Transfer executes copy commands. It is equal to
	// Graphics when the device has no transfer-only
	// family.
	Transfer Queue
}

// Dedicated returns whether the transfer queue is distinct
// from the graphics queue.
// Resources written on a dedicated transfer queue must be
// released and acquired explicitly before use on the
// graphics queue.
func (q Queues) Dedicated() bool { return q.Graphics != q.Transfer }

// Semaphore is the interface that defines a GPU semaphore.
// Semaphores order submissions, possibly across queues.
type Semaphore interface {
	Destroyer
}

// WorkItem is a batch of command buffers to commit.
type WorkItem struct {
	Work []CmdBuffer
	// Wait and WaitSync must have the same length.
	Wait     []Semaphore
	WaitSync []Sync
	Signal   []Semaphore
	// Err is set when execution completes.
	Err error
	// Custom is not used by the driver.
	Custom any
}

// Syncer is the interface that records synchronization
// commands.
// Every call records a single batch; the driver is free
// to merge the elements of a batch into one command.
type Syncer interface {
	// Barrier inserts a number of global barriers.
	Barrier(b []Barrier)

	// Transition inserts a number of image barriers,
	// possibly changing layouts and queue ownership.
	Transition(t []Transition)

	// BufBarrier inserts a number of buffer barriers,
	// possibly changing queue ownership.
	BufBarrier(b []BufBarrier)
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// committed to the GPU for execution. The usage is as
// follows: call Begin, record commands (draw commands only
// between BeginPass and EndPass), call End and, if it
// succeeds, GPU.Commit.
type CmdBuffer interface {
	Destroyer
	Syncer

	// Queue returns the queue on which the command buffer
	// executes.
	Queue() Queue

	// Begin prepares the command buffer for recording.
	Begin() error

	// IsRecording returns whether the command buffer is
	// between Begin and End.
	IsRecording() bool

	// End ends command recording and prepares the
	// command buffer for execution.
	// Upon failure, the command buffer is reset.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	Reset() error

	// BeginPass begins rendering into the given targets.
	// Color targets must be in the LColorTarget layout and
	// the depth target (if any) in the LDSTarget layout.
	BeginPass(pass *Pass)

	// EndPass ends the current render pass.
	EndPass()

	// SetPipeline sets the pipeline.
	SetPipeline(pl Pipeline)

	// SetViewport sets the bounds of one or more
	// viewports.
	SetViewport(vp []Viewport)

	// SetScissor sets the rectangles of one or more
	// viewport scissors.
	SetScissor(sciss []Scissor)

	// SetVertexBuf sets one or more vertex buffers.
	SetVertexBuf(start int, buf []Buffer, off []int64)

	// SetIndexBuf sets the index buffer.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// SetDescSet binds a descriptor set at index start.
	SetDescSet(set DescSet, start int)

	// Draw draws primitives.
	// It must only be called during a render pass.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawIndexed draws indexed primitives.
	// It must only be called during a render pass.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// CopyBufToImg copies data from a buffer to an image.
	// The image must be in the LCopyDst layout.
	CopyBufToImg(param *BufImgCopy)

	// CopyImgToBuf copies data from an image to a buffer.
	// The image must be in the LCopySrc layout.
	CopyImgToBuf(param *BufImgCopy)

	// Blit copies a region of an image into a region of
	// another image, scaling as needed.
	// The source must be in the LCopySrc layout and the
	// destination in the LCopyDst layout.
	Blit(param *ImageBlit)

	// Fill fills a buffer range with copies of a byte
	// value.
	// off and size must be aligned to 4 bytes.
	Fill(buf Buffer, off int64, value byte, size int64)
}

// Pass describes the targets of a render pass.
type Pass struct {
	Width, Height int
	Color         []Target
	// DS is optional.
	DS *Target
}

// Target is a render target.
type Target struct {
	Img   Image
	Layer int
	Level int
	Load  LoadOp
	Clear ClearValue
}

// LoadOp is the type of a target's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// ClearValue defines clear values for color or depth/stencil
// aspects of a render target.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// BufImgCopy describes the parameters of a copy command
// that copies data between a buffer and an image.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	// Stride specifies the addressing of image data
	// in the buffer. It is given in pixels.
	// Stride[0] refers to the row length and Stride[1]
	// refers to the image height.
	Stride [2]int
	Img    Image
	ImgOff Off3D
	Layer  int
	Level  int
	Size   Dim3D
	Layers int
}

// ImageBlit describes the parameters of a blit command.
// Regions are given as [min, max) corners.
type ImageBlit struct {
	From      Image
	FromLayer int
	FromLevel int
	FromRect  [2]Off3D
	To        Image
	ToLayer   int
	ToLevel   int
	ToRect    [2]Off3D
	Filter    Filter
}

// Filter is the type of blit filters.
type Filter int

// Filters.
const (
	FNearest Filter = iota
	FLinear
)

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SVertexInput Sync = 1 << iota
	SVertexShading
	SFragmentShading
	SComputeShading
	SColorOutput
	SDSOutput
	SDraw
	SResolve
	SCopy
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AVertexBufRead Access = 1 << iota
	AIndexBufRead
	AConstRead
	AColorRead
	AColorWrite
	ADSRead
	ADSWrite
	AResolveRead
	AResolveWrite
	ACopyRead
	ACopyWrite
	AShaderRead
	AShaderWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

const writeMask = AColorWrite | ADSWrite | AResolveWrite | ACopyWrite | AShaderWrite | AAnyWrite

// Writes returns the write accesses in a.
func (a Access) Writes() Access { return a & writeMask }

// Reads returns the read accesses in a.
func (a Access) Reads() Access { return a &^ writeMask }

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LCommon
	LColorTarget
	LDSTarget
	LDSRead
	LResolveSrc
	LResolveDst
	LCopySrc
	LCopyDst
	LShaderRead
	LPresent
)

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// Transition represents a barrier on a specific image
// subresource range.
// If QueueBefore and QueueAfter differ, the barrier is
// one half of a queue ownership transfer: it must be
// recorded on QueueBefore (release) and again on
// QueueAfter (acquire), with identical layouts.
type Transition struct {
	Barrier

	LayoutBefore Layout
	LayoutAfter  Layout
	QueueBefore  Queue
	QueueAfter   Queue
	Img          Image
	Layer        int
	Layers       int
	Level        int
	Levels       int
}

// BufBarrier represents a barrier on a buffer range.
// A Size of 0 covers the range from Off to the end of
// the buffer.
// Queue ownership transfers work as in Transition.
type BufBarrier struct {
	Barrier

	QueueBefore Queue
	QueueAfter  Queue
	Buf         Buffer
	Off         int64
	Size        int64
}

// Pipeline is the interface that defines a GPU pipeline.
// It is opaque to the command graph.
type Pipeline interface {
	Destroyer
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SVertex Stage = 1 << iota
	SFragment
	SCompute
)

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Read/write image.
	DImage
	// Constant buffer.
	DConstant
	// Sampled texture.
	DTexture
	// Texture sampler.
	DSampler
)

// Descriptor describes data for use in shaders.
type Descriptor struct {
	Type   DescType
	Stages Stage
	Nr     int
	Len    int
}

// DescRatio is the number of descriptors of a given type
// that a descriptor pool reserves per descriptor set.
type DescRatio struct {
	Type  DescType
	Ratio float32
}

// DescPool is the interface that defines a pool from
// which descriptor sets are allocated.
type DescPool interface {
	Destroyer

	// Alloc allocates a descriptor set with the given
	// layout. It returns ErrPoolExhausted if the pool has
	// no room left.
	Alloc(layout []Descriptor) (DescSet, error)

	// Reset frees every set allocated from the pool.
	Reset() error
}

// DescSet is the interface that defines a set of
// descriptors for use in programmable pipeline stages.
type DescSet interface {
	// SetBuffer updates the buffer ranges referred by the
	// given descriptor.
	SetBuffer(nr, start int, buf []Buffer, off, size []int64)

	// SetImage updates the images referred by the given
	// descriptor.
	SetImage(nr, start int, img []Image)
}

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, Znear, Zfar float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample
	// The resource can provide vertex data for draw calls.
	// Valid only for Buffer.
	UVertexData
	// The resource can provide index data for draw calls.
	// Valid only for Buffer.
	UIndexData
	// The resource can be used as render target.
	// Valid only for Image.
	URenderTarget
	// The resource can be the source of copies.
	UCopySrc
	// The resource can be the destination of copies.
	UCopyDst
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	Cap() int64
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FInvalid PixelFmt = iota
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	RG8un
	R8un
	RGBA16f
	RGBA32f
	R32f
	D16un
	D32f
	D24unS8ui
)

// Size returns the size in bytes of a pixel.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA8un, RGBA8sRGB, BGRA8un, BGRA8sRGB, R32f, D32f, D24unS8ui:
		return 4
	case RG8un, D16un:
		return 2
	case R8un:
		return 1
	case RGBA16f:
		return 8
	case RGBA32f:
		return 16
	}
	return 0
}

// IsDS returns whether f is a depth/stencil format.
func (f PixelFmt) IsDS() bool { return f >= D16un && f <= D24unS8ui }

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// Image is the interface that defines a GPU image.
type Image interface {
	Destroyer

	// Format returns the image's PixelFmt.
	Format() PixelFmt

	// Size returns the size of the first level.
	Size() Dim3D

	// Layers returns the number of layers.
	Layers() int

	// Levels returns the number of mip levels.
	Levels() int
}

// Limits describes implementation limits.
type Limits struct {
	// Maximum width and height of 2D images.
	MaxImage2D int
	// Maximum number of layers in an image.
	MaxLayers int
	// Maximum size of a buffer.
	MaxBuffer int64
	// Maximum number of color targets in a pass.
	MaxColorTargets int
	// Maximum number of vertex buffers bound at once.
	MaxVertexIn int
}
