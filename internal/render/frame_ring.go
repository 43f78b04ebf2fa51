package render

import (
	"sync/atomic"
)

// RingSize is the number of frame slots in the ring buffer. At one frame
// every 30 ticks that is about 16 seconds of slack for a slow disk.
const RingSize = 16

// Frame is one encoded PNG.
type Frame struct {
	Tick uint64
	Data []byte
}

// FrameRing buffers encoded frames between the renderer and the writer.
// It is single-producer single-consumer and lock-free; when full, new frames
// are dropped rather than blocking the renderer.
type FrameRing struct {
	frames   [RingSize]Frame
	readIdx  uint32 // atomic - consumer index
	writeIdx uint32 // atomic - producer index

	framesWritten uint64
	framesDropped uint64
	framesRead    uint64
}

// NewFrameRing creates an empty ring.
func NewFrameRing() *FrameRing {
	return &FrameRing{}
}

// TryWrite stores f. Returns false if the ring is full and the frame was
// dropped.
func (rb *FrameRing) TryWrite(f Frame) bool {
	currentWrite := atomic.LoadUint32(&rb.writeIdx)
	nextWrite := (currentWrite + 1) % RingSize

	if nextWrite == atomic.LoadUint32(&rb.readIdx) {
		atomic.AddUint64(&rb.framesDropped, 1)
		return false
	}

	rb.frames[currentWrite] = f
	atomic.StoreUint32(&rb.writeIdx, nextWrite)
	atomic.AddUint64(&rb.framesWritten, 1)
	return true
}

// TryRead takes the oldest frame, if any.
func (rb *FrameRing) TryRead() (Frame, bool) {
	readIdx := atomic.LoadUint32(&rb.readIdx)
	if readIdx == atomic.LoadUint32(&rb.writeIdx) {
		return Frame{}, false
	}

	f := rb.frames[readIdx]
	rb.frames[readIdx] = Frame{}
	atomic.StoreUint32(&rb.readIdx, (readIdx+1)%RingSize)
	atomic.AddUint64(&rb.framesRead, 1)
	return f, true
}

// Available returns the number of frames waiting to be read.
func (rb *FrameRing) Available() int {
	readIdx := atomic.LoadUint32(&rb.readIdx)
	writeIdx := atomic.LoadUint32(&rb.writeIdx)

	if writeIdx >= readIdx {
		return int(writeIdx - readIdx)
	}
	return int(RingSize - readIdx + writeIdx)
}

// GetStats returns ring statistics.
func (rb *FrameRing) GetStats() (written, dropped, read uint64) {
	return atomic.LoadUint64(&rb.framesWritten),
		atomic.LoadUint64(&rb.framesDropped),
		atomic.LoadUint64(&rb.framesRead)
}
