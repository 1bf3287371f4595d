package audio

import "sync"

// FramePool recycles PCM byte buffers of a fixed size to keep the per-packet
// decode path allocation-free. Buffers returned by Get are always full length;
// Put discards buffers of the wrong size.
type FramePool struct {
	size int
	pool sync.Pool
}

// NewFramePool creates a pool handing out buffers of size bytes.
func NewFramePool(size int) *FramePool {
	p := &FramePool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get returns a buffer of the pool's frame size. Contents are undefined.
func (p *FramePool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put returns buf to the pool. Buffers whose capacity does not match the
// pool's frame size are dropped.
func (p *FramePool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}
