package realtime

import (
	"sync/atomic"

	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

// Ring is a single-producer, single-consumer ring of packed samples.
// Indices count samples and run freely; the mask maps them into buf.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32
	wr   atomic.Uint32

	readable chan struct{}
}

// NewRing returns a ring holding size samples. size must be a power of
// two of at least 2.
func NewRing(size int) *Ring {
	if size < 2 || size&(size-1) != 0 {
		panic("realtime: ring size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size*wire.SampleLen),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return r.mask + 1 }

// Len is the number of samples waiting.
func (r *Ring) Len() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Space is the number of samples that fit before the ring is full.
func (r *Ring) Space() int {
	return int(r.size()) - r.Len()
}

// Write packs as many samples as fit and returns how many did. It never
// blocks. Producer side only.
func (r *Ring) Write(samples []types.Sample) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	before := wr - rd
	n := int(r.size() - before)
	if n > len(samples) {
		n = len(samples)
	}
	if n == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		off := int((wr+uint32(i))&r.mask) * wire.SampleLen
		wire.PackSample(r.buf[off:off+wire.SampleLen], samples[i])
	}
	r.wr.Store(wr + uint32(n))

	if before == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// ReadPacket fills dst with len(dst)/wire.SampleLen samples if that many
// are waiting, and reports whether it did. Consumer side only.
func (r *Ring) ReadPacket(dst []byte) bool {
	want := uint32(len(dst) / wire.SampleLen)
	rd := r.rd.Load()
	wr := r.wr.Load()
	if want == 0 || wr-rd < want {
		return false
	}
	for i := uint32(0); i < want; i++ {
		off := int((rd+i)&r.mask) * wire.SampleLen
		copy(dst[int(i)*wire.SampleLen:], r.buf[off:off+wire.SampleLen])
	}
	r.rd.Store(rd + want)
	return true
}

// Readable is signalled when the ring goes from empty to non-empty.
func (r *Ring) Readable() <-chan struct{} { return r.readable }
