package wire

import (
	"encoding/binary"

	"github.com/macpod/lasershark-go/types"
)

// SampleLen is the size of one packed sample: four little-endian words.
const SampleLen = 8

const (
	sampleAMask = 0x0FFF
	sampleCBit  = 1 << 14
	sampleIntlA = 1 << 15
	sampleWordA = 0
	sampleWordB = 2
	sampleWordX = 4
	sampleWordY = 6
)

// PackSample writes s into dst[0:8]. Bits 12 and 13 of the first word
// are reserved and always zero.
func PackSample(dst []byte, s types.Sample) {
	w := s.A & sampleAMask
	if s.C {
		w |= sampleCBit
	}
	if s.IntlA {
		w |= sampleIntlA
	}
	binary.LittleEndian.PutUint16(dst[sampleWordA:], w)
	binary.LittleEndian.PutUint16(dst[sampleWordB:], s.B)
	binary.LittleEndian.PutUint16(dst[sampleWordX:], s.X)
	binary.LittleEndian.PutUint16(dst[sampleWordY:], s.Y)
}

// UnpackSample reads a sample written by PackSample.
func UnpackSample(src []byte) types.Sample {
	w := binary.LittleEndian.Uint16(src[sampleWordA:])
	return types.Sample{
		A:     w & sampleAMask,
		C:     w&sampleCBit != 0,
		IntlA: w&sampleIntlA != 0,
		B:     binary.LittleEndian.Uint16(src[sampleWordB:]),
		X:     binary.LittleEndian.Uint16(src[sampleWordX:]),
		Y:     binary.LittleEndian.Uint16(src[sampleWordY:]),
	}
}
