package realtime

import (
	"github.com/macpod/lasershark-go/types"
)

func scale(v, lo, hi float64, caps types.Capabilities) uint16 {
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	span := float64(caps.DACMax - caps.DACMin)
	return uint16((v-lo)*span/(hi-lo) + float64(caps.DACMin))
}

// FromSignal turns an audio style frame into a sample: power in [0, 1]
// drives A and B, x and y in [-1, 1] the galvos, with y inverted. C is on
// when power is at least half the DAC range; IntlA is always on. A is
// capped at 12 bits.
func FromSignal(power, x, y float64, caps types.Capabilities) types.Sample {
	a := scale(power, 0, 1, caps)
	return types.Sample{
		X:     scale(x, -1, 1, caps),
		Y:     scale(-y, -1, 1, caps),
		A:     min(a, types.MaxA),
		B:     a,
		C:     uint32(a) >= (caps.DACMax+caps.DACMin)/2,
		IntlA: true,
	}
}
