package types

// Shared value types for the device session. Everything here is plain
// data; packing to and from the wire lives in internal/wire.

const (
	VendorLasershark  = 0x1fc9
	ProductLasershark = 0x04d8
)

// MaxA is the largest value representable in the 12-bit A channel.
const MaxA = 0x0fff

// Sample is one laser point.
type Sample struct {
	X     uint16
	Y     uint16
	A     uint16 // 12 bits used
	B     uint16
	C     bool // TTL output bit
	IntlA bool // interlock bit
}

// Capabilities is what the device reports about itself at session start.
// It is negotiated once and copied by value afterwards.
type Capabilities struct {
	SampElementCount      uint32 `json:"sampElementCount"`
	PacketSampleCount     uint32 `json:"packetSampleCount"`     // isochronous path
	BulkPacketSampleCount uint32 `json:"bulkPacketSampleCount"` // bulk path
	MaxILDARate           uint32 `json:"maxIldaRate"`
	DACMin                uint32 `json:"dacMin"`
	DACMax                uint32 `json:"dacMax"`
	RingbufferSampleCount uint32 `json:"ringbufferSampleCount"`
	FWMajor               uint32 `json:"fwMajor"`
	FWMinor               uint32 `json:"fwMinor"`
}

// InDACRange reports whether v lies within [DACMin, DACMax].
func (c Capabilities) InDACRange(v uint16) bool {
	return uint32(v) >= c.DACMin && uint32(v) <= c.DACMax
}

type DeviceInfo struct {
	Serial  string `json:"serial"`
	Bus     int    `json:"bus"`
	Address int    `json:"address"`
}

// SessionStatus is what the status server shows about the running
// session.
type SessionStatus struct {
	Active  bool         `json:"active"`
	Device  DeviceInfo   `json:"device"`
	Caps    Capabilities `json:"capabilities"`
	Lines   uint64       `json:"lines"`
	Dropped uint64       `json:"dropped"`
}

type VersionInfo struct {
	Version string `json:"version"`
}
