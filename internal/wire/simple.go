package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/macpod/lasershark-go/types"
)

// Simple protocol: a request is one command byte plus an optional 1 or 4
// byte little-endian argument. Every response is exactly 64 bytes:
//
//	[0] echoed command
//	[1] status, 0 = success
//	[2:64] payload
const (
	ResponseLen = 64

	ResponseStatusSuccess = 0x00

	responseEchoIndex    = 0
	responseStatusIndex  = 1
	responsePayloadIndex = 2
)

// Control channel commands.
const (
	CmdSetOutput                     = 0x80
	CmdGetOutput                     = 0x81
	CmdSetILDARate                   = 0x82
	CmdGetILDARate                   = 0x83
	CmdGetMaxILDARate                = 0x84
	CmdGetSampElementCount           = 0x85
	CmdGetPacketSampCount            = 0x86
	CmdGetDACMin                     = 0x87
	CmdGetDACMax                     = 0x88
	CmdGetRingbufferSampleCount      = 0x89
	CmdGetRingbufferEmptySampleCount = 0x8A
	CmdGetFWMajorVersion             = 0x8B
	CmdGetFWMinorVersion             = 0x8C
	CmdClearRingbuffer               = 0x8D
	CmdGetBulkPacketSampCount        = 0x8E
)

// Stepper and relay registers of the printer firmware variant.
const (
	CmdStepper1StepTowardsHome  = 0xA0
	CmdStepper1StepAwayFromHome = 0xA1
	CmdStepper2StepTowardsHome  = 0xA2
	CmdStepper2StepAwayFromHome = 0xA3
	CmdStepperHome              = 0xA4
	CmdGetR1                    = 0xA5
	CmdGetR2                    = 0xA6
	CmdSetStepper1HomeDir       = 0xA7
	CmdSetStepper2HomeDir       = 0xA8
	CmdSetStepperStepDelayMS    = 0xA9
)

const (
	OutputDisable = 0
	OutputEnable  = 1
)

// Request is an encoded simple request.
type Request []byte

// Command returns the command byte of the request.
func (r Request) Command() byte {
	return r[0]
}

// EncodeRequest returns a request without an argument.
func EncodeRequest(cmd byte) Request {
	return Request{cmd}
}

// EncodeRequestU8 returns a request carrying one byte.
func EncodeRequestU8(cmd byte, v uint8) Request {
	return Request{cmd, v}
}

// EncodeRequestU32 returns a request carrying a little-endian uint32.
func EncodeRequestU32(cmd byte, v uint32) Request {
	r := make(Request, 5)
	r[0] = cmd
	binary.LittleEndian.PutUint32(r[1:], v)
	return r
}

// DecodeResponse checks a response to cmd and returns its payload.
func DecodeResponse(cmd byte, buf []byte) ([]byte, error) {
	if len(buf) != ResponseLen {
		return nil, types.CommandError(types.ErrCommandFailed, "decode", cmd, ResponseLen, len(buf), -1, nil)
	}
	if buf[responseEchoIndex] != cmd {
		return nil, types.CommandError(types.ErrCommandFailed, "decode", cmd, ResponseLen, len(buf), -1,
			fmt.Errorf("response echoes command 0x%02x", buf[responseEchoIndex]))
	}
	if s := buf[responseStatusIndex]; s != ResponseStatusSuccess {
		return nil, types.CommandError(types.ErrCommandFailed, "decode", cmd, ResponseLen, len(buf), int(s), nil)
	}
	return buf[responsePayloadIndex:], nil
}

// PayloadU8 reads the first payload byte.
func PayloadU8(payload []byte) uint8 {
	return payload[0]
}

// PayloadU32 reads the first four payload bytes as little-endian.
func PayloadU32(payload []byte) uint32 {
	return binary.LittleEndian.Uint32(payload[:4])
}
