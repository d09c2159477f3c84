package twostep

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/macpod/lasershark-go/types"
)

// Frames are '=' cmd payload '\r' '\n'. A response carries the status
// byte right after the command, then the value of get commands.
// Lengths are fixed per command and both sides look them up in the
// tables below.

const (
	Version = 0x01

	BufSize = 16

	StartToken = '='
	End1Token  = '\r'
	End2Token  = '\n'

	StatusSuccess = 0x00
	StatusFail    = 0x01
	StatusUnknown = 0xff

	MinRequestLen  = 4
	MinResponseLen = 5

	statusIndex = 2
	valueIndex  = 3
)

const (
	CmdSetSteps           = 0x10
	CmdSetSafeSteps       = 0x11
	CmdSetStepUntilSwitch = 0x12
	CmdStart              = 0x13
	CmdStop               = 0x14
	CmdGetIsMoving        = 0x15
	CmdSetEnable          = 0x16
	CmdGetEnable          = 0x17
	CmdSetMicrosteps      = 0x18
	CmdGetMicrosteps      = 0x19
	CmdSetDir             = 0x1a
	CmdGetDir             = 0x1b
	CmdSetCurrent         = 0x1c
	CmdGetCurrent         = 0x1d
	CmdSet100usDelay      = 0x1e
	CmdGet100usDelay      = 0x1f
	CmdGetSwitchStatus    = 0x30
	CmdGetVersion         = 0x40
)

const (
	Stepper1 = 1
	Stepper2 = 2

	// bitfields for Start and Stop
	Stepper1Bit = 1
	Stepper2Bit = 2
	StepperBoth = Stepper1Bit | Stepper2Bit
)

type Microsteps uint8

const (
	FullStep Microsteps = iota
	HalfStep
	QuarterStep
	SixteenthStep
)

const (
	MaxCurrent  = 4095
	MinDelay    = 1
	SwitchMask  = 0x0F
	SwitchR1A   = 1 << 0
	SwitchR1B   = 1 << 1
	SwitchR2A   = 1 << 2
	SwitchR2B   = 1 << 3
	dirHigh     = 0x01
	dirLow      = 0x00
	enabled     = 0x01
	disabled    = 0x00
	isMoving    = 0x01
	isStopped   = 0x00
	maxStepper  = Stepper2
	maxBitfield = StepperBoth
)

var errUnknownCommand = errors.New("unknown command")

type lengths struct {
	request  int
	response int
}

var table = map[byte]lengths{
	CmdSetSteps:           {9, 5},
	CmdSetSafeSteps:       {9, 5},
	CmdSetStepUntilSwitch: {5, 5},
	CmdStart:              {5, 5},
	CmdStop:               {5, 5},
	CmdGetIsMoving:        {5, 6},
	CmdSetEnable:          {6, 5},
	CmdGetEnable:          {5, 6},
	CmdSetMicrosteps:      {6, 5},
	CmdGetMicrosteps:      {5, 6},
	CmdSetDir:             {6, 5},
	CmdGetDir:             {5, 6},
	CmdSetCurrent:         {7, 5},
	CmdGetCurrent:         {5, 7},
	CmdSet100usDelay:      {7, 5},
	CmdGet100usDelay:      {5, 7},
	CmdGetSwitchStatus:    {4, 6},
	CmdGetVersion:         {4, 6},
}

// RequestLen is the total request length of cmd, or 0 if cmd is unknown.
func RequestLen(cmd byte) int {
	return table[cmd].request
}

// ResponseLen is the total response length of cmd, or 0 if cmd is unknown.
func ResponseLen(cmd byte) int {
	return table[cmd].response
}

// Commands lists every known command.
func Commands() []byte {
	cmds := make([]byte, 0, len(table))
	for c := range table {
		cmds = append(cmds, c)
	}
	return cmds
}

// frame builds a request for cmd with the given body.
func frame(cmd byte, body ...byte) []byte {
	f := make([]byte, 0, RequestLen(cmd))
	f = append(f, StartToken, cmd)
	f = append(f, body...)
	return append(f, End1Token, End2Token)
}

func u16(v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b[:]
}

func u32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func flag(v bool, on, off byte) byte {
	if v {
		return on
	}
	return off
}

func EncodeSetSteps(stepper uint8, steps uint32) []byte {
	return frame(CmdSetSteps, append([]byte{stepper}, u32(steps)...)...)
}

func EncodeSetSafeSteps(stepper uint8, steps uint32) []byte {
	return frame(CmdSetSafeSteps, append([]byte{stepper}, u32(steps)...)...)
}

func EncodeSetStepUntilSwitch(stepper uint8) []byte {
	return frame(CmdSetStepUntilSwitch, stepper)
}

func EncodeStart(steppers uint8) []byte {
	return frame(CmdStart, steppers)
}

func EncodeStop(steppers uint8) []byte {
	return frame(CmdStop, steppers)
}

func EncodeGetIsMoving(stepper uint8) []byte {
	return frame(CmdGetIsMoving, stepper)
}

func EncodeSetEnable(stepper uint8, enable bool) []byte {
	return frame(CmdSetEnable, stepper, flag(enable, enabled, disabled))
}

func EncodeGetEnable(stepper uint8) []byte {
	return frame(CmdGetEnable, stepper)
}

func EncodeSetMicrosteps(stepper uint8, m Microsteps) []byte {
	return frame(CmdSetMicrosteps, stepper, byte(m))
}

func EncodeGetMicrosteps(stepper uint8) []byte {
	return frame(CmdGetMicrosteps, stepper)
}

func EncodeSetDir(stepper uint8, high bool) []byte {
	return frame(CmdSetDir, stepper, flag(high, dirHigh, dirLow))
}

func EncodeGetDir(stepper uint8) []byte {
	return frame(CmdGetDir, stepper)
}

func EncodeSetCurrent(stepper uint8, current uint16) []byte {
	return frame(CmdSetCurrent, append([]byte{stepper}, u16(current)...)...)
}

func EncodeGetCurrent(stepper uint8) []byte {
	return frame(CmdGetCurrent, stepper)
}

func EncodeSet100usDelay(stepper uint8, delay uint16) []byte {
	return frame(CmdSet100usDelay, append([]byte{stepper}, u16(delay)...)...)
}

func EncodeGet100usDelay(stepper uint8) []byte {
	return frame(CmdGet100usDelay, stepper)
}

func EncodeGetSwitchStatus() []byte {
	return frame(CmdGetSwitchStatus)
}

func EncodeGetVersion() []byte {
	return frame(CmdGetVersion)
}

// EncodeResponse builds the response the board sends for cmd. It is what
// a Twostep board or a simulator of one writes back.
func EncodeResponse(cmd byte, status byte, value ...byte) []byte {
	f := make([]byte, 0, ResponseLen(cmd))
	f = append(f, StartToken, cmd, status)
	f = append(f, value...)
	return append(f, End1Token, End2Token)
}

func validate(buf []byte, minLen int, want func(byte) int, op string) error {
	if len(buf) < minLen {
		return types.LengthError(types.ErrFrameInvalid, op, minLen, len(buf))
	}
	cmd := buf[1]
	if buf[0] != StartToken {
		return types.CommandError(types.ErrFrameInvalid, op, cmd, len(buf), len(buf), -1,
			fmt.Errorf("start token 0x%02x", buf[0]))
	}
	n := want(cmd)
	if n == 0 {
		return types.CommandError(types.ErrFrameInvalid, op, cmd, len(buf), len(buf), -1,
			errUnknownCommand)
	}
	if len(buf) != n {
		return types.CommandError(types.ErrFrameInvalid, op, cmd, n, len(buf), -1, nil)
	}
	if buf[n-2] != End1Token || buf[n-1] != End2Token {
		return types.CommandError(types.ErrFrameInvalid, op, cmd, n, n, -1,
			fmt.Errorf("end tokens % x", buf[n-2:]))
	}
	return nil
}

// ValidateRequest checks the start token, the command and the end tokens
// at the position the request table gives.
func ValidateRequest(buf []byte) error {
	return validate(buf, MinRequestLen, RequestLen, "validate request")
}

// ValidateResponse is ValidateRequest for responses.
func ValidateResponse(buf []byte) error {
	return validate(buf, MinResponseLen, ResponseLen, "validate response")
}

// Status returns the status byte of a valid response.
func Status(resp []byte) byte {
	return resp[statusIndex]
}

func value8(resp []byte) uint8 {
	return resp[valueIndex]
}

func value16(resp []byte) uint16 {
	return binary.LittleEndian.Uint16(resp[valueIndex:])
}
