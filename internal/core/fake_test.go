package core

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

// fakeBoard answers simple protocol requests from a register map. It
// records a violation if a second request is written before the first
// one's response was read.
type fakeBoard struct {
	mutex      sync.Mutex
	regs       map[byte]uint32
	status     map[byte]byte // non-zero status per command
	pending    []byte
	violations int
	requests   []byte
	// empties, when set, is returned by successive empty count queries;
	// the last value repeats
	empties []uint32
	// shortRead makes every read return this many bytes if non-zero
	shortRead int
	// onRead runs before each read. A read whose ctx is done by then
	// fails the way a cancelled usb transfer does.
	onRead func()
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		regs: map[byte]uint32{
			wire.CmdGetFWMajorVersion:             2,
			wire.CmdGetFWMinorVersion:             5,
			wire.CmdGetSampElementCount:           4,
			wire.CmdGetPacketSampCount:            64,
			wire.CmdGetBulkPacketSampCount:        4,
			wire.CmdGetMaxILDARate:                30000,
			wire.CmdGetDACMin:                     0,
			wire.CmdGetDACMax:                     4095,
			wire.CmdGetRingbufferSampleCount:      1024,
			wire.CmdGetRingbufferEmptySampleCount: 1024,
		},
		status: map[byte]byte{},
	}
}

func (b *fakeBoard) Write(ctx context.Context, p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.pending != nil {
		b.violations++
	}
	b.pending = append([]byte(nil), p...)
	b.requests = append(b.requests, p[0])

	switch p[0] {
	case wire.CmdSetOutput:
		b.regs[wire.CmdGetOutput] = uint32(p[1])
	case wire.CmdSetILDARate:
		b.regs[wire.CmdGetILDARate] = binary.LittleEndian.Uint32(p[1:])
	}
	return len(p), nil
}

func (b *fakeBoard) Read(ctx context.Context, p []byte) (int, error) {
	if b.onRead != nil {
		b.onRead()
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if err := ctx.Err(); err != nil {
		b.pending = nil
		return 0, types.NewError(types.ErrTransportFailure, "control read", err)
	}
	if b.pending == nil {
		return 0, types.NewError(types.ErrTransportFailure, "read", io.EOF)
	}
	cmd := b.pending[0]
	b.pending = nil

	resp := make([]byte, wire.ResponseLen)
	resp[0] = cmd
	resp[1] = b.status[cmd]
	v := b.regs[cmd]
	if cmd == wire.CmdGetRingbufferEmptySampleCount && len(b.empties) > 0 {
		v = b.empties[0]
		if len(b.empties) > 1 {
			b.empties = b.empties[1:]
		}
	}
	binary.LittleEndian.PutUint32(resp[2:], v)
	n := copy(p, resp)
	if b.shortRead != 0 {
		n = b.shortRead
	}
	return n, nil
}

func (b *fakeBoard) count(cmd byte) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	n := 0
	for _, r := range b.requests {
		if r == cmd {
			n++
		}
	}
	return n
}

// fakeSink records packets and fails the first timeouts writes with a
// timeout, then fails with fail if set.
type fakeSink struct {
	packets  [][]byte
	timeouts int
	fail     error
	short    bool
	onWrite  func()
}

func (s *fakeSink) WriteSamples(ctx context.Context, p []byte) (int, error) {
	if s.onWrite != nil {
		s.onWrite()
	}
	if err := ctx.Err(); err != nil {
		return 0, types.NewError(types.ErrTransportFailure, "bulk write", err)
	}
	if s.timeouts > 0 {
		s.timeouts--
		return 0, types.NewError(types.ErrTimeout, "bulk write", nil)
	}
	if s.fail != nil {
		return 0, s.fail
	}
	s.packets = append(s.packets, append([]byte(nil), p...))
	if s.short {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testCaps() types.Capabilities {
	return types.Capabilities{
		BulkPacketSampleCount: 4,
		PacketSampleCount:     64,
		MaxILDARate:           30000,
		DACMin:                0,
		DACMax:                4095,
		RingbufferSampleCount: 1024,
	}
}
