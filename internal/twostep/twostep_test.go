package twostep

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/macpod/lasershark-go/types"
)

// fakeBoard plays the Twostep side of the bridge: it keeps per-stepper
// state and answers every valid request.
type fakeBoard struct {
	rx      []byte
	maxTx   int
	cleared int
	sent    [][]byte

	enable  [3]bool
	dir     [3]bool
	current [3]uint16
	delay   [3]uint16
	micro   [3]byte
	steps   [3]uint32

	// hooks to break the response
	mangle  func(resp []byte) []byte
	shortTx bool
	status  byte
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{maxTx: BufSize, delay: [3]uint16{1, 1, 1}}
}

func (b *fakeBoard) MaxTx() int { return b.maxTx }

func (b *fakeBoard) ClearRx(ctx context.Context) error {
	b.cleared++
	b.rx = nil
	return nil
}

func (b *fakeBoard) Tx(ctx context.Context, p []byte) (int, error) {
	b.sent = append(b.sent, append([]byte(nil), p...))
	if b.shortTx {
		return len(p) - 1, nil
	}
	resp := b.answer(p)
	if b.mangle != nil {
		resp = b.mangle(resp)
	}
	b.rx = append(b.rx, resp...)
	return len(p), nil
}

func (b *fakeBoard) Rx(ctx context.Context, p []byte) (int, error) {
	n := copy(p, b.rx)
	b.rx = b.rx[n:]
	return n, nil
}

func (b *fakeBoard) answer(req []byte) []byte {
	if err := ValidateRequest(req); err != nil {
		return EncodeResponse(CmdGetVersion, StatusUnknown, 0)
	}
	cmd := req[1]
	s := req[2]
	if b.status != StatusSuccess {
		return EncodeResponse(cmd, b.status, make([]byte, ResponseLen(cmd)-MinResponseLen)...)
	}
	var v []byte
	switch cmd {
	case CmdSetSteps, CmdSetSafeSteps:
		b.steps[s] = binary.LittleEndian.Uint32(req[3:])
	case CmdSetEnable:
		b.enable[s] = req[3] == enabled
	case CmdGetEnable:
		v = []byte{flag(b.enable[s], enabled, disabled)}
	case CmdSetDir:
		b.dir[s] = req[3] == dirHigh
	case CmdGetDir:
		v = []byte{flag(b.dir[s], dirHigh, dirLow)}
	case CmdSetMicrosteps:
		b.micro[s] = req[3]
	case CmdGetMicrosteps:
		v = []byte{b.micro[s]}
	case CmdSetCurrent:
		b.current[s] = binary.LittleEndian.Uint16(req[3:])
	case CmdGetCurrent:
		v = u16(b.current[s])
	case CmdSet100usDelay:
		b.delay[s] = binary.LittleEndian.Uint16(req[3:])
	case CmdGet100usDelay:
		v = u16(b.delay[s])
	case CmdGetIsMoving:
		v = []byte{flag(b.steps[s] > 0, isMoving, isStopped)}
	case CmdGetSwitchStatus:
		v = []byte{SwitchR1A | SwitchR2B}
	case CmdGetVersion:
		v = []byte{Version}
	}
	return EncodeResponse(cmd, StatusSuccess, v...)
}

func allRequests() [][]byte {
	return [][]byte{
		EncodeSetSteps(Stepper1, 1000),
		EncodeSetSafeSteps(Stepper2, 1000),
		EncodeSetStepUntilSwitch(Stepper1),
		EncodeStart(StepperBoth),
		EncodeStop(Stepper1Bit),
		EncodeGetIsMoving(Stepper1),
		EncodeSetEnable(Stepper1, true),
		EncodeGetEnable(Stepper1),
		EncodeSetMicrosteps(Stepper1, QuarterStep),
		EncodeGetMicrosteps(Stepper1),
		EncodeSetDir(Stepper2, false),
		EncodeGetDir(Stepper2),
		EncodeSetCurrent(Stepper1, 4095),
		EncodeGetCurrent(Stepper1),
		EncodeSet100usDelay(Stepper1, 65535),
		EncodeGet100usDelay(Stepper1),
		EncodeGetSwitchStatus(),
		EncodeGetVersion(),
	}
}

func TestEncodeMatchesTable(t *testing.T) {
	reqs := allRequests()
	if len(reqs) != len(Commands()) {
		t.Fatalf("%d encoders for %d commands", len(reqs), len(Commands()))
	}
	seen := map[byte]bool{}
	for _, r := range reqs {
		cmd := r[1]
		seen[cmd] = true
		if len(r) != RequestLen(cmd) {
			t.Errorf("cmd 0x%02x: encoded %d bytes, table says %d", cmd, len(r), RequestLen(cmd))
		}
		if len(r) > BufSize {
			t.Errorf("cmd 0x%02x: %d bytes exceed the buffer", cmd, len(r))
		}
		if err := ValidateRequest(r); err != nil {
			t.Errorf("cmd 0x%02x: %v", cmd, err)
		}
	}
	if len(seen) != len(reqs) {
		t.Error("a command is encoded twice")
	}
}

func TestEncodeLayout(t *testing.T) {
	got := EncodeSetSteps(Stepper2, 0x01020304)
	want := []byte{'=', 0x10, 2, 4, 3, 2, 1, '\r', '\n'}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
	got = EncodeGetVersion()
	want = []byte{'=', 0x40, '\r', '\n'}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestValidateRejects(t *testing.T) {
	good := EncodeSetCurrent(Stepper1, 100)
	corrupt := func(i int, v byte) []byte {
		b := append([]byte(nil), good...)
		b[i] = v
		return b
	}
	tests := []struct {
		name string
		buf  []byte
	}{
		{"too short", good[:3]},
		{"start token", corrupt(0, '#')},
		{"unknown command", corrupt(1, 0x99)},
		{"first end token", corrupt(len(good)-2, 'x')},
		{"second end token", corrupt(len(good)-1, 'x')},
		{"length", append(append([]byte(nil), good...), 0)},
	}
	for _, tt := range tests {
		if err := ValidateRequest(tt.buf); !errors.Is(err, types.ErrFrameInvalid) {
			t.Errorf("%s: got %v", tt.name, err)
		}
	}

	if err := ValidateResponse(EncodeResponse(CmdGetCurrent, StatusSuccess, 1, 2)); err != nil {
		t.Errorf("valid response: %v", err)
	}
	if err := ValidateResponse(EncodeResponse(CmdGetCurrent, StatusSuccess, 1)); !errors.Is(err, types.ErrFrameInvalid) {
		t.Errorf("short response: got %v", err)
	}
}

func TestClientRoundTrips(t *testing.T) {
	ctx := context.Background()
	b := newFakeBoard()
	c := NewClient(b, 0, nil)

	if err := c.SetEnable(ctx, Stepper1, true); err != nil {
		t.Fatal(err)
	}
	if on, err := c.Enable(ctx, Stepper1); err != nil || !on {
		t.Errorf("Enable = %v, %v", on, err)
	}
	if err := c.SetDir(ctx, Stepper2, true); err != nil {
		t.Fatal(err)
	}
	if high, err := c.Dir(ctx, Stepper2); err != nil || !high {
		t.Errorf("Dir = %v, %v", high, err)
	}
	if err := c.SetMicrosteps(ctx, Stepper1, SixteenthStep); err != nil {
		t.Fatal(err)
	}
	if m, err := c.Microsteps(ctx, Stepper1); err != nil || m != SixteenthStep {
		t.Errorf("Microsteps = %v, %v", m, err)
	}
	if err := c.SetCurrent(ctx, Stepper1, 1200); err != nil {
		t.Fatal(err)
	}
	if cur, err := c.Current(ctx, Stepper1); err != nil || cur != 1200 {
		t.Errorf("Current = %v, %v", cur, err)
	}
	if err := c.Set100usDelay(ctx, Stepper2, 30); err != nil {
		t.Fatal(err)
	}
	if d, err := c.Delay100us(ctx, Stepper2); err != nil || d != 30 {
		t.Errorf("Delay100us = %v, %v", d, err)
	}
	if err := c.SetSteps(ctx, Stepper1, 500); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx, Stepper1Bit); err != nil {
		t.Fatal(err)
	}
	if moving, err := c.IsMoving(ctx, Stepper1); err != nil || !moving {
		t.Errorf("IsMoving = %v, %v", moving, err)
	}
	if sw, err := c.SwitchStatus(ctx); err != nil || sw != SwitchR1A|SwitchR2B {
		t.Errorf("SwitchStatus = %v, %v", sw, err)
	}
	if v, err := c.Version(ctx); err != nil || v != Version {
		t.Errorf("Version = %v, %v", v, err)
	}
	if b.cleared != len(b.sent) {
		t.Errorf("rx fifo cleared %d times for %d requests", b.cleared, len(b.sent))
	}
}

func TestClientFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(b *fakeBoard)
		kind  error
	}{
		{"short write", func(b *fakeBoard) { b.shortTx = true }, types.ErrShortWrite},
		{"short read", func(b *fakeBoard) {
			b.mangle = func(r []byte) []byte { return r[:len(r)-1] }
		}, types.ErrShortRead},
		{"end token", func(b *fakeBoard) {
			b.mangle = func(r []byte) []byte { r[len(r)-1] = 'x'; return r }
		}, types.ErrFrameInvalid},
		{"start token", func(b *fakeBoard) {
			b.mangle = func(r []byte) []byte { r[0] = 'x'; return r }
		}, types.ErrFrameInvalid},
		{"status", func(b *fakeBoard) { b.status = StatusFail }, types.ErrSubDeviceCommandFailed},
		{"enumerated value", func(b *fakeBoard) {
			b.mangle = func(r []byte) []byte { r[3] = 2; return r }
		}, types.ErrFrameInvalid},
		{"other command echoed", func(b *fakeBoard) {
			b.mangle = func(r []byte) []byte { r[1] = CmdGetDir; return r }
		}, types.ErrFrameInvalid},
	}
	for _, tt := range tests {
		b := newFakeBoard()
		tt.setup(b)
		_, err := NewClient(b, 0, nil).Enable(ctx, Stepper1)
		if !errors.Is(err, tt.kind) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.kind)
		}
	}
}

func TestClientGetRanges(t *testing.T) {
	ctx := context.Background()

	b := newFakeBoard()
	b.current[1] = 4096
	if _, err := NewClient(b, 0, nil).Current(ctx, Stepper1); !errors.Is(err, types.ErrFrameInvalid) {
		t.Errorf("current 4096: got %v", err)
	}

	b = newFakeBoard()
	b.delay[1] = 0
	if _, err := NewClient(b, 0, nil).Delay100us(ctx, Stepper1); !errors.Is(err, types.ErrFrameInvalid) {
		t.Errorf("delay 0: got %v", err)
	}

	b = newFakeBoard()
	b.micro[1] = 4
	if _, err := NewClient(b, 0, nil).Microsteps(ctx, Stepper1); !errors.Is(err, types.ErrFrameInvalid) {
		t.Errorf("microsteps 4: got %v", err)
	}

	b = newFakeBoard()
	b.mangle = func(r []byte) []byte {
		if r[1] == CmdGetSwitchStatus {
			r[3] = 0x10
		}
		return r
	}
	if _, err := NewClient(b, 0, nil).SwitchStatus(ctx); !errors.Is(err, types.ErrFrameInvalid) {
		t.Errorf("switch 0x10: got %v", err)
	}
}

func TestClientPreconditions(t *testing.T) {
	ctx := context.Background()
	b := newFakeBoard()
	b.maxTx = 8
	c := NewClient(b, 0, nil)

	if err := c.SetSteps(ctx, Stepper1, 1); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("9 byte frame on an 8 byte port: got %v", err)
	}
	if err := c.Start(ctx, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty bitfield: got %v", err)
	}
	if err := c.SetEnable(ctx, 3, true); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("stepper 3: got %v", err)
	}
	if err := c.SetCurrent(ctx, Stepper1, 5000); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("current 5000: got %v", err)
	}
	if len(b.sent) != 0 {
		t.Errorf("%d frames sent for rejected calls", len(b.sent))
	}
}
