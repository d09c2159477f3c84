package uartbridge

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/macpod/lasershark-go/internal/twostep"
	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

// fakeBridge is the bridge end of the channel with a Twostep board on
// its UART that answers version requests.
type fakeBridge struct {
	version uint32
	maxTx   byte
	maxRx   byte
	fifo    []byte
	req     []byte
	txLimit int // bytes accepted per tx, 0 for all
	uart    [][]byte
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{version: Version, maxTx: 62, maxRx: 61}
}

func (f *fakeBridge) Write(ctx context.Context, p []byte) (int, error) {
	f.req = append([]byte(nil), p...)
	return len(p), nil
}

func (f *fakeBridge) Read(ctx context.Context, p []byte) (int, error) {
	resp := make([]byte, wire.ResponseLen)
	cmd := f.req[0]
	resp[0] = cmd
	switch cmd {
	case CmdGetVersion:
		binary.LittleEndian.PutUint32(resp[2:], f.version)
	case CmdGetMaxTx:
		resp[2] = f.maxTx
	case CmdGetMaxRx:
		resp[2] = f.maxRx
	case CmdClearRxFifo:
		f.fifo = nil
	case CmdRxReady:
		if len(f.fifo) > 0 {
			resp[2] = rxReady
		}
	case CmdTx:
		data := f.req[2 : 2+int(f.req[1])]
		if f.txLimit > 0 && len(data) > f.txLimit {
			data = data[:f.txLimit]
		}
		f.uart = append(f.uart, data)
		resp[2] = byte(len(data))
		if twostep.ValidateRequest(data) == nil && data[1] == twostep.CmdGetVersion {
			f.fifo = append(f.fifo, twostep.EncodeResponse(twostep.CmdGetVersion, twostep.StatusSuccess, twostep.Version)...)
		}
	case CmdRx:
		n := copy(resp[3:3+int(f.req[1])], f.fifo)
		f.fifo = f.fifo[n:]
		resp[2] = byte(n)
	default:
		resp[1] = 0xff
	}
	return copy(p, resp), nil
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	f := newFakeBridge()
	f.fifo = []byte("stale")
	f.maxTx = 200

	b, err := Open(ctx, f, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.MaxTx() != MaxTxLen || b.MaxRx() != 61 {
		t.Errorf("limits tx %d rx %d", b.MaxTx(), b.MaxRx())
	}
	if len(f.fifo) != 0 {
		t.Error("rx fifo not cleared")
	}

	f = newFakeBridge()
	f.version = 2
	if _, err = Open(ctx, f, nil); !errors.Is(err, types.ErrSessionPrecondition) {
		t.Errorf("version 2: got %v", err)
	}
}

func TestTxRx(t *testing.T) {
	ctx := context.Background()
	f := newFakeBridge()
	b, err := Open(ctx, f, nil)
	if err != nil {
		t.Fatal(err)
	}

	n, err := b.Tx(ctx, []byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Tx = %d, %v", n, err)
	}
	if string(f.uart[0]) != "hello" {
		t.Errorf("uart got %q", f.uart[0])
	}

	f.fifo = []byte("abcdef")
	ready, err := b.RxReady(ctx)
	if err != nil || !ready {
		t.Errorf("RxReady = %v, %v", ready, err)
	}
	buf := make([]byte, 4)
	n, err = b.Rx(ctx, buf)
	if err != nil || string(buf[:n]) != "abcd" {
		t.Errorf("Rx = %q, %v", buf[:n], err)
	}
	n, err = b.Rx(ctx, buf)
	if err != nil || string(buf[:n]) != "ef" {
		t.Errorf("Rx = %q, %v", buf[:n], err)
	}

	if _, err = b.Tx(ctx, make([]byte, MaxTxLen+1)); !errors.Is(err, types.ErrBridgeTransport) {
		t.Errorf("oversized tx: got %v", err)
	}
}

func TestRequestFailure(t *testing.T) {
	ctx := context.Background()
	f := newFakeBridge()
	b, err := Open(ctx, f, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.request(ctx, wire.EncodeRequest(0x42))
	if !errors.Is(err, types.ErrBridgeTransport) || !errors.Is(err, types.ErrCommandFailed) {
		t.Errorf("got %v", err)
	}
}

func TestTwostepOverBridge(t *testing.T) {
	ctx := context.Background()
	f := newFakeBridge()
	b, err := Open(ctx, f, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := twostep.NewClient(b, 0, nil)
	v, err := c.Version(ctx)
	if err != nil || v != twostep.Version {
		t.Errorf("Version = %d, %v", v, err)
	}

	f.txLimit = 2
	if _, err = c.Version(ctx); !errors.Is(err, types.ErrShortWrite) {
		t.Errorf("partial tx: got %v", err)
	}
}
