package serial

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial"

	"github.com/macpod/lasershark-go/internal/twostep"
	"github.com/macpod/lasershark-go/types"
)

// fakeLine answers twostep requests written to it, handing the response
// back a few bytes per read.
type fakeLine struct {
	serial.Port
	rx      []byte
	chunk   int
	resets  int
	readErr error
}

func (f *fakeLine) Write(p []byte) (int, error) {
	if twostep.ValidateRequest(p) == nil && p[1] == twostep.CmdGetVersion {
		f.rx = append(f.rx, twostep.EncodeResponse(twostep.CmdGetVersion, twostep.StatusSuccess, twostep.Version)...)
	}
	return len(p), nil
}

func (f *fakeLine) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	n := len(f.rx)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	n = copy(p, f.rx[:n])
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakeLine) ResetInputBuffer() error {
	f.resets++
	f.rx = nil
	return nil
}

func TestTwostepOverSerial(t *testing.T) {
	line := &fakeLine{chunk: 2, rx: []byte("junk")}
	c := twostep.NewClient(&Port{port: line}, 0, nil)
	v, err := c.Version(context.Background())
	if err != nil || v != twostep.Version {
		t.Fatalf("Version = %d, %v", v, err)
	}
	if line.resets != 1 {
		t.Errorf("rx cleared %d times", line.resets)
	}
}

func TestRxStopsOnTimeout(t *testing.T) {
	line := &fakeLine{rx: []byte("abc")}
	p := &Port{port: line}
	buf := make([]byte, 8)
	n, err := p.Rx(context.Background(), buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Errorf("Rx = %q, %v", buf[:n], err)
	}

	line.readErr = errors.New("device gone")
	if _, err = p.Rx(context.Background(), buf); !errors.Is(err, types.ErrTransportFailure) {
		t.Errorf("got %v", err)
	}
}

func TestMaxTx(t *testing.T) {
	if (&Port{}).MaxTx() != twostep.BufSize {
		t.Error("MaxTx is not the board buffer size")
	}
}
