package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/macpod/lasershark-go/internal/twostep"
)

// board answers every request with success. Steppers report stopped
// so the ping-pong loop turns them each round.
type board struct {
	rx      []byte
	sent    map[byte]int
	enabled map[byte]bool
	onStart func()
}

func newBoard() *board {
	return &board{sent: map[byte]int{}, enabled: map[byte]bool{}}
}

func (b *board) ClearRx(ctx context.Context) error {
	b.rx = nil
	return nil
}

func (b *board) Tx(ctx context.Context, p []byte) (int, error) {
	cmd := p[1]
	b.sent[cmd]++
	var value []byte
	switch cmd {
	case twostep.CmdSetEnable:
		b.enabled[p[2]] = p[3] == 1
	case twostep.CmdStart:
		if b.onStart != nil {
			b.onStart()
		}
	case twostep.CmdGetIsMoving, twostep.CmdGetEnable, twostep.CmdGetMicrosteps, twostep.CmdGetDir,
		twostep.CmdGetSwitchStatus:
		value = []byte{0}
	case twostep.CmdGetVersion:
		value = []byte{twostep.Version}
	case twostep.CmdGetCurrent:
		value = []byte{200, 0}
	case twostep.CmdGet100usDelay:
		value = []byte{0xe8, 0x03}
	}
	b.rx = twostep.EncodeResponse(cmd, twostep.StatusSuccess, value...)
	return len(p), nil
}

func (b *board) Rx(ctx context.Context, p []byte) (int, error) {
	n := copy(p, b.rx)
	b.rx = b.rx[n:]
	return n, nil
}

func (b *board) MaxTx() int { return twostep.BufSize }

func TestRunTests(t *testing.T) {
	b := newBoard()
	var out bytes.Buffer
	runTests(context.Background(), twostep.NewClient(b, 0, nil), &out, 0)
	if strings.Contains(out.String(), "failed") {
		t.Errorf("sweep output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "get 100us delay cmd passed, value is: 1000") {
		t.Errorf("delay not reported:\n%s", out.String())
	}
}

func TestPingPong(t *testing.T) {
	b := newBoard()
	ctx, cancel := context.WithCancel(context.Background())
	starts := 0
	b.onStart = func() {
		starts++
		if starts == 4 {
			cancel()
		}
	}
	var out bytes.Buffer
	err := pingPong(ctx, twostep.NewClient(b, 0, nil), &out, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if b.sent[twostep.CmdSetDir] != 4 || b.sent[twostep.CmdSetSafeSteps] != 4 {
		t.Errorf("sent %v", b.sent)
	}
	if b.sent[twostep.CmdStop] != 2 || b.enabled[twostep.Stepper1] || b.enabled[twostep.Stepper2] {
		t.Errorf("steppers left running: sent %v enabled %v", b.sent, b.enabled)
	}
}
