package uartbridge

import (
	"context"
	"fmt"

	"github.com/macpod/lasershark-go/internal/core"
	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

// The UART bridge speaks the simple protocol on its own channel. Bytes
// handed to Tx go out on the Lasershark UART; bytes received on the UART
// wait in a fifo until Rx collects them.

const (
	CmdTx          = 0xA0
	CmdRx          = 0xA1
	CmdRxReady     = 0xA2
	CmdGetMaxTx    = 0xA3
	CmdGetMaxRx    = 0xA4
	CmdClearRxFifo = 0xA5
	CmdGetVersion  = 0xA6

	Version = 1

	rxReady = 0x1

	// a tx request is cmd, len, data and must fit in one packet
	txHeaderLen = 2
	MaxTxLen    = wire.ResponseLen - txHeaderLen
	// an rx response is echo, status, len, data
	MaxRxLen = wire.ResponseLen - 3
)

// Bridge implements twostep.Port on top of the bridge channel.
type Bridge struct {
	cmd   *core.Commander
	maxTx int
	maxRx int
	log   *logs.Logger
}

// Open checks the bridge version, reads the transfer limits and clears
// the receive fifo.
func Open(ctx context.Context, ch core.Channel, log *logs.Logger) (*Bridge, error) {
	b := &Bridge{
		cmd: core.NewCommander(ch, log),
		log: log,
	}

	v, err := b.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting bridge version: %w", err)
	}
	if v != Version {
		return nil, types.NewError(types.ErrSessionPrecondition, "uart bridge",
			fmt.Errorf("bridge version %d, expected %d", v, Version))
	}

	maxRx, err := b.getU8(ctx, CmdGetMaxRx)
	if err != nil {
		return nil, fmt.Errorf("getting bridge max rx: %w", err)
	}
	maxTx, err := b.getU8(ctx, CmdGetMaxTx)
	if err != nil {
		return nil, fmt.Errorf("getting bridge max tx: %w", err)
	}
	b.maxRx = clamp(int(maxRx), MaxRxLen)
	b.maxTx = clamp(int(maxTx), MaxTxLen)
	log.Logf("bridge v%d, max rx %d, max tx %d", v, b.maxRx, b.maxTx)

	if err = b.ClearRx(ctx); err != nil {
		return nil, fmt.Errorf("clearing bridge rx fifo: %w", err)
	}
	return b, nil
}

func clamp(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}

func (b *Bridge) request(ctx context.Context, req wire.Request) ([]byte, error) {
	p, err := b.cmd.Request(ctx, req)
	if err != nil {
		return nil, types.CommandError(types.ErrBridgeTransport, "uart bridge", req.Command(), 0, 0, -1, err)
	}
	return p, nil
}

func (b *Bridge) getU8(ctx context.Context, cmd byte) (uint8, error) {
	p, err := b.request(ctx, wire.EncodeRequest(cmd))
	if err != nil {
		return 0, err
	}
	return wire.PayloadU8(p), nil
}

func (b *Bridge) Version(ctx context.Context) (uint32, error) {
	p, err := b.request(ctx, wire.EncodeRequest(CmdGetVersion))
	if err != nil {
		return 0, err
	}
	return wire.PayloadU32(p), nil
}

func (b *Bridge) MaxTx() int {
	return b.maxTx
}

func (b *Bridge) MaxRx() int {
	return b.maxRx
}

func (b *Bridge) ClearRx(ctx context.Context) error {
	_, err := b.request(ctx, wire.EncodeRequest(CmdClearRxFifo))
	return err
}

// RxReady reports whether received bytes are waiting.
func (b *Bridge) RxReady(ctx context.Context) (bool, error) {
	v, err := b.getU8(ctx, CmdRxReady)
	return v == rxReady, err
}

// Tx sends p in one request and returns how many bytes the bridge took.
func (b *Bridge) Tx(ctx context.Context, p []byte) (int, error) {
	if len(p) > MaxTxLen {
		return 0, types.LengthError(types.ErrBridgeTransport, "uart bridge tx", MaxTxLen, len(p))
	}
	req := make(wire.Request, 0, txHeaderLen+len(p))
	req = append(req, CmdTx, byte(len(p)))
	req = append(req, p...)

	resp, err := b.request(ctx, req)
	if err != nil {
		return 0, err
	}
	return int(wire.PayloadU8(resp)), nil
}

// Rx collects up to len(p) received bytes in one request.
func (b *Bridge) Rx(ctx context.Context, p []byte) (int, error) {
	want := clamp(len(p), MaxRxLen)
	resp, err := b.request(ctx, wire.EncodeRequestU8(CmdRx, uint8(want)))
	if err != nil {
		return 0, err
	}
	n := int(resp[0])
	if n > MaxRxLen || n > want {
		return 0, types.LengthError(types.ErrBridgeTransport, "uart bridge rx", want, n)
	}
	return copy(p, resp[1:1+n]), nil
}
