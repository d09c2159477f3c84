package core

import (
	"context"
	"sync"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

// Commander runs simple protocol requests on one channel. A request and
// its response are one turn; turns of concurrent callers never interleave.
type Commander struct {
	ch    Channel
	mutex sync.Mutex // held for write + read
	log   *logs.Logger
}

func NewCommander(ch Channel, log *logs.Logger) *Commander {
	return &Commander{
		ch:  ch,
		log: log,
	}
}

// Request writes req and reads its 64 byte response, returning the
// payload. Any failure, including a non-zero status, is of kind
// ErrCommandFailed. There are no retries.
func (c *Commander) Request(ctx context.Context, req wire.Request) ([]byte, error) {
	payload, err := c.request(ctx, req)
	metrics.Commands.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		c.log.Logf("cmd 0x%02x failed: %s", req.Command(), err)
	}
	return payload, err
}

func (c *Commander) request(ctx context.Context, req wire.Request) ([]byte, error) {
	cmd := req.Command()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	n, err := c.ch.Write(ctx, req)
	if err != nil {
		return nil, types.CommandError(types.ErrCommandFailed, "write", cmd, len(req), n, -1, err)
	}
	if n != len(req) {
		return nil, types.CommandError(types.ErrCommandFailed, "write", cmd, len(req), n, -1, nil)
	}

	var buf [wire.ResponseLen]byte
	n, err = c.ch.Read(ctx, buf[:])
	if err != nil {
		return nil, types.CommandError(types.ErrCommandFailed, "read", cmd, wire.ResponseLen, n, -1, err)
	}
	return wire.DecodeResponse(cmd, buf[:n])
}

func (c *Commander) exec(ctx context.Context, req wire.Request) error {
	_, err := c.Request(ctx, req)
	return err
}

func (c *Commander) getU8(ctx context.Context, cmd byte) (uint8, error) {
	p, err := c.Request(ctx, wire.EncodeRequest(cmd))
	if err != nil {
		return 0, err
	}
	return wire.PayloadU8(p), nil
}

func (c *Commander) getU32(ctx context.Context, cmd byte) (uint32, error) {
	p, err := c.Request(ctx, wire.EncodeRequest(cmd))
	if err != nil {
		return 0, err
	}
	return wire.PayloadU32(p), nil
}

func (c *Commander) SetOutput(ctx context.Context, enable bool) error {
	v := uint8(wire.OutputDisable)
	if enable {
		v = wire.OutputEnable
	}
	return c.exec(ctx, wire.EncodeRequestU8(wire.CmdSetOutput, v))
}

func (c *Commander) GetOutput(ctx context.Context) (bool, error) {
	v, err := c.getU8(ctx, wire.CmdGetOutput)
	return v == wire.OutputEnable, err
}

func (c *Commander) SetILDARate(ctx context.Context, rate uint32) error {
	return c.exec(ctx, wire.EncodeRequestU32(wire.CmdSetILDARate, rate))
}

func (c *Commander) GetILDARate(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetILDARate)
}

func (c *Commander) GetMaxILDARate(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetMaxILDARate)
}

func (c *Commander) GetSampElementCount(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetSampElementCount)
}

// GetPacketSampleCount is the sample count of an isochronous packet.
func (c *Commander) GetPacketSampleCount(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetPacketSampCount)
}

// GetBulkPacketSampleCount is the sample count of a bulk packet.
func (c *Commander) GetBulkPacketSampleCount(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetBulkPacketSampCount)
}

func (c *Commander) GetDACMin(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetDACMin)
}

func (c *Commander) GetDACMax(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetDACMax)
}

func (c *Commander) GetRingbufferSampleCount(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetRingbufferSampleCount)
}

func (c *Commander) GetRingbufferEmptySampleCount(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetRingbufferEmptySampleCount)
}

func (c *Commander) GetFWMajorVersion(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetFWMajorVersion)
}

func (c *Commander) GetFWMinorVersion(ctx context.Context) (uint32, error) {
	return c.getU32(ctx, wire.CmdGetFWMinorVersion)
}

func (c *Commander) ClearRingbuffer(ctx context.Context) error {
	return c.exec(ctx, wire.EncodeRequest(wire.CmdClearRingbuffer))
}

// Stepper registers of the printer firmware. Stepper numbers are 1 and 2;
// StepperHome takes a bitfield of them.

const (
	Stepper1 = 1
	Stepper2 = 2
)

func (c *Commander) StepTowardsHome(ctx context.Context, stepper int, steps uint32) error {
	cmd := byte(wire.CmdStepper1StepTowardsHome)
	if stepper == Stepper2 {
		cmd = wire.CmdStepper2StepTowardsHome
	}
	return c.exec(ctx, wire.EncodeRequestU32(cmd, steps))
}

func (c *Commander) StepAwayFromHome(ctx context.Context, stepper int, steps uint32) error {
	cmd := byte(wire.CmdStepper1StepAwayFromHome)
	if stepper == Stepper2 {
		cmd = wire.CmdStepper2StepAwayFromHome
	}
	return c.exec(ctx, wire.EncodeRequestU32(cmd, steps))
}

func (c *Commander) StepperHome(ctx context.Context, steppers uint8) error {
	return c.exec(ctx, wire.EncodeRequestU8(wire.CmdStepperHome, steppers))
}

// GetR1 returns the state of relay 1.
func (c *Commander) GetR1(ctx context.Context) (uint8, error) {
	return c.getU8(ctx, wire.CmdGetR1)
}

// GetR2 returns the state of relay 2.
func (c *Commander) GetR2(ctx context.Context) (uint8, error) {
	return c.getU8(ctx, wire.CmdGetR2)
}

func (c *Commander) SetHomeDir(ctx context.Context, stepper int, dir uint8) error {
	cmd := byte(wire.CmdSetStepper1HomeDir)
	if stepper == Stepper2 {
		cmd = wire.CmdSetStepper2HomeDir
	}
	return c.exec(ctx, wire.EncodeRequestU8(cmd, dir))
}

func (c *Commander) SetStepDelayMS(ctx context.Context, ms uint32) error {
	return c.exec(ctx, wire.EncodeRequestU32(wire.CmdSetStepperStepDelayMS, ms))
}
