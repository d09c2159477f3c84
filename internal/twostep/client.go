package twostep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/types"
)

// DefaultSettleDelay is how long the board gets between receiving a
// request and the response being read. The board has no ready signal.
const DefaultSettleDelay = 10 * time.Millisecond

var (
	ErrFrameTooLong    = errors.New("frame longer than the port can transmit")
	ErrInvalidArgument = errors.New("invalid twostep argument")
)

// Port moves raw bytes to and from the Twostep board. It is implemented
// by the Lasershark UART bridge and by a directly attached serial port.
type Port interface {
	// ClearRx drops anything received but not read yet.
	ClearRx(ctx context.Context) error
	// Tx transmits p and returns how many bytes went out.
	Tx(ctx context.Context, p []byte) (int, error)
	// Rx reads up to len(p) bytes that are already received.
	Rx(ctx context.Context, p []byte) (int, error)
	// MaxTx is the largest p Tx accepts.
	MaxTx() int
}

// Client runs request/response exchanges with a Twostep board. One
// exchange is in flight at a time.
type Client struct {
	port   Port
	settle time.Duration
	mutex  sync.Mutex
	log    *logs.Logger
}

// NewClient returns a client waiting settle between request and response.
func NewClient(port Port, settle time.Duration, log *logs.Logger) *Client {
	return &Client{
		port:   port,
		settle: settle,
		log:    log,
	}
}

func (c *Client) exchange(ctx context.Context, req []byte) ([]byte, error) {
	resp, err := c.exchangeLocked(ctx, req)
	metrics.BridgeExchanges.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		c.log.Logf("twostep cmd 0x%02x failed: %s", req[1], err)
	}
	return resp, err
}

func (c *Client) exchangeLocked(ctx context.Context, req []byte) ([]byte, error) {
	cmd := req[1]
	if len(req) > c.port.MaxTx() {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLong, len(req), c.port.MaxTx())
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.port.ClearRx(ctx); err != nil {
		return nil, types.CommandError(types.ErrBridgeTransport, "clear rx", cmd, 0, 0, -1, err)
	}

	n, err := c.port.Tx(ctx, req)
	if err != nil {
		return nil, types.CommandError(types.ErrBridgeTransport, "tx", cmd, len(req), n, -1, err)
	}
	if n != len(req) {
		return nil, types.CommandError(types.ErrShortWrite, "tx", cmd, len(req), n, -1, nil)
	}

	if err = sleep(ctx, c.settle); err != nil {
		return nil, types.CommandError(types.ErrBridgeTransport, "settle", cmd, 0, 0, -1, err)
	}

	want := ResponseLen(cmd)
	resp := make([]byte, want)
	n, err = c.port.Rx(ctx, resp)
	if err != nil {
		return nil, types.CommandError(types.ErrBridgeTransport, "rx", cmd, want, n, -1, err)
	}
	if n != want {
		return nil, types.CommandError(types.ErrShortRead, "rx", cmd, want, n, -1, nil)
	}

	if err = ValidateResponse(resp); err != nil {
		return nil, err
	}
	if s := Status(resp); s != StatusSuccess {
		return nil, types.CommandError(types.ErrSubDeviceCommandFailed, "exchange", cmd, want, n, int(s), nil)
	}
	return resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// get runs a get command and checks the response echoes it.
func (c *Client) get(ctx context.Context, req []byte) ([]byte, error) {
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp[1] != req[1] {
		return nil, invalidValue(req[1], fmt.Errorf("response to command 0x%02x", resp[1]))
	}
	return resp, nil
}

func invalidValue(cmd byte, err error) error {
	return types.CommandError(types.ErrFrameInvalid, "get", cmd, 0, 0, -1, err)
}

func (c *Client) getFlag(ctx context.Context, req []byte, on, off byte) (bool, error) {
	resp, err := c.get(ctx, req)
	if err != nil {
		return false, err
	}
	switch v := value8(resp); v {
	case on:
		return true, nil
	case off:
		return false, nil
	default:
		return false, invalidValue(req[1], fmt.Errorf("value %d", v))
	}
}

func checkStepper(stepper uint8) error {
	if stepper < Stepper1 || stepper > maxStepper {
		return fmt.Errorf("%w: stepper %d", ErrInvalidArgument, stepper)
	}
	return nil
}

func checkBitfield(steppers uint8) error {
	if steppers == 0 || steppers > maxBitfield {
		return fmt.Errorf("%w: stepper bitfield %d", ErrInvalidArgument, steppers)
	}
	return nil
}

func (c *Client) run(ctx context.Context, check error, req func() []byte) error {
	if check != nil {
		return check
	}
	_, err := c.exchange(ctx, req())
	return err
}

// SetSteps queues steps for the stepper.
func (c *Client) SetSteps(ctx context.Context, stepper uint8, steps uint32) error {
	return c.run(ctx, checkStepper(stepper), func() []byte { return EncodeSetSteps(stepper, steps) })
}

// SetSafeSteps queues steps that stop early when a limit switch closes.
func (c *Client) SetSafeSteps(ctx context.Context, stepper uint8, steps uint32) error {
	return c.run(ctx, checkStepper(stepper), func() []byte { return EncodeSetSafeSteps(stepper, steps) })
}

// SetStepUntilSwitch makes the stepper run until a limit switch closes.
func (c *Client) SetStepUntilSwitch(ctx context.Context, stepper uint8) error {
	return c.run(ctx, checkStepper(stepper), func() []byte { return EncodeSetStepUntilSwitch(stepper) })
}

func (c *Client) Start(ctx context.Context, steppers uint8) error {
	return c.run(ctx, checkBitfield(steppers), func() []byte { return EncodeStart(steppers) })
}

func (c *Client) Stop(ctx context.Context, steppers uint8) error {
	return c.run(ctx, checkBitfield(steppers), func() []byte { return EncodeStop(steppers) })
}

func (c *Client) IsMoving(ctx context.Context, stepper uint8) (bool, error) {
	if err := checkStepper(stepper); err != nil {
		return false, err
	}
	return c.getFlag(ctx, EncodeGetIsMoving(stepper), isMoving, isStopped)
}

func (c *Client) SetEnable(ctx context.Context, stepper uint8, enable bool) error {
	return c.run(ctx, checkStepper(stepper), func() []byte { return EncodeSetEnable(stepper, enable) })
}

func (c *Client) Enable(ctx context.Context, stepper uint8) (bool, error) {
	if err := checkStepper(stepper); err != nil {
		return false, err
	}
	return c.getFlag(ctx, EncodeGetEnable(stepper), enabled, disabled)
}

func (c *Client) SetMicrosteps(ctx context.Context, stepper uint8, m Microsteps) error {
	check := checkStepper(stepper)
	if check == nil && m > SixteenthStep {
		check = fmt.Errorf("%w: microsteps %d", ErrInvalidArgument, m)
	}
	return c.run(ctx, check, func() []byte { return EncodeSetMicrosteps(stepper, m) })
}

func (c *Client) Microsteps(ctx context.Context, stepper uint8) (Microsteps, error) {
	if err := checkStepper(stepper); err != nil {
		return 0, err
	}
	resp, err := c.get(ctx, EncodeGetMicrosteps(stepper))
	if err != nil {
		return 0, err
	}
	m := Microsteps(value8(resp))
	if m > SixteenthStep {
		return 0, invalidValue(CmdGetMicrosteps, fmt.Errorf("microsteps %d", m))
	}
	return m, nil
}

// SetDir sets the direction pin; true is high.
func (c *Client) SetDir(ctx context.Context, stepper uint8, high bool) error {
	return c.run(ctx, checkStepper(stepper), func() []byte { return EncodeSetDir(stepper, high) })
}

func (c *Client) Dir(ctx context.Context, stepper uint8) (bool, error) {
	if err := checkStepper(stepper); err != nil {
		return false, err
	}
	return c.getFlag(ctx, EncodeGetDir(stepper), dirHigh, dirLow)
}

// SetCurrent sets the coil current DAC value, 0 to MaxCurrent.
func (c *Client) SetCurrent(ctx context.Context, stepper uint8, current uint16) error {
	check := checkStepper(stepper)
	if check == nil && current > MaxCurrent {
		check = fmt.Errorf("%w: current %d", ErrInvalidArgument, current)
	}
	return c.run(ctx, check, func() []byte { return EncodeSetCurrent(stepper, current) })
}

func (c *Client) Current(ctx context.Context, stepper uint8) (uint16, error) {
	if err := checkStepper(stepper); err != nil {
		return 0, err
	}
	resp, err := c.get(ctx, EncodeGetCurrent(stepper))
	if err != nil {
		return 0, err
	}
	v := value16(resp)
	if v > MaxCurrent {
		return 0, invalidValue(CmdGetCurrent, fmt.Errorf("current %d", v))
	}
	return v, nil
}

// Set100usDelay sets the delay between steps in units of 100us.
func (c *Client) Set100usDelay(ctx context.Context, stepper uint8, delay uint16) error {
	check := checkStepper(stepper)
	if check == nil && delay < MinDelay {
		check = fmt.Errorf("%w: delay %d", ErrInvalidArgument, delay)
	}
	return c.run(ctx, check, func() []byte { return EncodeSet100usDelay(stepper, delay) })
}

func (c *Client) Delay100us(ctx context.Context, stepper uint8) (uint16, error) {
	if err := checkStepper(stepper); err != nil {
		return 0, err
	}
	resp, err := c.get(ctx, EncodeGet100usDelay(stepper))
	if err != nil {
		return 0, err
	}
	v := value16(resp)
	if v < MinDelay {
		return 0, invalidValue(CmdGet100usDelay, fmt.Errorf("delay %d", v))
	}
	return v, nil
}

// SwitchStatus returns the closed limit switches as Switch* bits.
func (c *Client) SwitchStatus(ctx context.Context) (uint8, error) {
	resp, err := c.get(ctx, EncodeGetSwitchStatus())
	if err != nil {
		return 0, err
	}
	v := value8(resp)
	if v&^SwitchMask != 0 {
		return 0, invalidValue(CmdGetSwitchStatus, fmt.Errorf("switches 0x%02x", v))
	}
	return v, nil
}

func (c *Client) Version(ctx context.Context) (uint8, error) {
	resp, err := c.get(ctx, EncodeGetVersion())
	if err != nil {
		return 0, err
	}
	return value8(resp), nil
}
