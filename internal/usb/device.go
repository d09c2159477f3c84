// Package usb opens a Lasershark over libusb and exposes its endpoints as
// the channels and sinks the session code works with.
package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gousb"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/types"
)

const (
	usbConfigNum = 1

	epControl = 1
	epBridge  = 2
	epBulk    = 3
	epIso     = 4

	altIso  = 0
	altBulk = 1

	DefaultTimeout = 100 * time.Millisecond
)

// DataMode picks the alternate setting of the data interface.
type DataMode int

const (
	DataNone DataMode = iota
	DataBulk
	DataIso
)

type Options struct {
	Vendor  uint16
	Product uint16
	// Serial selects one board when several are attached; empty takes
	// the first.
	Serial string

	ControlInterface int
	DataInterface    int
	BridgeInterface  int

	Data   DataMode
	Bridge bool

	// Timeout bounds every transfer.
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Vendor:           types.VendorLasershark,
		Product:          types.ProductLasershark,
		ControlInterface: 0,
		DataInterface:    1,
		BridgeInterface:  2,
		Data:             DataBulk,
		Timeout:          DefaultTimeout,
	}
}

// Device is an open Lasershark with its interfaces claimed.
type Device struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	info types.DeviceInfo

	intfs []*gousb.Interface

	ctrlOut   *gousb.OutEndpoint
	ctrlIn    *gousb.InEndpoint
	bridgeOut *gousb.OutEndpoint
	bridgeIn  *gousb.InEndpoint
	dataOut   *gousb.OutEndpoint

	ctrlMutex   sync.Mutex
	bridgeMutex sync.Mutex
	dataMutex   sync.Mutex

	timeout time.Duration
	closed  atomic.Bool
	log     *logs.Logger
}

func match(opts Options) func(desc *gousb.DeviceDesc) bool {
	return func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == opts.Vendor && uint16(desc.Product) == opts.Product
	}
}

// List returns the attached boards.
func List(opts Options, log *logs.Logger) ([]types.DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(match(opts))
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && len(devs) == 0 {
		return nil, types.NewError(types.ErrTransportFailure, "enumerate", err)
	}
	if err != nil {
		// Boards we could not open are left out.
		log.Logf("enumerate: %s", err)
	}

	infos := make([]types.DeviceInfo, 0, len(devs))
	for _, d := range devs {
		infos = append(infos, describe(d, log))
	}
	return infos, nil
}

func describe(d *gousb.Device, log *logs.Logger) types.DeviceInfo {
	serial, err := d.SerialNumber()
	if err != nil {
		log.Logf("reading serial of %s: %s", d, err)
	}
	return types.DeviceInfo{
		Serial:  serial,
		Bus:     d.Desc.Bus,
		Address: d.Desc.Address,
	}
}

// Open finds a board, selects its configuration and claims the
// interfaces opts asks for.
func Open(opts Options, log *logs.Logger) (*Device, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(match(opts))
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, types.NewError(types.ErrTransportFailure, "enumerate", err)
	}

	var dev *gousb.Device
	var info types.DeviceInfo
	for _, d := range devs {
		i := describe(d, log)
		if dev == nil && (opts.Serial == "" || i.Serial == opts.Serial) {
			dev, info = d, i
			continue
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		if opts.Serial != "" {
			return nil, types.NewError(types.ErrTransportFailure, "open",
				fmt.Errorf("no board with serial %q", opts.Serial))
		}
		return nil, types.NewError(types.ErrTransportFailure, "open",
			fmt.Errorf("no board found (VID=0x%04x PID=0x%04x)", opts.Vendor, opts.Product))
	}
	log.Logf("opening board %s on bus %d address %d", info.Serial, info.Bus, info.Address)

	d := &Device{
		ctx:     ctx,
		dev:     dev,
		info:    info,
		timeout: opts.Timeout,
		log:     log,
	}
	if err = d.claim(opts); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) claim(opts Options) error {
	if err := d.dev.SetAutoDetach(true); err != nil {
		d.log.Logf("auto detach: %s", err)
	}

	cfg, err := d.dev.Config(usbConfigNum)
	if err != nil {
		return types.NewError(types.ErrTransportFailure, "set configuration", err)
	}
	d.cfg = cfg

	ctrl, err := d.claimInterface(opts.ControlInterface, 0)
	if err != nil {
		return err
	}
	if d.ctrlOut, err = ctrl.OutEndpoint(epControl); err != nil {
		return types.NewError(types.ErrTransportFailure, "control out endpoint", err)
	}
	if d.ctrlIn, err = ctrl.InEndpoint(epControl); err != nil {
		return types.NewError(types.ErrTransportFailure, "control in endpoint", err)
	}

	switch opts.Data {
	case DataBulk:
		data, err := d.claimInterface(opts.DataInterface, altBulk)
		if err != nil {
			return err
		}
		if d.dataOut, err = data.OutEndpoint(epBulk); err != nil {
			return types.NewError(types.ErrTransportFailure, "bulk endpoint", err)
		}
	case DataIso:
		data, err := d.claimInterface(opts.DataInterface, altIso)
		if err != nil {
			return err
		}
		if d.dataOut, err = data.OutEndpoint(epIso); err != nil {
			return types.NewError(types.ErrTransportFailure, "iso endpoint", err)
		}
	}

	if opts.Bridge {
		bridge, err := d.claimInterface(opts.BridgeInterface, 0)
		if err != nil {
			return err
		}
		if d.bridgeOut, err = bridge.OutEndpoint(epBridge); err != nil {
			return types.NewError(types.ErrTransportFailure, "bridge out endpoint", err)
		}
		if d.bridgeIn, err = bridge.InEndpoint(epBridge); err != nil {
			return types.NewError(types.ErrTransportFailure, "bridge in endpoint", err)
		}
	}
	return nil
}

func (d *Device) claimInterface(num, alt int) (*gousb.Interface, error) {
	d.log.Logf("claiming interface %d alt %d", num, alt)
	intf, err := d.cfg.Interface(num, alt)
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, fmt.Sprintf("claim interface %d", num), err)
	}
	d.intfs = append(d.intfs, intf)
	return intf, nil
}

func (d *Device) Info() types.DeviceInfo {
	return d.info
}

// Close releases the interfaces and the device. Transfers still waiting
// fail with ErrTransportFailure.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.log.Log("closing device")
	for i := len(d.intfs) - 1; i >= 0; i-- {
		d.intfs[i].Close()
	}
	var err error
	if d.cfg != nil {
		err = d.cfg.Close()
	}
	if d.dev != nil {
		if cerr := d.dev.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := d.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

// transfer runs one transfer under the device timeout.
func (d *Device) transfer(
	ctx context.Context,
	op string,
	mutex *sync.Mutex,
	fn func(ctx context.Context) (int, error),
) (int, error) {
	if d.closed.Load() {
		return 0, types.NewError(types.ErrTransportFailure, op, errClosed)
	}
	mutex.Lock()
	defer mutex.Unlock()

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	n, err := fn(tctx)
	if err != nil {
		err = classify(ctx, tctx, op, err)
		if errors.Is(err, gousb.ErrorNoDevice) {
			d.log.Logf("%s: device disconnected", op)
		}
	}
	return n, err
}

var (
	errClosed = errors.New("device closed")
	errNoIso  = errors.New("data interface not opened in iso mode")
)

// classify maps a failed transfer to ErrTimeout when the per-transfer
// deadline ran out while the caller's context did not.
func classify(parent, tctx context.Context, op string, err error) error {
	if parent.Err() == nil &&
		(errors.Is(tctx.Err(), context.DeadlineExceeded) ||
			errors.Is(err, gousb.TransferTimedOut) ||
			errors.Is(err, gousb.TransferCancelled)) {
		return types.NewError(types.ErrTimeout, op, err)
	}
	return types.NewError(types.ErrTransportFailure, op, err)
}
