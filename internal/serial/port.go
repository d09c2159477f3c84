// Package serial reaches a Twostep board wired to a USB serial adapter
// rather than to the Lasershark UART bridge.
package serial

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/twostep"
	"github.com/macpod/lasershark-go/types"
)

// readTimeout bounds each read. Responses are read after the settle
// delay so they are normally complete already.
const readTimeout = 50 * time.Millisecond

// Port is a twostep.Port over a serial line.
type Port struct {
	port serial.Port
	name string
	log  *logs.Logger
}

var _ twostep.Port = (*Port)(nil)

func Open(name string, baud int, log *logs.Logger) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "open "+name, err)
	}
	if err = port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, types.NewError(types.ErrTransportFailure, "set timeout", err)
	}
	log.Logf("opened %s at %d baud", name, baud)
	return &Port{port: port, name: name, log: log}, nil
}

func (p *Port) ClearRx(ctx context.Context) error {
	if err := p.port.ResetInputBuffer(); err != nil {
		return types.NewError(types.ErrTransportFailure, "clear rx", err)
	}
	return nil
}

func (p *Port) Tx(ctx context.Context, b []byte) (int, error) {
	n, err := p.port.Write(b)
	if err != nil {
		return n, types.NewError(types.ErrTransportFailure, "tx", err)
	}
	return n, nil
}

// Rx reads until p is full or a read times out with nothing.
func (p *Port) Rx(ctx context.Context, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := p.port.Read(b[total:])
		if err != nil {
			return total, types.NewError(types.ErrTransportFailure, "rx", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// MaxTx is the board's receive buffer size; no frame is longer.
func (p *Port) MaxTx() int {
	return twostep.BufSize
}

func (p *Port) Close() error {
	return p.port.Close()
}

// Adapter is an attached serial port.
type Adapter struct {
	Name    string
	Serial  string
	Product string
}

func (a Adapter) String() string {
	if a.Serial == "" {
		return a.Name
	}
	return fmt.Sprintf("%s (%s %s)", a.Name, a.Product, a.Serial)
}

// List returns the attached serial ports, USB ones with their details.
func List() ([]Adapter, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	adapters := make([]Adapter, 0, len(ports))
	for _, port := range ports {
		a := Adapter{Name: port.Name}
		if port.IsUSB {
			a.Serial = port.SerialNumber
			a.Product = port.Product
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
