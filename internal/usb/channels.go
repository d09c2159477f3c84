package usb

import (
	"context"
	"sync"

	"github.com/google/gousb"

	"github.com/macpod/lasershark-go/internal/core"
	"github.com/macpod/lasershark-go/types"
)

// endpointChannel is a request/response pair of bulk endpoints.
type endpointChannel struct {
	d     *Device
	name  string
	out   *gousb.OutEndpoint
	in    *gousb.InEndpoint
	mutex *sync.Mutex
}

func (c *endpointChannel) Write(ctx context.Context, p []byte) (int, error) {
	return c.d.transfer(ctx, c.name+" write", c.mutex, func(ctx context.Context) (int, error) {
		return c.out.WriteContext(ctx, p)
	})
}

func (c *endpointChannel) Read(ctx context.Context, p []byte) (int, error) {
	return c.d.transfer(ctx, c.name+" read", c.mutex, func(ctx context.Context) (int, error) {
		return c.in.ReadContext(ctx, p)
	})
}

// Control is the simple command channel on interface 0.
func (d *Device) Control() core.Channel {
	return &endpointChannel{d: d, name: "control", out: d.ctrlOut, in: d.ctrlIn, mutex: &d.ctrlMutex}
}

// Bridge is the UART bridge channel. It is nil unless Options.Bridge was
// set.
func (d *Device) Bridge() core.Channel {
	if d.bridgeOut == nil {
		return nil
	}
	return &endpointChannel{d: d, name: "bridge", out: d.bridgeOut, in: d.bridgeIn, mutex: &d.bridgeMutex}
}

type bulkSink struct {
	d *Device
}

func (s bulkSink) WriteSamples(ctx context.Context, p []byte) (int, error) {
	return s.d.transfer(ctx, "bulk write", &s.d.dataMutex, func(ctx context.Context) (int, error) {
		return s.d.dataOut.WriteContext(ctx, p)
	})
}

// Samples is the bulk sample sink. It is nil unless the device was
// opened with DataBulk.
func (d *Device) Samples() core.SampleSink {
	if d.dataOut == nil || d.dataOut.Desc.TransferType != gousb.TransferTypeBulk {
		return nil
	}
	return bulkSink{d}
}

// isoSink queues packets on the isochronous endpoint.
type isoSink struct {
	d      *Device
	stream *gousb.WriteStream
}

func (s *isoSink) Write(p []byte) (int, error) {
	if s.d.closed.Load() {
		return 0, types.NewError(types.ErrTransportFailure, "iso write", errClosed)
	}
	n, err := s.stream.Write(p)
	if err != nil {
		return n, types.NewError(types.ErrTransportFailure, "iso write", err)
	}
	return n, nil
}

func (s *isoSink) Close() error {
	if err := s.stream.Close(); err != nil {
		return types.NewError(types.ErrTransportFailure, "iso close", err)
	}
	return nil
}

// Iso opens a stream of count transfers of packetBytes each on the
// isochronous endpoint. The device must have been opened with DataIso.
func (d *Device) Iso(packetBytes, count int) (core.AsyncSink, error) {
	if d.dataOut == nil || d.dataOut.Desc.TransferType != gousb.TransferTypeIsochronous {
		return nil, types.NewError(types.ErrTransportFailure, "iso", errNoIso)
	}
	stream, err := d.dataOut.NewStream(packetBytes, count)
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "iso stream", err)
	}
	return &isoSink{d: d, stream: stream}, nil
}
