package usb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/gousb"

	"github.com/macpod/lasershark-go/types"
)

func TestClassify(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()

	cancelled, cancel2 := context.WithCancel(context.Background())
	cancel2()

	live := context.Background()

	tests := []struct {
		name   string
		parent context.Context
		tctx   context.Context
		err    error
		want   error
	}{
		{"deadline", live, expired, gousb.TransferCancelled, types.ErrTimeout},
		{"timed out status", live, live, gousb.TransferTimedOut, types.ErrTimeout},
		{"stall", live, live, gousb.TransferStall, types.ErrTransportFailure},
		{"no device", live, live, gousb.ErrorNoDevice, types.ErrTransportFailure},
		{"caller cancelled", cancelled, cancelled, gousb.TransferCancelled, types.ErrTransportFailure},
	}
	for _, tt := range tests {
		err := classify(tt.parent, tt.tctx, "bulk write", tt.err)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want kind %v", tt.name, err, tt.want)
		}
		if !errors.Is(err, tt.err) {
			t.Errorf("%s: cause lost", tt.name)
		}
	}
}

func TestClosedDevice(t *testing.T) {
	d := &Device{}
	d.closed.Store(true)
	_, err := d.Control().Write(context.Background(), []byte{0x80})
	if !errors.Is(err, types.ErrTransportFailure) || !errors.Is(err, errClosed) {
		t.Errorf("got %v", err)
	}
	if d.Samples() != nil || d.Bridge() != nil {
		t.Error("unopened endpoints handed out")
	}
	if _, err = d.Iso(64, 4); err == nil {
		t.Error("iso sink without iso endpoint")
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.Vendor != 0x1fc9 || o.Product != 0x04d8 || o.Timeout != 100*time.Millisecond {
		t.Errorf("%+v", o)
	}
}
