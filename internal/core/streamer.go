package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

const DefaultDrainInterval = time.Second

var ErrNoPacketSize = errors.New("device reports zero samples per packet")

// Streamer packs samples into device sized packets. A full packet is
// written as soon as its last sample is pushed; Flush writes a partial one
// and waits for the device to play everything out.
type Streamer struct {
	sink SampleSink
	cmd  *Commander
	caps types.Capabilities

	buf      []byte
	capacity int
	cursor   int

	drainInterval time.Duration
	log           *logs.Logger
}

func NewStreamer(
	sink SampleSink,
	cmd *Commander,
	caps types.Capabilities,
	packetSamples uint32,
	drainInterval time.Duration,
	log *logs.Logger,
) (*Streamer, error) {
	if packetSamples == 0 {
		return nil, ErrNoPacketSize
	}
	if drainInterval <= 0 {
		drainInterval = DefaultDrainInterval
	}
	return &Streamer{
		sink:          sink,
		cmd:           cmd,
		caps:          caps,
		buf:           make([]byte, int(packetSamples)*wire.SampleLen),
		capacity:      int(packetSamples),
		drainInterval: drainInterval,
		log:           log,
	}, nil
}

// Capacity is the number of samples in one packet.
func (s *Streamer) Capacity() int {
	return s.capacity
}

// Pending is the number of samples buffered but not yet written.
func (s *Streamer) Pending() int {
	return s.cursor
}

// Push buffers one sample. A or B outside the DAC range, or A wider than
// 12 bits, is rejected before anything changes.
func (s *Streamer) Push(ctx context.Context, sample types.Sample) error {
	if sample.A > types.MaxA {
		return types.NewError(types.ErrSampleOutOfRange, "push",
			fmt.Errorf("a=%d does not fit 12 bits", sample.A))
	}
	if !s.caps.InDACRange(sample.A) || !s.caps.InDACRange(sample.B) {
		return types.NewError(types.ErrSampleOutOfRange, "push",
			fmt.Errorf("a=%d b=%d outside %d..%d", sample.A, sample.B, s.caps.DACMin, s.caps.DACMax))
	}

	wire.PackSample(s.buf[s.cursor*wire.SampleLen:], sample)
	s.cursor++
	metrics.SamplesPushed.Inc()

	if s.cursor == s.capacity {
		s.cursor = 0
		return s.transfer(ctx, s.buf)
	}
	return nil
}

// Flush writes any partial packet, then polls the device until its ring
// buffer is empty. The cursor is reset even when the write fails.
// Cancelling ctx ends the wait without an error.
func (s *Streamer) Flush(ctx context.Context) error {
	if s.cursor > 0 {
		n := s.cursor
		s.cursor = 0
		if err := s.transfer(ctx, s.buf[:n*wire.SampleLen]); err != nil {
			return err
		}
	}
	return s.drain(ctx)
}

func (s *Streamer) drain(ctx context.Context) error {
	s.log.Logf("draining, ringbuffer holds %d samples", s.caps.RingbufferSampleCount)
	for {
		if ctx.Err() != nil {
			s.log.Log("drain cancelled")
			return nil
		}
		metrics.DrainPolls.Inc()
		empty, err := s.cmd.GetRingbufferEmptySampleCount(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("polling ringbuffer: %w", err)
		}
		metrics.DeviceEmpty.Set(float64(empty))
		if empty == s.caps.RingbufferSampleCount {
			s.log.Log("drained")
			return nil
		}
		s.log.Logf("%d of %d samples left", s.caps.RingbufferSampleCount-empty, s.caps.RingbufferSampleCount)

		t := time.NewTimer(s.drainInterval)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}

// transfer writes p in one go. Timeouts are retried until the write
// succeeds or ctx is done; anything else is fatal. ctx is only looked at
// between attempts, a write in flight runs to its own timeout.
func (s *Streamer) transfer(ctx context.Context, p []byte) error {
	wctx := context.WithoutCancel(ctx)
	for {
		n, err := s.sink.WriteSamples(wctx, p)
		if err == nil {
			if n != len(p) {
				return types.LengthError(types.ErrShortTransfer, "transfer", len(p), n)
			}
			metrics.Transfers.Inc()
			metrics.BytesSent.Add(float64(n))
			return nil
		}
		if !errors.Is(err, types.ErrTimeout) {
			return fmt.Errorf("sample transfer: %w", err)
		}
		if ctx.Err() != nil {
			return types.NewError(types.ErrTimeout, "transfer", ctx.Err())
		}
		metrics.TransferRetries.Inc()
		s.log.Log("transfer timed out, retrying")
	}
}

// Report logs how many samples were buffered but never written and how
// many are still queued in the device. It is called once at session end.
func (s *Streamer) Report(ctx context.Context, user logrus.FieldLogger) error {
	notSent := s.cursor
	s.cursor = 0
	if notSent > 0 {
		user.Warnf("%d samples were not sent, flush before closing to send them", notSent)
	}

	empty, err := s.cmd.GetRingbufferEmptySampleCount(ctx)
	if err != nil {
		user.Errorf("Could not query ringbuffer: %s", err)
		return err
	}
	if empty < s.caps.RingbufferSampleCount {
		user.Warnf("%d samples still in device ringbuffer", s.caps.RingbufferSampleCount-empty)
	}
	return nil
}
