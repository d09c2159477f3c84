package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/types"
)

// Version is a firmware major.minor pair.
type Version struct {
	Major uint32
	Minor uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

type SessionOptions struct {
	// Firmware the board must report. A zero value accepts any.
	Firmware Version
	// Iso selects the isochronous packet size instead of the bulk one.
	Iso           bool
	DrainInterval time.Duration
}

// Session is one negotiated connection to a board. Capabilities are fixed
// for its lifetime.
type Session struct {
	Commander *Commander
	Streamer  *Streamer
	Caps      types.Capabilities

	log  *logs.Logger
	user logrus.FieldLogger
}

// Negotiate runs the bring-up queries: firmware check, ring buffer clear,
// then the capability registers, and leaves output disabled.
func Negotiate(ctx context.Context, c *Commander, opts SessionOptions, user logrus.FieldLogger) (types.Capabilities, error) {
	var caps types.Capabilities
	var err error

	if caps.FWMajor, err = c.GetFWMajorVersion(ctx); err != nil {
		return caps, fmt.Errorf("getting firmware major version: %w", err)
	}
	if caps.FWMinor, err = c.GetFWMinorVersion(ctx); err != nil {
		return caps, fmt.Errorf("getting firmware minor version: %w", err)
	}
	got := Version{caps.FWMajor, caps.FWMinor}
	if opts.Firmware != (Version{}) && got != opts.Firmware {
		return caps, types.NewError(types.ErrSessionPrecondition, "negotiate",
			fmt.Errorf("firmware %s found, %s expected", got, opts.Firmware))
	}
	user.Infof("Firmware version %s", got)

	if err = c.ClearRingbuffer(ctx); err != nil {
		return caps, fmt.Errorf("clearing ringbuffer: %w", err)
	}

	queries := []struct {
		name string
		dst  *uint32
		get  func(context.Context) (uint32, error)
	}{
		{"sample element count", &caps.SampElementCount, c.GetSampElementCount},
		{"iso packet sample count", &caps.PacketSampleCount, c.GetPacketSampleCount},
		{"bulk packet sample count", &caps.BulkPacketSampleCount, c.GetBulkPacketSampleCount},
		{"max ILDA rate", &caps.MaxILDARate, c.GetMaxILDARate},
		{"DAC min", &caps.DACMin, c.GetDACMin},
		{"DAC max", &caps.DACMax, c.GetDACMax},
		{"ringbuffer sample count", &caps.RingbufferSampleCount, c.GetRingbufferSampleCount},
	}
	for _, q := range queries {
		v, err := q.get(ctx)
		if err != nil {
			return caps, fmt.Errorf("getting %s: %w", q.name, err)
		}
		*q.dst = v
		user.Infof("Getting %s worked: %d", q.name, v)
	}
	if caps.DACMin > caps.DACMax {
		return caps, types.NewError(types.ErrSessionPrecondition, "negotiate",
			fmt.Errorf("DAC range %d..%d is empty", caps.DACMin, caps.DACMax))
	}

	empty, err := c.GetRingbufferEmptySampleCount(ctx)
	if err != nil {
		return caps, fmt.Errorf("getting ringbuffer empty sample count: %w", err)
	}
	user.Infof("Ringbuffer empty sample count: %d", empty)

	if err = c.SetOutput(ctx, false); err != nil {
		return caps, fmt.Errorf("disabling output: %w", err)
	}
	return caps, nil
}

// OpenSession negotiates over ctrl and prepares a streamer writing to sink.
func OpenSession(
	ctx context.Context,
	ctrl Channel,
	sink SampleSink,
	opts SessionOptions,
	log *logs.Logger,
	user logrus.FieldLogger,
) (*Session, error) {
	c := NewCommander(ctrl, log.Named("commander"))
	caps, err := Negotiate(ctx, c, opts, user)
	if err != nil {
		return nil, err
	}

	packet := caps.BulkPacketSampleCount
	if opts.Iso {
		packet = caps.PacketSampleCount
	}
	st, err := NewStreamer(sink, c, caps, packet, opts.DrainInterval, log.Named("streamer"))
	if err != nil {
		return nil, err
	}
	log.Logf("session open, caps %+v", caps)

	return &Session{
		Commander: c,
		Streamer:  st,
		Caps:      caps,
		log:       log,
		user:      user,
	}, nil
}

// Close disables output, reports samples that never made it out and
// clears the device ring buffer. The first failure is returned, but every
// step is attempted.
func (s *Session) Close(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if err := s.Commander.SetOutput(ctx, false); err != nil {
		s.user.Errorf("Disabling output failed: %s", err)
		keep(err)
	}
	keep(s.Streamer.Report(ctx, s.user))
	if err := s.Commander.ClearRingbuffer(ctx); err != nil {
		s.user.Errorf("Clearing ringbuffer failed: %s", err)
		keep(err)
	}
	s.log.Log("session closed")
	return first
}
