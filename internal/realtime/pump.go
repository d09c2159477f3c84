package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/core"
	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

const (
	// DefaultMaxFailures is how many transfers in a row may fail before
	// the pump gives up.
	DefaultMaxFailures = 8

	dropReportInterval = time.Second
	errorsBuffer       = 16
)

var ErrTooManyFailures = errors.New("too many consecutive transfer failures")

// Pump moves samples from a real-time producer to the device. Produce is
// safe to call from a callback that must not block; Run sends whole
// packets to the sink from its own goroutine.
type Pump struct {
	ring        *Ring
	sink        core.AsyncSink
	packet      []byte
	maxFailures int

	dropped  atomic.Uint64
	lastDrop atomic.Int64
	errs     chan error

	user logrus.FieldLogger
	log  *logs.Logger
}

// NewPump returns a pump over ring writing packetSamples samples per
// transfer. maxFailures <= 0 means DefaultMaxFailures.
func NewPump(
	ring *Ring,
	sink core.AsyncSink,
	packetSamples uint32,
	maxFailures int,
	user logrus.FieldLogger,
	log *logs.Logger,
) (*Pump, error) {
	if packetSamples == 0 {
		return nil, core.ErrNoPacketSize
	}
	if int(packetSamples) > int(ring.size()) {
		return nil, fmt.Errorf("packet of %d samples does not fit a ring of %d", packetSamples, ring.size())
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Pump{
		ring:        ring,
		sink:        sink,
		packet:      make([]byte, int(packetSamples)*wire.SampleLen),
		maxFailures: maxFailures,
		errs:        make(chan error, errorsBuffer),
		user:        user,
		log:         log,
	}, nil
}

// Produce queues samples without blocking. Samples that do not fit are
// dropped and counted.
func (p *Pump) Produce(samples []types.Sample) int {
	n := p.ring.Write(samples)
	if lost := len(samples) - n; lost > 0 {
		p.dropped.Add(uint64(lost))
		metrics.SamplesDropped.Add(float64(lost))
		p.reportDrop()
	}
	return n
}

// reportDrop warns at most once per dropReportInterval.
func (p *Pump) reportDrop() {
	now := time.Now().UnixNano()
	last := p.lastDrop.Load()
	if now-last < int64(dropReportInterval) || !p.lastDrop.CompareAndSwap(last, now) {
		return
	}
	p.user.Warnf("Sample ring full, %d samples dropped so far", p.dropped.Load())
}

// Dropped is the total number of samples dropped.
func (p *Pump) Dropped() uint64 {
	return p.dropped.Load()
}

// Errors carries transfer failures as they happen. Failures are dropped
// when nobody reads them.
func (p *Pump) Errors() <-chan error {
	return p.errs
}

// Run sends packets until ctx is done or too many transfers fail in a
// row. The sink is closed on the way out.
func (p *Pump) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := p.sink.Close(); cerr != nil && err == nil && ctx.Err() == nil {
			err = cerr
		}
		close(p.errs)
	}()

	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()

	failures := 0
	for {
		for p.ring.ReadPacket(p.packet) {
			if _, werr := p.sink.Write(p.packet); werr != nil {
				failures++
				p.log.Logf("transfer failed (%d in a row): %s", failures, werr)
				select {
				case p.errs <- werr:
				default:
				}
				if failures >= p.maxFailures {
					return fmt.Errorf("%w: %d, last: %w", ErrTooManyFailures, failures, werr)
				}
				continue
			}
			failures = 0
			metrics.Transfers.Inc()
			metrics.BytesSent.Add(float64(len(p.packet)))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.ring.Readable():
		case <-poll.C:
			// Readable only fires on empty to non-empty, a partial packet
			// has to be polled until it fills.
		}
	}
}
