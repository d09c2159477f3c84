// Command lasershark-rt streams a generated Lissajous figure over the
// isochronous endpoint, the way an audio server would feed the
// projector.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/config"
	"github.com/macpod/lasershark-go/internal/core"
	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/realtime"
	"github.com/macpod/lasershark-go/internal/usb"
	"github.com/macpod/lasershark-go/internal/wire"
	"github.com/macpod/lasershark-go/types"
)

const (
	// period is how often the producer runs, like an audio callback.
	period       = 10 * time.Millisecond
	isoTransfers = 8
)

func main() {
	var (
		configPath string
		serialNum  string
		rate       uint
		verbose    bool
	)
	flag.StringVar(&configPath, "c", "", "Read settings from a YAML file")
	flag.StringVar(&serialNum, "s", "", "Open the board with this serial number")
	flag.UintVar(&rate, "r", 30000, "ILDA rate in points per second")
	flag.BoolVar(&verbose, "v", false, "Write verbose logs to stderr")
	flag.Parse()

	user := logrus.New()
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			user.Fatal(err)
		}
	}
	if serialNum != "" {
		cfg.USB.Serial = serialNum
	}
	var log *logs.Logger
	if verbose || cfg.Log.Verbose {
		log = logs.New(os.Stderr, "rt")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, uint32(rate), user, log); err != nil {
		user.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, rate uint32, user *logrus.Logger, log *logs.Logger) error {
	dev, err := usb.Open(usb.Options{
		Vendor:           cfg.USB.Vendor,
		Product:          cfg.USB.Product,
		Serial:           cfg.USB.Serial,
		ControlInterface: cfg.USB.ControlInterface,
		DataInterface:    cfg.USB.DataInterface,
		Data:             usb.DataIso,
		Timeout:          cfg.USB.BulkTimeout,
	}, log.Named("usb"))
	if err != nil {
		return err
	}
	defer dev.Close()

	cmd := core.NewCommander(dev.Control(), log.Named("commander"))
	caps, err := core.Negotiate(ctx, cmd, core.SessionOptions{
		Firmware: core.Version{Major: cfg.Session.FirmwareMajor, Minor: cfg.Session.FirmwareMinor},
		Iso:      true,
	}, user)
	if err != nil {
		return err
	}
	if rate == 0 || rate > caps.MaxILDARate {
		return fmt.Errorf("rate %d outside 1..%d", rate, caps.MaxILDARate)
	}
	if err = cmd.SetILDARate(ctx, rate); err != nil {
		return err
	}

	sink, err := dev.Iso(int(caps.PacketSampleCount)*wire.SampleLen, isoTransfers)
	if err != nil {
		return err
	}
	ring := realtime.NewRing(ringSize(caps.PacketSampleCount, rate))
	pump, err := realtime.NewPump(ring, sink, caps.PacketSampleCount, 0, user, log.Named("pump"))
	if err != nil {
		sink.Close()
		return err
	}

	pumpCtx, stopPump := context.WithCancel(context.Background())
	var pumpErr error
	pumpDone := make(chan struct{})
	go func() {
		pumpErr = pump.Run(pumpCtx)
		close(pumpDone)
	}()

	if err = cmd.SetOutput(ctx, true); err != nil {
		stopPump()
		<-pumpDone
		return err
	}
	user.Infof("Streaming at %d pps, %d samples per packet", rate, caps.PacketSampleCount)

	produce(ctx, pump, pumpDone, rate, caps)

	// Output off first, then stop the pump.
	down := context.Background()
	if oerr := cmd.SetOutput(down, false); oerr != nil && err == nil {
		err = oerr
	}
	stopPump()
	<-pumpDone
	if pumpErr != nil && err == nil {
		err = pumpErr
	}
	if cerr := cmd.ClearRingbuffer(down); cerr != nil && err == nil {
		err = cerr
	}
	if pump.Dropped() > 0 {
		user.Warnf("%d samples were dropped", pump.Dropped())
	}
	return err
}

// ringSize holds a quarter second of samples and at least four packets,
// rounded up to a power of two.
func ringSize(packet, rate uint32) int {
	want := rate / 4
	if want < 4*packet {
		want = 4 * packet
	}
	size := 2
	for uint32(size) < want {
		size <<= 1
	}
	return size
}

// produce feeds the pump one period of samples at a time until ctx is
// done or the pump gives up.
func produce(ctx context.Context, pump *realtime.Pump, pumpDone <-chan struct{}, rate uint32, caps types.Capabilities) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	gen := lissajous{fx: 3, fy: 2, rate: float64(rate)}
	buf := make([]types.Sample, int(float64(rate)*period.Seconds()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-pumpDone:
			return
		case <-ticker.C:
		}
		gen.fill(buf, caps)
		pump.Produce(buf)
	}
}

// lissajous traces x = sin(fx t), y = sin(fy t) once per second.
type lissajous struct {
	fx, fy float64
	rate   float64
	n      uint64
}

func (l *lissajous) fill(buf []types.Sample, caps types.Capabilities) {
	for i := range buf {
		t := 2 * math.Pi * float64(l.n) / l.rate
		buf[i] = realtime.FromSignal(1, math.Sin(l.fx*t), math.Sin(l.fy*t), caps)
		l.n++
	}
}
