package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/config"
	"github.com/macpod/lasershark-go/internal/core"
	"github.com/macpod/lasershark-go/internal/lineproto"
	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/internal/server"
	"github.com/macpod/lasershark-go/internal/source"
	"github.com/macpod/lasershark-go/internal/usb"
	"github.com/macpod/lasershark-go/types"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func loadConfig(opts initOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.config != "" {
		var err error
		if cfg, err = config.Load(opts.config); err != nil {
			return nil, err
		}
	}
	if opts.logfile != "" {
		cfg.Log.FilePath = opts.logfile
	}
	if opts.verbose {
		cfg.Log.Verbose = true
	}
	if opts.serial != "" {
		cfg.USB.Serial = opts.serial
	}
	if opts.statusAddr != "" {
		cfg.Status.Addr = opts.statusAddr
	}
	if opts.firmware.set {
		cfg.Session.FirmwareMajor = opts.firmware.version.Major
		cfg.Session.FirmwareMinor = opts.firmware.version.Minor
	}
	return cfg, nil
}

func usbOptions(cfg *config.Config, data usb.DataMode, bridge bool) usb.Options {
	return usb.Options{
		Vendor:           cfg.USB.Vendor,
		Product:          cfg.USB.Product,
		Serial:           cfg.USB.Serial,
		ControlInterface: cfg.USB.ControlInterface,
		DataInterface:    cfg.USB.DataInterface,
		BridgeInterface:  cfg.USB.BridgeInterface,
		Data:             data,
		Bridge:           bridge,
		Timeout:          cfg.USB.BulkTimeout,
	}
}

// sessionState is what the status server reads while the session runs.
type sessionState struct {
	mutex  sync.Mutex
	status types.SessionStatus
	interp *lineproto.Interpreter
}

func (s *sessionState) open(info types.DeviceInfo, caps types.Capabilities, interp *lineproto.Interpreter) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = types.SessionStatus{Active: true, Device: info, Caps: caps}
	s.interp = interp
}

func (s *sessionState) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status.Active = false
}

func (s *sessionState) snapshot() types.SessionStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	st := s.status
	if s.interp != nil {
		st.Lines = s.interp.Line()
	}
	return st
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lasershark", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts, err := parseFlags(fs, args)
	if err != nil {
		return 2
	}
	if opts.versionFlag {
		fmt.Fprintf(stdout, "lasershark version %s\n", version)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	_, user, shortWriter, longWriter, err := initLoggers(cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log := logs.New(longWriter, "main")
	log.Logf("lasershark %s starting", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.list {
		return listDevices(cfg, stdout, user, log)
	}

	reg := prometheus.NewRegistry()
	if err = metrics.Register(reg); err != nil {
		user.Errorf("Registering metrics failed: %s", err)
		return 1
	}

	state := &sessionState{}
	if cfg.Status.Addr != "" {
		s := server.New(server.Options{
			Addr:     cfg.Status.Addr,
			Version:  version,
			Session:  state.snapshot,
			Devices:  func() ([]types.DeviceInfo, error) { return usb.List(usbOptions(cfg, usb.DataNone, false), log) },
			Registry: reg,
		}, io.Discard, shortWriter, longWriter)
		go func() {
			if err := s.Run(ctx); err != nil {
				user.Errorf("Status server failed: %s", err)
			}
		}()
		user.Infof("Status page on http://%s/status/", cfg.Status.Addr)
	}

	if err = stream(ctx, cfg, opts, state, stdin, stdout, user, log); err != nil {
		user.Errorf("%s", err)
		return 1
	}
	return 0
}

// stream opens the board, runs the line protocol until the input ends and
// closes the session.
func stream(
	ctx context.Context,
	cfg *config.Config,
	opts initOptions,
	state *sessionState,
	stdin io.Reader,
	stdout io.Writer,
	user *logrus.Logger,
	log *logs.Logger,
) (err error) {
	dev, err := usb.Open(usbOptions(cfg, usb.DataBulk, false), log.Named("usb"))
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			log.Logf("closing device: %s", cerr)
		}
	}()
	user.Infof("Opened board %s", dev.Info().Serial)

	sess, err := core.OpenSession(ctx, dev.Control(), dev.Samples(), core.SessionOptions{
		Firmware:      core.Version{Major: cfg.Session.FirmwareMajor, Minor: cfg.Session.FirmwareMinor},
		DrainInterval: cfg.Session.DrainInterval,
	}, log.Named("core"), user)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer func() {
		state.close()
		// The session is closed even after ctx is cancelled.
		if cerr := sess.Close(context.Background()); cerr != nil && err == nil {
			err = fmt.Errorf("closing session: %w", cerr)
		}
	}()

	var src lineproto.Source
	if opts.redis {
		r, err := source.Dial(ctx, cfg.Redis, user)
		if err != nil {
			return err
		}
		defer r.Close()
		src = r
	} else {
		r := lineproto.NewReaderSource(stdin)
		defer r.Close()
		src = r
	}

	interp := lineproto.New(sess.Commander, sess.Streamer, sess.Caps, stdout, user, log.Named("lineproto"))
	state.open(dev.Info(), sess.Caps, interp)

	err = interp.Run(ctx, src)
	if errors.Is(err, types.ErrSessionPrecondition) {
		return fmt.Errorf("input rejected: %w", err)
	}
	return err
}

func listDevices(cfg *config.Config, stdout io.Writer, user *logrus.Logger, log *logs.Logger) int {
	devs, err := usb.List(usbOptions(cfg, usb.DataNone, false), log.Named("usb"))
	if err != nil {
		user.Errorf("Listing devices failed: %s", err)
		return 1
	}
	if len(devs) == 0 {
		user.Info("No boards found")
	}
	for _, d := range devs {
		fmt.Fprintf(stdout, "%s\tbus %d address %d\n", d.Serial, d.Bus, d.Address)
	}
	return 0
}
