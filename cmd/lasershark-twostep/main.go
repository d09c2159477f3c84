// Command lasershark-twostep drives a Twostep stepper board, either
// through the Lasershark UART bridge or a serial adapter.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/config"
	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/serial"
	"github.com/macpod/lasershark-go/internal/twostep"
	"github.com/macpod/lasershark-go/internal/uartbridge"
	"github.com/macpod/lasershark-go/internal/usb"
)

const (
	pingPongSteps    = 200
	pingPongInterval = time.Second
	testPause        = time.Second
)

func main() {
	var (
		configPath string
		serialNum  string
		port       string
		tests      bool
		verbose    bool
	)
	flag.StringVar(&configPath, "c", "", "Read settings from a YAML file")
	flag.StringVar(&serialNum, "s", "", "Open the Lasershark with this serial number")
	flag.StringVar(&port, "port", "", "Talk to the Twostep board on this serial port instead of the UART bridge")
	flag.BoolVar(&tests, "test", false, "Run every command once and report, then exit")
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
	if port != "" {
		cfg.Twostep.SerialPort = port
	}
	var log *logs.Logger
	if verbose || cfg.Log.Verbose {
		log = logs.New(os.Stderr, "twostep")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, closePort, err := openPort(ctx, cfg, user, log)
	if err != nil {
		user.Fatal(err)
	}
	defer closePort()

	c := twostep.NewClient(p, cfg.Twostep.SettleDelay, log.Named("client"))
	if tests {
		runTests(ctx, c, os.Stdout, testPause)
		return
	}
	if err = pingPong(ctx, c, os.Stdout, pingPongInterval); err != nil {
		user.Error(err)
		os.Exit(1)
	}
}

// openPort reaches the board over a serial adapter when one is
// configured and over the UART bridge otherwise.
func openPort(
	ctx context.Context,
	cfg *config.Config,
	user logrus.FieldLogger,
	log *logs.Logger,
) (twostep.Port, func(), error) {
	if cfg.Twostep.SerialPort != "" {
		p, err := serial.Open(cfg.Twostep.SerialPort, cfg.Twostep.BaudRate, log.Named("serial"))
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	}

	dev, err := usb.Open(usb.Options{
		Vendor:           cfg.USB.Vendor,
		Product:          cfg.USB.Product,
		Serial:           cfg.USB.Serial,
		ControlInterface: cfg.USB.ControlInterface,
		BridgeInterface:  cfg.USB.BridgeInterface,
		Bridge:           true,
		Timeout:          cfg.USB.BulkTimeout,
	}, log.Named("usb"))
	if err != nil {
		return nil, nil, err
	}
	user.Infof("iSerialNumber: %s", dev.Info().Serial)

	b, err := uartbridge.Open(ctx, dev.Bridge(), log.Named("bridge"))
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	user.Infof("UART bridge up, max tx %d, max rx %d", b.MaxTx(), b.MaxRx())
	return b, func() { dev.Close() }, nil
}

// runTests sends every command once and prints how each went. Failures
// do not stop the sweep.
func runTests(ctx context.Context, c *twostep.Client, out io.Writer, pause time.Duration) {
	report := func(name string, err error, value ...interface{}) {
		switch {
		case err != nil:
			fmt.Fprintf(out, "%s cmd failed: %s\n", name, err)
		case len(value) > 0:
			fmt.Fprintf(out, "%s cmd passed, value is: %v\n", name, value[0])
		default:
			fmt.Fprintf(out, "%s cmd passed\n", name)
		}
		if pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pause):
			}
		}
	}
	s := uint8(twostep.Stepper1)

	report("set enable", c.SetEnable(ctx, s, true))
	enable, err := c.Enable(ctx, s)
	report("get enable", err, enable)
	report("set steps", c.SetSteps(ctx, s, 2000))
	report("set safe steps", c.SetSafeSteps(ctx, s, 2000))
	report("set step until switch", c.SetStepUntilSwitch(ctx, s))
	report("set microsteps", c.SetMicrosteps(ctx, s, twostep.SixteenthStep))
	micro, err := c.Microsteps(ctx, s)
	report("get microsteps", err, micro)
	report("set dir", c.SetDir(ctx, s, false))
	high, err := c.Dir(ctx, s)
	report("get dir", err, high)
	report("set current", c.SetCurrent(ctx, s, 200))
	current, err := c.Current(ctx, s)
	report("get current", err, current)
	report("set 100us delay", c.Set100usDelay(ctx, s, 1000))
	delay, err := c.Delay100us(ctx, s)
	report("get 100us delay", err, delay)
	switches, err := c.SwitchStatus(ctx)
	report("get switch status", err, fmt.Sprintf("%02x", switches))
	version, err := c.Version(ctx)
	report("get version", err, version)
	report("start", c.Start(ctx, twostep.Stepper1Bit))
	moving, err := c.IsMoving(ctx, s)
	report("get is moving", err, moving)
	report("stop", c.Stop(ctx, twostep.Stepper1Bit))
}

var steppers = [2]struct {
	id    uint8
	bit   uint8
	delay uint16
}{
	{twostep.Stepper1, twostep.Stepper1Bit, 100},
	{twostep.Stepper2, twostep.Stepper2Bit, 500},
}

// pingPong runs both steppers back and forth, turning each around when it
// stops, until ctx is cancelled or a command fails. The steppers are
// stopped and disabled on the way out.
func pingPong(ctx context.Context, c *twostep.Client, out io.Writer, interval time.Duration) (err error) {
	defer func() {
		// Shutdown uses its own context, ctx is usually cancelled by now.
		down := context.Background()
		for _, st := range steppers {
			if serr := c.Stop(down, st.bit); serr != nil && err == nil {
				err = serr
			}
			if serr := c.SetEnable(down, st.id, false); serr != nil && err == nil {
				err = serr
			}
		}
		fmt.Fprintln(out, "Steppers stopped and disabled")
	}()

	for _, st := range steppers {
		if err = c.SetEnable(ctx, st.id, true); err != nil {
			return fmt.Errorf("enabling stepper %d: %w", st.id, err)
		}
		if err = c.Set100usDelay(ctx, st.id, st.delay); err != nil {
			return fmt.Errorf("setting delay of stepper %d: %w", st.id, err)
		}
	}
	fmt.Fprintln(out, "Running")

	high := [2]bool{false, true}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for i, st := range steppers {
			moving, err := c.IsMoving(ctx, st.id)
			if err != nil {
				return returnUnlessDone(ctx, err)
			}
			if moving {
				continue
			}
			high[i] = !high[i]
			if err = c.SetDir(ctx, st.id, high[i]); err != nil {
				return returnUnlessDone(ctx, err)
			}
			if err = c.SetSafeSteps(ctx, st.id, pingPongSteps); err != nil {
				return returnUnlessDone(ctx, err)
			}
			if err = c.Start(ctx, st.bit); err != nil {
				return returnUnlessDone(ctx, err)
			}
			fmt.Fprintf(out, "stepper %d turned, dir high %v\n", st.id, high[i])
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Quitting gracefully")
			return nil
		case <-ticker.C:
		}
	}
}

func returnUnlessDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
