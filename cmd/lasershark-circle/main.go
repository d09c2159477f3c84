// Command lasershark-circle writes line protocol input that draws a
// circle, for piping into lasershark or publishing to its redis channel.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/config"
	"github.com/macpod/lasershark-go/internal/source"
)

const linesPerMessage = 128

func main() {
	var (
		configPath string
		rate       uint
		points     uint
		count      uint64
		toRedis    bool
	)
	flag.StringVar(&configPath, "c", "", "Read the redis settings from a YAML file")
	flag.UintVar(&rate, "r", 20000, "ILDA rate in points per second")
	flag.UintVar(&points, "p", 1000, "Points per revolution")
	flag.Uint64Var(&count, "n", 0, "Stop after this many points and flush; 0 runs until interrupted")
	flag.BoolVar(&toRedis, "redis", false, "Publish to the configured redis channel instead of stdout")
	flag.Parse()

	user := logrus.New()
	if points == 0 {
		user.Fatal("need at least one point per revolution")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out flusher = bufio.NewWriter(os.Stdout)
	if toRedis {
		cfg := config.Default()
		if configPath != "" {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				user.Fatal(err)
			}
		}
		p, err := source.NewPublisher(ctx, cfg.Redis)
		if err != nil {
			user.Fatal(err)
		}
		defer p.Close()
		out = &batch{w: p}
	}

	err := writeCircle(ctx, out, uint32(rate), int(points), count)
	if ferr := out.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		user.Fatal(err)
	}
}

type flusher interface {
	io.Writer
	Flush() error
}

// batch joins whole lines into messages of linesPerMessage lines. Every
// Write must be exactly one line.
type batch struct {
	w     io.Writer
	buf   []byte
	lines int
}

func (b *batch) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	b.lines++
	if b.lines == linesPerMessage {
		return len(p), b.Flush()
	}
	return len(p), nil
}

func (b *batch) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	_, err := b.w.Write(b.buf)
	b.buf = b.buf[:0]
	b.lines = 0
	return err
}

func toDAC(v float64) uint16 {
	return uint16(4095 * (v + 1) / 2)
}

// writeCircle writes the rate and enable lines, then circle samples with
// full A and B, C and IntlA set. With count > 0 it stops after count
// samples and ends with a flush and output disable.
func writeCircle(ctx context.Context, w io.Writer, rate uint32, points int, count uint64) error {
	if _, err := fmt.Fprintf(w, "r=%d\n", rate); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "e=1\n"); err != nil {
		return err
	}

	step := 2 * math.Pi / float64(points)
	for i := uint64(0); count == 0 || i < count; i++ {
		if i%uint64(points) == 0 && ctx.Err() != nil {
			return nil
		}
		angle := float64(i%uint64(points)) * step
		x, y := toDAC(math.Sin(angle)), toDAC(math.Cos(angle))
		if _, err := fmt.Fprintf(w, "s=%d,%d,%d,%d,%d,%d\n", x, y, 4095, 4095, 1, 1); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprint(w, "f=1\n"); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "e=0\n")
	return err
}
