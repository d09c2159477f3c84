package lineproto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/types"
)

// Device is the register side of a session.
type Device interface {
	SetILDARate(ctx context.Context, rate uint32) error
	SetOutput(ctx context.Context, enable bool) error
}

// Streamer is the sample side of a session.
type Streamer interface {
	Push(ctx context.Context, s types.Sample) error
	Flush(ctx context.Context) error
}

// LineError is a line that could not be carried out. The session goes on
// past it.
type LineError struct {
	Line uint64
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Err, e.Text)
}

func (e *LineError) Unwrap() error { return e.Err }

func (e *LineError) Is(target error) bool {
	return target == types.ErrLineParse
}

// Interpreter carries out line commands against one session. The first
// non-empty line must set the ILDA rate.
type Interpreter struct {
	dev  Device
	st   Streamer
	caps types.Capabilities

	line    atomic.Uint64
	started bool

	out  io.Writer
	user logrus.FieldLogger
	log  *logs.Logger
}

// New returns an interpreter; p= text goes to out.
func New(
	dev Device,
	st Streamer,
	caps types.Capabilities,
	out io.Writer,
	user logrus.FieldLogger,
	log *logs.Logger,
) *Interpreter {
	return &Interpreter{
		dev:  dev,
		st:   st,
		caps: caps,
		out:  out,
		user: user,
		log:  log,
	}
}

// Line is the number of lines processed so far. It may be read while Run
// is going.
func (in *Interpreter) Line() uint64 {
	return in.line.Load()
}

func (in *Interpreter) lineError(text string, err error) error {
	return &LineError{Line: in.line.Load(), Text: text, Err: err}
}

// Process carries out one line. A *LineError means the line was skipped;
// any other error ends the session.
func (in *Interpreter) Process(ctx context.Context, text string) error {
	text = strings.TrimRight(text, "\r\n")
	line := in.line.Add(1)
	kind := Classify(text)

	if !in.started {
		if kind == KindEmpty {
			return nil
		}
		if kind != KindRate {
			return types.NewError(types.ErrSessionPrecondition, "first line",
				fmt.Errorf("line %d is %s, ilda rate must be set first", line, kind))
		}
		if err := in.process(ctx, kind, text); err != nil {
			return types.NewError(types.ErrSessionPrecondition, "first line", err)
		}
		in.started = true
		return nil
	}
	return in.process(ctx, kind, text)
}

func (in *Interpreter) process(ctx context.Context, kind Kind, text string) error {
	switch kind {
	case KindSample:
		s, err := ParseSample(text, in.caps.DACMax)
		if err != nil {
			return in.lineError(text, types.NewError(types.ErrLineParse, "sample", err))
		}
		err = in.st.Push(ctx, s)
		if errors.Is(err, types.ErrSampleOutOfRange) {
			return in.lineError(text, err)
		}
		return err

	case KindRate:
		rate, err := ParseRate(text)
		if err != nil {
			return in.lineError(text, types.NewError(types.ErrLineParse, "rate", err))
		}
		if rate == 0 || rate > in.caps.MaxILDARate {
			in.user.Warnf("ILDA rate %d outside 1..%d, sending anyway", rate, in.caps.MaxILDARate)
		}
		if err = in.dev.SetILDARate(ctx, rate); err != nil {
			return fmt.Errorf("setting ILDA rate: %w", err)
		}
		in.user.Infof("Setting ILDA rate worked: %d pps", rate)
		return nil

	case KindEnable:
		enable, err := ParseEnable(text)
		if err != nil {
			return in.lineError(text, types.NewError(types.ErrLineParse, "enable", err))
		}
		if err = in.dev.SetOutput(ctx, enable); err != nil {
			return fmt.Errorf("setting output: %w", err)
		}
		if enable {
			in.user.Info("Output enabled")
		}
		return nil

	case KindFlush:
		in.user.Info("Flushing...")
		if err := in.st.Flush(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		in.user.Info("Flush done")
		return nil

	case KindPrint:
		s, err := ParsePrint(text)
		if err != nil {
			return in.lineError(text, types.NewError(types.ErrLineParse, "print", err))
		}
		_, err = fmt.Fprintf(in.out, "PRINT: %s\n", s)
		return err

	case KindComment:
		return nil

	case KindEmpty:
		return in.lineError(text, types.NewError(types.ErrLineParse, "line", errEmpty))
	}
	return in.lineError(text, types.NewError(types.ErrLineParse, "line", errUnknown))
}

// Run feeds lines from src to Process until src ends, ctx is cancelled or
// a line fails in a way that ends the session. Skipped lines are logged.
func (in *Interpreter) Run(ctx context.Context, src Source) error {
	for {
		text, err := src.Next(ctx)
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			in.log.Logf("input ended after %d lines", in.line.Load())
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		err = in.Process(ctx, text)
		var le *LineError
		if errors.As(err, &le) && !errors.Is(err, types.ErrSessionPrecondition) {
			metrics.LineErrors.Inc()
			in.user.Warnf("Error on %s", le)
			continue
		}
		if err != nil {
			return err
		}
	}
}
