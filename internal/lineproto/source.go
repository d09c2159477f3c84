package lineproto

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// MaxLineLen bounds a single input line.
const MaxLineLen = 16 << 20

// Source yields input lines. Next returns io.EOF when there are no more.
type Source interface {
	Next(ctx context.Context) (string, error)
}

type readResult struct {
	line string
	err  error
}

// ReaderSource reads lines from an io.Reader. Reading happens in its own
// goroutine so that a blocked stdin does not hold up cancellation.
type ReaderSource struct {
	lines chan readResult
	done  chan struct{}
	once  sync.Once
}

func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{
		lines: make(chan readResult),
		done:  make(chan struct{}),
	}
	go s.read(r)
	return s
}

func (s *ReaderSource) read(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineLen)
	for sc.Scan() {
		if !s.send(readResult{line: sc.Text()}) {
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	s.send(readResult{err: err})
}

func (s *ReaderSource) send(r readResult) bool {
	select {
	case s.lines <- r:
		return true
	case <-s.done:
		return false
	}
}

// Close stops handing out lines. The reading goroutine exits once its
// pending read returns.
func (s *ReaderSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *ReaderSource) Next(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return "", io.EOF
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", io.EOF
	case r, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	}
}
