package logs

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// hardcoded, so that one runaway line cannot eat the buffer
const maxLineLength = 500

var ErrBadSize = errors.New("memory writer size cannot be <1")

// MemoryWriter keeps the first lines of a run and a fixed number of the
// latest ones. The status page shows the short writer; the long one is
// downloadable as gzip.
type MemoryWriter struct {
	mutex sync.Mutex

	head    [][]byte // first lines, never overwritten
	headCap int

	slots [][]byte // latest lines, slots[next] is the oldest once full
	next  int
	full  bool

	startTime time.Time
	printTime bool
	out       io.Writer
}

// NewMemoryWriter keeps size latest lines and startSize first lines.
// Every line is also copied to out when it is not nil.
func NewMemoryWriter(size int, startSize int, printTime bool, out io.Writer) (*MemoryWriter, error) {
	if size < 1 || startSize < 1 {
		return nil, ErrBadSize
	}
	return &MemoryWriter{
		head:      make([][]byte, 0, startSize),
		headCap:   startSize,
		slots:     make([][]byte, size),
		startTime: time.Now(),
		printTime: printTime,
		out:       out,
	}, nil
}

func (m *MemoryWriter) stamp(p []byte) []byte {
	if len(p) > maxLineLength {
		p = p[:maxLineLength]
	}
	if !m.printTime {
		return append([]byte(nil), p...)
	}
	now := time.Now()
	return []byte(fmt.Sprintf("[%.6f : %s] %s", now.Sub(m.startTime).Seconds(), now.Format("15:04:05"), p))
}

func (m *MemoryWriter) Write(p []byte) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	line := m.stamp(p)
	if len(m.head) < m.headCap {
		m.head = append(m.head, line)
	} else {
		m.slots[m.next] = line
		m.next++
		if m.next == len(m.slots) {
			m.next = 0
			m.full = true
		}
	}

	if m.out != nil {
		if _, err := m.out.Write(line); err != nil {
			fmt.Println(err)
		}
	}
	return len(p), nil
}

// LineCount returns how many lines are currently held.
func (m *MemoryWriter) LineCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.full {
		return len(m.head) + len(m.slots)
	}
	return len(m.head) + m.next
}

// writeTo writes header, the latest lines newest first, a separator and
// the first lines of the run, also newest first.
func (m *MemoryWriter) writeTo(header string, w io.Writer) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	n := m.next
	if m.full {
		n = len(m.slots)
	}
	for i := 1; i <= n; i++ {
		j := (m.next - i + len(m.slots)) % len(m.slots)
		if _, err := w.Write(m.slots[j]); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "...\n"); err != nil {
		return err
	}
	for i := len(m.head) - 1; i >= 0; i-- {
		if _, err := w.Write(m.head[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryWriter) String(header string) (string, error) {
	var b bytes.Buffer
	if err := m.writeTo(header, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Gzip returns the log as a gzip file named lasershark.log.
func (m *MemoryWriter) Gzip(header string) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	gw.Name = "lasershark.log"
	gw.ModTime = time.Now()
	if err = m.writeTo(header, gw); err != nil {
		return nil, err
	}
	if err = gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
