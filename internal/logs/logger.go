package logs

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
)

const modulePath = "github.com/macpod/lasershark-go/"

// Logger writes caller-annotated trace lines: "[file line func] prefix msg".
// A nil *Logger or one with a nil Writer discards everything, so packages
// can trace unconditionally.
type Logger struct {
	Writer io.Writer
	Prefix string
	mutex  sync.Mutex
}

func findInternalPrefix() string {
	pc := make([]uintptr, 15)
	n := runtime.Callers(1, pc)
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()
	return strings.TrimSuffix(frame.File, "internal/logs/logger.go")
}

var internalPrefix = findInternalPrefix()

// New returns a logger that tags every line with prefix.
func New(w io.Writer, prefix string) *Logger {
	return &Logger{Writer: w, Prefix: prefix}
}

// Named returns a logger sharing the writer with a different prefix.
func (l *Logger) Named(prefix string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{Writer: l.Writer, Prefix: prefix}
}

func (l *Logger) Write(p []byte) (int, error) {
	l.logIn(string(p), 3)
	return len(p), nil
}

func (l *Logger) Log(s string) {
	l.logIn(s, 3)
}

func (l *Logger) Logf(format string, args ...interface{}) {
	l.logIn(fmt.Sprintf(format, args...), 3)
}

// callers is the number of frames between runtime.Callers and the
// function that should be named in the line.
func (l *Logger) logIn(s string, callers int) {
	if l == nil || l.Writer == nil {
		return
	}
	s = strings.TrimSuffix(s, "\n")
	pc := make([]uintptr, 15)
	n := runtime.Callers(callers, pc)
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()
	file := strings.TrimPrefix(frame.File, internalPrefix)
	function := strings.TrimPrefix(frame.Function, modulePath)
	r := fmt.Sprintf("[%s %d %s]", file, frame.Line, function)
	if l.Prefix != "" {
		r += " " + l.Prefix + " -"
	}
	l.println(r + " " + s)
}

func (l *Logger) println(s string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	_, err := l.Writer.Write([]byte(s + "\n"))
	if err != nil {
		// give up, just print on stdout
		fmt.Println(err)
	}
}
