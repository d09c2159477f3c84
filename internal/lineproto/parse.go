package lineproto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/macpod/lasershark-go/types"
)

// Kind is what a line asks for, decided by its first byte.
type Kind int

const (
	KindEmpty Kind = iota
	KindSample
	KindRate
	KindEnable
	KindFlush
	KindPrint
	KindComment
	KindUnknown
)

var kindNames = [...]string{"empty", "sample", "rate", "enable", "flush", "print", "comment", "unknown"}

func (k Kind) String() string {
	return kindNames[k]
}

// minSampleLen is the length of the shortest sample line.
const minSampleLen = len("s=0,0,0,0,0,0")

var (
	errBadSample = errors.New("bad sample command")
	errBadRate   = errors.New("malformed ilda rate command")
	errBadEnable = errors.New("malformed enable command")
	errBadPrint  = errors.New("malformed print command")
	errEmpty     = errors.New("empty line")
	errUnknown   = errors.New("unknown command")
)

// Classify returns the kind of a line without its line terminator.
func Classify(line string) Kind {
	if line == "" {
		return KindEmpty
	}
	switch line[0] {
	case 's':
		return KindSample
	case 'r':
		return KindRate
	case 'e':
		return KindEnable
	case 'f':
		return KindFlush
	case 'p':
		return KindPrint
	case '#':
		return KindComment
	}
	return KindUnknown
}

// scanner walks a line by position. Fields are parsed in place, there is
// no tokenizing.
type scanner struct {
	s   string
	pos int
}

func (sc *scanner) expect(c byte) bool {
	if sc.pos >= len(sc.s) || sc.s[sc.pos] != c {
		return false
	}
	sc.pos++
	return true
}

// uint reads decimal digits, giving up as soon as the value passes limit.
func (sc *scanner) uint(limit uint32) (uint32, bool) {
	start := sc.pos
	var v uint64
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		v = 10*v + uint64(sc.s[sc.pos]-'0')
		sc.pos++
		if v > uint64(limit) {
			return 0, false
		}
	}
	return uint32(v), sc.pos != start
}

// bit reads one digit that must be 0 or 1.
func (sc *scanner) bit() (bool, bool) {
	if sc.pos >= len(sc.s) {
		return false, false
	}
	c := sc.s[sc.pos]
	sc.pos++
	switch c {
	case '0':
		return false, true
	case '1':
		return true, true
	}
	return false, false
}

// ParseSample parses "s=x,y,a,b,c,intl_a". x, y, a and b are bounded by
// dacMax while they are read; c and intl_a are single 0 or 1 digits.
// Anything after intl_a is ignored.
func ParseSample(line string, dacMax uint32) (types.Sample, error) {
	var s types.Sample
	if len(line) < minSampleLen {
		return s, fmt.Errorf("%w: too short", errBadSample)
	}
	sc := scanner{s: line}
	if !sc.expect('s') || !sc.expect('=') {
		return s, errBadSample
	}

	var fields [4]uint32
	names := [4]string{"x", "y", "a", "b"}
	for i := range fields {
		v, ok := sc.uint(dacMax)
		if !ok {
			return s, fmt.Errorf("%w: field %s is not a number up to %d", errBadSample, names[i], dacMax)
		}
		if !sc.expect(',') {
			return s, fmt.Errorf("%w: no comma after %s", errBadSample, names[i])
		}
		fields[i] = v
	}
	if fields[2] > types.MaxA {
		return s, fmt.Errorf("%w: a=%d does not fit in 12 bits", errBadSample, fields[2])
	}

	c, ok := sc.bit()
	if !ok {
		return s, fmt.Errorf("%w: c is not 0 or 1", errBadSample)
	}
	if !sc.expect(',') {
		return s, fmt.Errorf("%w: no comma after c", errBadSample)
	}
	intlA, ok := sc.bit()
	if !ok {
		return s, fmt.Errorf("%w: intl_a is not 0 or 1", errBadSample)
	}

	s = types.Sample{
		X:     uint16(fields[0]),
		Y:     uint16(fields[1]),
		A:     uint16(fields[2]),
		B:     uint16(fields[3]),
		C:     c,
		IntlA: intlA,
	}
	return s, nil
}

// parseValue reads "<prefix>=<uint32>", allowing trailing blanks.
func parseValue(line string, prefix byte, bad error) (uint32, error) {
	sc := scanner{s: line}
	if !sc.expect(prefix) || !sc.expect('=') {
		return 0, bad
	}
	v, ok := sc.uint(^uint32(0))
	if !ok {
		return 0, bad
	}
	if strings.TrimSpace(line[sc.pos:]) != "" {
		return 0, bad
	}
	return v, nil
}

// ParseRate parses "r=<rate>".
func ParseRate(line string) (uint32, error) {
	return parseValue(line, 'r', errBadRate)
}

// ParseEnable parses "e=<n>"; any non-zero n enables.
func ParseEnable(line string) (bool, error) {
	v, err := parseValue(line, 'e', errBadEnable)
	return v != 0, err
}

// ParsePrint returns the text of "p=<text>".
func ParsePrint(line string) (string, error) {
	if len(line) < 2 || line[1] != '=' {
		return "", errBadPrint
	}
	return line[2:], nil
}
