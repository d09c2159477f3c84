package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/macpod/lasershark-go/internal/lineproto"
)

func TestWriteCircle(t *testing.T) {
	var out bytes.Buffer
	if err := writeCircle(context.Background(), &out, 20000, 4, 4); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	want := []string{
		"r=20000",
		"e=1",
		"s=2047,4095,4095,4095,1,1",
		"s=4095,2047,4095,4095,1,1",
		"s=2047,0,4095,4095,1,1",
		"s=0,2047,4095,4095,1,1",
		"f=1",
		"e=0",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
	for _, l := range lines[2:6] {
		if _, err := lineproto.ParseSample(l, 4095); err != nil {
			t.Errorf("%q does not parse: %s", l, err)
		}
	}
}

func TestWriteCircleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := writeCircle(ctx, &out, 1000, 10, 0); err != nil {
		t.Fatal(err)
	}
	if out.String() != "r=1000\ne=1\n" {
		t.Errorf("got %q", out.String())
	}
}

func TestBatchKeepsLinesWhole(t *testing.T) {
	var msgs []string
	b := &batch{w: writerFunc(func(p []byte) (int, error) {
		msgs = append(msgs, string(p))
		return len(p), nil
	})}
	for i := 0; i < linesPerMessage+1; i++ {
		b.Write([]byte("e=1\n"))
	}
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1] != "e=1\n" || strings.Count(msgs[0], "\n") != linesPerMessage {
		t.Errorf("got %d messages", len(msgs))
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
