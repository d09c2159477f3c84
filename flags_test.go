package main

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/macpod/lasershark-go/internal/core"
)

func parse(t *testing.T, args ...string) initOptions {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts, err := parseFlags(fs, args)
	if err != nil {
		t.Fatal(err)
	}
	return opts
}

func TestFirmwareFlag(t *testing.T) {
	tests := []struct {
		value string
		want  core.Version
		ok    bool
	}{
		{"2.5", core.Version{Major: 2, Minor: 5}, true},
		{"any", core.Version{}, true},
		{"3", core.Version{}, false},
		{"2.x", core.Version{}, false},
		{"2.5.1", core.Version{}, false},
	}
	for _, tt := range tests {
		var f firmwareFlag
		err := f.Set(tt.value)
		if (err == nil) != tt.ok {
			t.Errorf("%q: err %v", tt.value, err)
			continue
		}
		if tt.ok && (f.version != tt.want || !f.set) {
			t.Errorf("%q: got %+v", tt.value, f.version)
		}
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	text := "usb:\n  serial: FROMFILE\nsession:\n  drain_interval: 3s\n"
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(parse(t, "-c", path, "-s", "FROMFLAG", "-fw", "any", "-v"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.USB.Serial != "FROMFLAG" {
		t.Errorf("serial %q", cfg.USB.Serial)
	}
	if cfg.Session.DrainInterval != 3*time.Second {
		t.Errorf("drain %s", cfg.Session.DrainInterval)
	}
	if cfg.Session.FirmwareMajor != 0 || cfg.Session.FirmwareMinor != 0 || !cfg.Log.Verbose {
		t.Errorf("session %+v log %+v", cfg.Session, cfg.Log)
	}

	cfg, err = loadConfig(parse(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.FirmwareMajor != 2 || cfg.Session.FirmwareMinor != 5 {
		t.Errorf("default firmware %+v", cfg.Session)
	}
}

func TestRunVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"-version"}, nil, &out, &errOut); code != 0 {
		t.Errorf("exit %d", code)
	}
	if out.String() != "lasershark version "+version+"\n" {
		t.Errorf("printed %q", out.String())
	}
	if code := run([]string{"-nope"}, nil, &out, &errOut); code != 2 {
		t.Errorf("bad flag exit %d", code)
	}
}
