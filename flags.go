package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/macpod/lasershark-go/internal/core"
)

var errFirmwareFlag = errors.New(`firmware must be "major.minor" or "any"`)

// firmwareFlag is the firmware version a board must report. "any"
// switches the check off.
type firmwareFlag struct {
	version core.Version
	set     bool
}

func (f *firmwareFlag) String() string {
	if !f.set {
		return ""
	}
	if f.version == (core.Version{}) {
		return "any"
	}
	return f.version.String()
}

func (f *firmwareFlag) Set(value string) error {
	if value == "any" {
		f.version, f.set = core.Version{}, true
		return nil
	}
	split := strings.Split(value, ".")
	if len(split) != 2 {
		return errFirmwareFlag
	}
	major, err := strconv.ParseUint(split[0], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: %s", errFirmwareFlag, err)
	}
	minor, err := strconv.ParseUint(split[1], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: %s", errFirmwareFlag, err)
	}
	f.version = core.Version{Major: uint32(major), Minor: uint32(minor)}
	f.set = true
	return nil
}

type initOptions struct {
	logfile     string
	verbose     bool
	serial      string
	list        bool
	config      string
	statusAddr  string
	redis       bool
	firmware    firmwareFlag
	versionFlag bool
}

func parseFlags(fs *flag.FlagSet, args []string) (initOptions, error) {
	var options initOptions
	fs.StringVar(
		&(options.logfile),
		"l",
		"",
		"Log into a file, rotating after 20MB",
	)
	fs.BoolVar(
		&(options.verbose),
		"v",
		false,
		"Write verbose logs to either stderr or logfile",
	)
	fs.StringVar(
		&(options.serial),
		"s",
		"",
		"Open the board with this serial number. Example: lasershark -s 0123456789",
	)
	fs.BoolVar(
		&(options.list),
		"list",
		false,
		"List the serial numbers of attached boards and exit",
	)
	fs.StringVar(
		&(options.config),
		"c",
		"",
		"Read settings from a YAML file; flags given on the command line win",
	)
	fs.StringVar(
		&(options.statusAddr),
		"status",
		"",
		"Serve the status page and metrics on this address. Example: -status 127.0.0.1:21330",
	)
	fs.BoolVar(
		&(options.redis),
		"redis",
		false,
		"Read lines from the configured redis channel instead of stdin",
	)
	fs.Var(
		&(options.firmware),
		"fw",
		`Firmware version the board must report, "major.minor" or "any"`,
	)
	fs.BoolVar(
		&(options.versionFlag),
		"version",
		false,
		"Write version",
	)
	err := fs.Parse(args)
	return options, err
}
