package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/macpod/lasershark-go/internal/config"
	"github.com/macpod/lasershark-go/internal/logs"
)

func initLoggers(cfg config.LogConfig) (
	stderrWriter io.Writer, // where short messages go, stderr or the log file
	userLogger *logrus.Logger, // leveled logger writing to stderrWriter and the status page
	shortMemoryWriter *logs.MemoryWriter, // what we show on the status page
	longMemoryWriter *logs.MemoryWriter, // what goes into the detailed log
	err error,
) {
	if cfg.FilePath != "" {
		stderrWriter = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
		}
	} else {
		stderrWriter = os.Stderr
	}

	shortMemoryWriter, err = logs.NewMemoryWriter(2000, 200, false, nil)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("writer: %w", err)
	}

	verboseWriter := stderrWriter
	if !cfg.Verbose {
		verboseWriter = nil
	}

	longMemoryWriter, err = logs.NewMemoryWriter(90000, 200, true, verboseWriter)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("writer: %w", err)
	}

	userLogger = logrus.New()
	userLogger.SetOutput(io.MultiWriter(stderrWriter, shortMemoryWriter))
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("log level: %w", err)
	}
	userLogger.SetLevel(level)
	if cfg.Format == "json" {
		userLogger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		userLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return stderrWriter, userLogger, shortMemoryWriter, longMemoryWriter, nil
}
