// Package logging points the standard logger at stderr and, when a path
// is given, a size-rotated file as well.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	MaxSizeMB  = 10
	MaxBackups = 3
	MaxAgeDays = 28
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewRotator returns a lumberjack logger for path with the default limits.
func NewRotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
		MaxAge:     MaxAgeDays,
	}
}

// Setup redirects log output. The returned closer releases the file.
func Setup(path string) io.Closer {
	if path == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}
	lj := NewRotator(path)
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}
