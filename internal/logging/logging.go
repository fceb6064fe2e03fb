// Package logging builds the hclog loggers used across the module.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options configures New.
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// New returns a root logger. An empty level means info.
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		JSONFormat: opts.JSON,
		Output:     out,
	})
}

// OrNull returns l, or a logger that discards everything when l is nil.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}

// Badger adapts an hclog.Logger to badger's logger interface.
type Badger struct {
	L hclog.Logger
}

func (b Badger) Errorf(format string, args ...interface{}) {
	b.L.Error(fmt.Sprintf(format, args...))
}

func (b Badger) Warningf(format string, args ...interface{}) {
	b.L.Warn(fmt.Sprintf(format, args...))
}

func (b Badger) Infof(format string, args ...interface{}) {
	b.L.Info(fmt.Sprintf(format, args...))
}

func (b Badger) Debugf(format string, args ...interface{}) {
	b.L.Debug(fmt.Sprintf(format, args...))
}
