// Package logger provides the configured zerolog logger shared by the
// service and CLI binaries.
package logger

import (
	"io"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type options struct {
	out   io.Writer
	level zerolog.Level
}

// Option customizes New.
type Option func(*options)

// WithLevel sets the minimum level by name (debug, info, warn, error).
// Unknown names keep the default.
func WithLevel(name string) Option {
	return func(o *options) {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name))); err == nil && name != "" {
			o.level = lvl
		}
	}
}

// WithOutput redirects log output. The CLI logs to stderr so stdout stays
// machine-readable.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

// New returns a JSON logger tagged with serviceName. Error events logged with
// .Stack() carry a stack trace even for plain errors.
func New(serviceName string, opts ...Option) zerolog.Logger {
	o := options{out: os.Stdout, level: zerolog.InfoLevel}
	for _, fn := range opts {
		fn(&o)
	}

	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	return zerolog.New(o.out).Level(o.level).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
