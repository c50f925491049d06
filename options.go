package xbag

import (
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Option configures Writer and Reader construction.
type Option func(*sessionOptions)

type sessionOptions struct {
	logger    *xlog.Logger
	clock     xclock.Clock
	codecName string
	codecInst Codec
}

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock injects a custom xclock clock. The Writer stamps envelopes that
// carry no timestamp with it.
func WithClock(c xclock.Clock) Option {
	return func(o *sessionOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithCodec selects a codec by name (default: "json").
func WithCodec(name string) Option {
	return func(o *sessionOptions) {
		if name != "" {
			o.codecName = name
		}
	}
}

// WithCodecInstance accepts a ready Codec instance.
func WithCodecInstance(c Codec) Option {
	return func(o *sessionOptions) {
		if c != nil {
			o.codecInst = c
		}
	}
}

func (o *sessionOptions) resolve() (*xlog.Logger, xclock.Clock, Codec, error) {
	lg := o.logger
	if lg == nil {
		lg = xlog.Default()
	}
	clk := o.clock
	if clk == nil {
		clk = xclock.Default()
	}
	cd := o.codecInst
	if cd == nil {
		name := o.codecName
		if name == "" {
			name = "json"
		}
		var err error
		cd, err = NewCodec(name)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return lg, clk, cd, nil
}
