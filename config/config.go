// Package config loads the YAML startup description of a HAL: which
// components to load, the threads and rings to create, the instances to
// build and how their pins are wired and scheduled.
package config

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/hal-runtime/components"
	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/hal"
)

// Config is the top-level document.
type Config struct {
	// Segment names the shared segment; empty keeps the arena private.
	Segment string `yaml:"segment,omitempty"`

	// Size is the arena size in bytes.
	Size int `yaml:"size,omitempty"`

	// LogLevel is a zap level name such as "debug" or "warn".
	LogLevel string `yaml:"log_level,omitempty"`

	// Components lists bundled components to load even when no instance
	// below names them.
	Components []string `yaml:"components,omitempty"`

	Threads   []Thread    `yaml:"threads,omitempty"`
	Rings     []Ring      `yaml:"rings,omitempty"`
	Instances []Instance  `yaml:"instances,omitempty"`
	Signals   []Signal    `yaml:"signals,omitempty"`
	Nets      []Net       `yaml:"nets,omitempty"`
	Functs    []Placement `yaml:"functs,omitempty"`
	Set       []Set       `yaml:"set,omitempty"`

	// Lock is the lock level applied once everything above is built,
	// such as "tune" or "load|config".
	Lock string `yaml:"lock,omitempty"`
}

// Thread declares a periodic thread.
type Thread struct {
	Name   string        `yaml:"name"`
	Period time.Duration `yaml:"period"`
	FP     bool          `yaml:"fp,omitempty"`
}

// Ring declares a named record ring.
type Ring struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

// Instance creates one instance of a component.
type Instance struct {
	Component string   `yaml:"component"`
	Name      string   `yaml:"name"`
	Args      []string `yaml:"args,omitempty"`
}

// Signal declares a signal ahead of the nets that use it.
type Signal struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Barriers holds "read" and/or "write".
	Barriers []string `yaml:"barriers,omitempty"`
}

// Net links pins to a signal. Type creates the signal when it is not
// declared under signals.
type Net struct {
	Signal string   `yaml:"signal"`
	Type   string   `yaml:"type,omitempty"`
	Pins   []string `yaml:"pins"`
}

// Placement adds a funct to a thread. Position follows AddFunct; zero
// appends.
type Placement struct {
	Funct    string `yaml:"funct"`
	Thread   string `yaml:"thread"`
	Position int    `yaml:"position,omitempty"`
}

// Set writes an initial value to exactly one of Pin, Param or Signal.
type Set struct {
	Pin    string `yaml:"pin,omitempty"`
	Param  string `yaml:"param,omitempty"`
	Signal string `yaml:"signal,omitempty"`
	Value  string `yaml:"value"`
}

func (s Set) targets() int {
	n := 0
	for _, name := range []string{s.Pin, s.Param, s.Signal} {
		if name != "" {
			n++
		}
	}
	return n
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "read "+path)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes and validates a configuration. Unknown fields are
// rejected.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the document without touching a HAL. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs error
	bad := func(path, format string, args ...any) {
		errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path).
			Detail(format, args...).
			Build())
	}

	if c.Size < 0 {
		bad("size", "negative size %d", c.Size)
	}
	if _, err := c.Level(); err != nil {
		errs = multierr.Append(errs, err)
	}

	threads := map[string]bool{}
	for i, t := range c.Threads {
		path := fmt.Sprintf("threads[%d]", i)
		switch {
		case t.Name == "":
			bad(path, "thread needs a name")
		case threads[t.Name]:
			bad(path, "thread %q declared twice", t.Name)
		}
		threads[t.Name] = true
		if t.Period <= 0 {
			bad(path, "thread %q needs a positive period", t.Name)
		}
	}

	for i, r := range c.Rings {
		if r.Name == "" || r.Size <= 0 {
			bad(fmt.Sprintf("rings[%d]", i), "ring needs a name and a positive size")
		}
	}

	insts := map[string]bool{}
	for i, in := range c.Instances {
		path := fmt.Sprintf("instances[%d]", i)
		if in.Component == "" || in.Name == "" {
			bad(path, "instance needs a component and a name")
		}
		if insts[in.Name] {
			bad(path, "instance %q declared twice", in.Name)
		}
		insts[in.Name] = true
	}

	signals := map[string]bool{}
	for i, s := range c.Signals {
		path := fmt.Sprintf("signals[%d]", i)
		if s.Name == "" {
			bad(path, "signal needs a name")
		}
		if _, err := hal.ParseType(s.Type); err != nil {
			bad(path, "signal %q has unknown type %q", s.Name, s.Type)
		}
		if _, _, err := barriers(s.Barriers); err != nil {
			bad(path, "%v", err)
		}
		signals[s.Name] = true
	}

	for i, n := range c.Nets {
		path := fmt.Sprintf("nets[%d]", i)
		if n.Signal == "" || len(n.Pins) == 0 {
			bad(path, "net needs a signal and at least one pin")
		}
		if n.Type != "" {
			if _, err := hal.ParseType(n.Type); err != nil {
				bad(path, "net %q has unknown type %q", n.Signal, n.Type)
			}
		} else if !signals[n.Signal] {
			bad(path, "net %q names an undeclared signal without a type", n.Signal)
		}
	}

	for i, p := range c.Functs {
		path := fmt.Sprintf("functs[%d]", i)
		if p.Funct == "" {
			bad(path, "placement needs a funct")
		}
		if !threads[p.Thread] {
			bad(path, "funct %q placed in undeclared thread %q", p.Funct, p.Thread)
		}
	}

	for i, s := range c.Set {
		if s.targets() != 1 {
			bad(fmt.Sprintf("set[%d]", i), "set needs exactly one of pin, param or signal")
		}
	}
	if _, err := hal.ParseLockLevel(c.Lock); err != nil {
		bad("lock", "%v", err)
	}
	return errs
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("log_level").
			Value(c.LogLevel).
			Cause(err).
			Build()
	}
	return lvl, nil
}

// HALConfig returns the arena settings for hal.New or hal.Attach.
func (c *Config) HALConfig(log *zap.Logger) hal.Config {
	return hal.Config{Segment: c.Segment, Size: c.Size, Logger: log}
}

func barriers(names []string) (read, write bool, err error) {
	for _, b := range names {
		switch b {
		case "read":
			read = true
		case "write":
			write = true
		default:
			return false, false, fmt.Errorf("unknown barrier %q", b)
		}
	}
	return read, write, nil
}

// Apply builds the configured objects in h. Components named by instances
// are loaded from the bundled set unless h already has them. Apply stops
// at the first failure; objects created before it stay in place.
func (c *Config) Apply(ctx context.Context, h *hal.HAL) error {
	log := hal.Logger()

	names := append([]string(nil), c.Components...)
	bundled := map[string]bool{}
	for _, n := range components.Names() {
		bundled[n] = true
	}
	for _, in := range c.Instances {
		if bundled[in.Component] {
			names = append(names, in.Component)
		}
	}
	if err := components.Load(h, names...); err != nil {
		return err
	}

	for _, r := range c.Rings {
		if err := h.NewRing(r.Name, r.Size); err != nil {
			return wrap(err, "ring %q", r.Name)
		}
	}
	for _, t := range c.Threads {
		if _, err := h.CreateThread(t.Name, t.Period, t.FP); err != nil {
			return wrap(err, "thread %q", t.Name)
		}
	}
	for _, in := range c.Instances {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := h.Instantiate(in.Component, in.Name, in.Args); err != nil {
			return wrap(err, "instance %q", in.Name)
		}
	}
	for _, s := range c.Signals {
		t, _ := hal.ParseType(s.Type)
		if err := h.NewSignal(s.Name, t); err != nil {
			return wrap(err, "signal %q", s.Name)
		}
		if len(s.Barriers) > 0 {
			read, write, _ := barriers(s.Barriers)
			if err := h.SetSignalBarriers(s.Name, read, write); err != nil {
				return wrap(err, "signal %q", s.Name)
			}
		}
	}
	for _, n := range c.Nets {
		if n.Type != "" {
			if _, err := h.GetSignal(n.Signal); err != nil {
				t, _ := hal.ParseType(n.Type)
				if err := h.NewSignal(n.Signal, t); err != nil {
					return wrap(err, "net %q", n.Signal)
				}
			}
		}
		for _, p := range n.Pins {
			if err := h.Link(p, n.Signal); err != nil {
				return wrap(err, "net %q pin %q", n.Signal, p)
			}
		}
	}
	for _, p := range c.Functs {
		pos := p.Position
		if pos == 0 {
			pos = -1
		}
		if err := h.AddFunct(p.Funct, p.Thread, pos); err != nil {
			return wrap(err, "funct %q", p.Funct)
		}
	}
	for _, s := range c.Set {
		if err := apply(h, s); err != nil {
			return err
		}
	}
	if c.Lock != "" {
		l, _ := hal.ParseLockLevel(c.Lock)
		if err := h.SetLock(l); err != nil {
			return wrap(err, "lock %q", c.Lock)
		}
	}

	log.Debug("configuration applied",
		zap.Int("threads", len(c.Threads)),
		zap.Int("instances", len(c.Instances)),
		zap.Int("nets", len(c.Nets)))
	return nil
}

func apply(h *hal.HAL, s Set) error {
	if s.Param != "" {
		cur, err := h.GetParam(s.Param)
		if err != nil {
			return wrap(err, "set param %q", s.Param)
		}
		v, err := hal.ParseValue(cur.Type(), s.Value)
		if err != nil {
			return wrap(err, "set param %q", s.Param)
		}
		return wrap(h.SetParam(s.Param, v), "set param %q", s.Param)
	}
	if s.Pin != "" {
		cur, err := h.GetPin(s.Pin)
		if err != nil {
			return wrap(err, "set pin %q", s.Pin)
		}
		v, err := hal.ParseValue(cur.Type(), s.Value)
		if err != nil {
			return wrap(err, "set pin %q", s.Pin)
		}
		return wrap(h.SetPin(s.Pin, v), "set pin %q", s.Pin)
	}
	cur, err := h.GetSignal(s.Signal)
	if err != nil {
		return wrap(err, "set signal %q", s.Signal)
	}
	v, err := hal.ParseValue(cur.Type(), s.Value)
	if err != nil {
		return wrap(err, "set signal %q", s.Signal)
	}
	return wrap(h.SetSignal(s.Signal, v), "set signal %q", s.Signal)
}

// wrap tags err with the config entry that caused it, keeping its kind so
// callers can still match with errors.OfKind.
func wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	kind := errors.KindInvalidInput
	var e *errors.Error
	if stderrors.As(err, &e) {
		kind = e.Kind
	}
	return errors.Wrap(errors.PhaseConfig, kind, err, fmt.Sprintf(format, args...))
}
