// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bboard

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/absmach/bboard/pkg/board"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BBOARD_"

// Disabled turns off an optional listener.
const Disabled = "off"

// noDefaultTag is a tag no field carries, so env parsing skips defaults.
const noDefaultTag = "envNoDefault"

var (
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUsage is returned for malformed positional arguments.
	ErrUsage = errors.New("usage: <port> <board_w> <board_h> <note_w> <note_h> <color1> ... <colorN>")

	// ErrUnsupportedFormat is returned for config files that are neither TOML nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)

// Config is the server configuration.
type Config struct {
	Address string `env:"ADDRESS" envDefault:":4554"`

	BoardWidth  int      `env:"BOARD_WIDTH"  envDefault:"200"`
	BoardHeight int      `env:"BOARD_HEIGHT" envDefault:"100"`
	NoteWidth   int      `env:"NOTE_WIDTH"   envDefault:"20"`
	NoteHeight  int      `env:"NOTE_HEIGHT"  envDefault:"10"`
	Colors      []string `env:"COLORS" envDefault:"red,white,green,yellow" envSeparator:","`

	MaxConnections  int           `env:"MAX_CONNECTIONS"  envDefault:"1024"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"5m"`
	MaxLineLength   int           `env:"MAX_LINE_LENGTH"  envDefault:"4096"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Connection rate limits per client host and for the whole server, as
	// token buckets. A zero capacity disables the limiter.
	RateLimitCapacity  int64 `env:"RATE_LIMIT_CAPACITY"  envDefault:"20"`
	RateLimitRefill    int64 `env:"RATE_LIMIT_REFILL"    envDefault:"10"`
	GlobalRateCapacity int64 `env:"GLOBAL_RATE_CAPACITY" envDefault:"500"`
	GlobalRateRefill   int64 `env:"GLOBAL_RATE_REFILL"   envDefault:"200"`

	// HTTPAddress serves metrics and health probes; WSAddress serves the
	// WebSocket endpoint. Either is disabled when empty or "off".
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":9090"`
	WSAddress   string `env:"WS_ADDRESS"   envDefault:":4555"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Source lists where Load reads configuration from, lowest precedence first
// after the built-in defaults.
type Source struct {
	// File is an optional .toml, .yaml or .yml file.
	File string

	// DotEnv is an optional .env file. Variables already present in the
	// environment win over it. A missing file is ignored.
	DotEnv string

	// Env replaces the process environment when non-nil.
	Env map[string]string

	// Args are the positional server arguments.
	Args []string
}

// Load builds a validated Config: defaults, then File, then the environment,
// then Args.
func Load(src Source) (Config, error) {
	var cfg Config

	// Defaults only.
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}}); err != nil {
		return Config{}, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if src.File != "" {
		if err := cfg.LoadFile(src.File); err != nil {
			return Config{}, err
		}
	}

	environ, err := environment(src)
	if err != nil {
		return Config{}, err
	}
	opts := env.Options{Prefix: EnvPrefix, Environment: environ, DefaultValueTagName: noDefaultTag}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := cfg.ApplyArgs(src.Args); err != nil {
		return Config{}, err
	}

	for _, addr := range []*string{&cfg.HTTPAddress, &cfg.WSAddress} {
		if *addr == Disabled {
			*addr = ""
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func environment(src Source) (map[string]string, error) {
	environ := src.Env
	if environ == nil {
		environ = make(map[string]string)
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				environ[k] = v
			}
		}
	}
	if src.DotEnv == "" {
		return environ, nil
	}

	dotenv, err := godotenv.Read(src.DotEnv)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return environ, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", src.DotEnv, err)
	}

	merged := make(map[string]string, len(environ)+len(dotenv))
	for k, v := range dotenv {
		merged[k] = v
	}
	for k, v := range environ {
		merged[k] = v
	}
	return merged, nil
}

// LoadFile overlays the keys present in a TOML or YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return fc.apply(c)
}

// fileConfig mirrors Config with optional fields and textual durations, so
// only keys present in the file are applied.
type fileConfig struct {
	Address            *string  `toml:"address" yaml:"address"`
	BoardWidth         *int     `toml:"board_width" yaml:"board_width"`
	BoardHeight        *int     `toml:"board_height" yaml:"board_height"`
	NoteWidth          *int     `toml:"note_width" yaml:"note_width"`
	NoteHeight         *int     `toml:"note_height" yaml:"note_height"`
	Colors             []string `toml:"colors" yaml:"colors"`
	MaxConnections     *int     `toml:"max_connections" yaml:"max_connections"`
	ReadTimeout        *string  `toml:"read_timeout" yaml:"read_timeout"`
	MaxLineLength      *int     `toml:"max_line_length" yaml:"max_line_length"`
	ShutdownTimeout    *string  `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimitCapacity  *int64   `toml:"rate_limit_capacity" yaml:"rate_limit_capacity"`
	RateLimitRefill    *int64   `toml:"rate_limit_refill" yaml:"rate_limit_refill"`
	GlobalRateCapacity *int64   `toml:"global_rate_capacity" yaml:"global_rate_capacity"`
	GlobalRateRefill   *int64   `toml:"global_rate_refill" yaml:"global_rate_refill"`
	HTTPAddress        *string  `toml:"http_address" yaml:"http_address"`
	WSAddress          *string  `toml:"ws_address" yaml:"ws_address"`
	LogLevel           *string  `toml:"log_level" yaml:"log_level"`
	LogFormat          *string  `toml:"log_format" yaml:"log_format"`
}

func (fc fileConfig) apply(c *Config) error {
	set(&c.Address, fc.Address)
	set(&c.BoardWidth, fc.BoardWidth)
	set(&c.BoardHeight, fc.BoardHeight)
	set(&c.NoteWidth, fc.NoteWidth)
	set(&c.NoteHeight, fc.NoteHeight)
	if fc.Colors != nil {
		c.Colors = fc.Colors
	}
	set(&c.MaxConnections, fc.MaxConnections)
	set(&c.MaxLineLength, fc.MaxLineLength)
	set(&c.RateLimitCapacity, fc.RateLimitCapacity)
	set(&c.RateLimitRefill, fc.RateLimitRefill)
	set(&c.GlobalRateCapacity, fc.GlobalRateCapacity)
	set(&c.GlobalRateRefill, fc.GlobalRateRefill)
	set(&c.HTTPAddress, fc.HTTPAddress)
	set(&c.WSAddress, fc.WSAddress)
	set(&c.LogLevel, fc.LogLevel)
	set(&c.LogFormat, fc.LogFormat)

	if err := setDuration(&c.ReadTimeout, fc.ReadTimeout, "read_timeout"); err != nil {
		return err
	}
	return setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout, "shutdown_timeout")
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = d
	return nil
}

// ApplyArgs overrides the listen port, board geometry and colors from
// positional arguments. No arguments leaves the config unchanged.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) < 6 {
		return ErrUsage
	}

	nums := make([]int, 5)
	for i := range nums {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrUsage, args[i])
		}
		nums[i] = n
	}

	host, _, err := net.SplitHostPort(c.Address)
	if err != nil {
		host = ""
	}
	c.Address = net.JoinHostPort(host, strconv.Itoa(nums[0]))
	c.BoardWidth = nums[1]
	c.BoardHeight = nums[2]
	c.NoteWidth = nums[3]
	c.NoteHeight = nums[4]
	c.Colors = append([]string(nil), args[5:]...)

	return nil
}

// Validate checks the configuration before any connection is accepted.
func (c Config) Validate() error {
	if err := validateAddress(c.Address, false); err != nil {
		return fmt.Errorf("%w: address: %v", ErrInvalidConfig, err)
	}
	if err := validateAddress(c.HTTPAddress, true); err != nil {
		return fmt.Errorf("%w: http_address: %v", ErrInvalidConfig, err)
	}
	if err := validateAddress(c.WSAddress, true); err != nil {
		return fmt.Errorf("%w: ws_address: %v", ErrInvalidConfig, err)
	}
	if err := c.Board().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch {
	case c.MaxConnections < 0:
		return fmt.Errorf("%w: max_connections must not be negative", ErrInvalidConfig)
	case c.MaxLineLength < 0:
		return fmt.Errorf("%w: max_line_length must not be negative", ErrInvalidConfig)
	case c.ReadTimeout < 0, c.ShutdownTimeout < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	case c.RateLimitCapacity < 0, c.RateLimitRefill < 0, c.GlobalRateCapacity < 0, c.GlobalRateRefill < 0:
		return fmt.Errorf("%w: rate limits must not be negative", ErrInvalidConfig)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}

	return nil
}

// Board returns the board part of the configuration.
func (c Config) Board() board.Config {
	return board.Config{
		BoardWidth:  c.BoardWidth,
		BoardHeight: c.BoardHeight,
		NoteWidth:   c.NoteWidth,
		NoteHeight:  c.NoteHeight,
		Colors:      c.Colors,
	}
}

func validateAddress(addr string, optional bool) error {
	if addr == "" {
		if optional {
			return nil
		}
		return errors.New("must not be empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
