// Package config loads the optional jumpbeam TOML configuration file and
// resolves it against built-in defaults, matching the teacher's pattern of
// an always-optional config file with pointer fields so an absent key
// never clobbers a flag-supplied value.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jumpbeam/jumpbeam/internal/buffer"
)

// Config is the optional jumpbeam configuration file, covering the
// options named in spec.md §6.
type Config struct {
	Transfer TransferConfig `toml:"transfer"`
	Jump     JumpConfig     `toml:"jump"`
}

// TransferConfig mirrors spec.md §6's configuration table. Fields are
// pointers so an absent TOML key leaves flag- or default-supplied values
// untouched.
type TransferConfig struct {
	InitialBufferSize  *int64   `toml:"initial_buffer_size"`
	MinBufferSize      *int64   `toml:"min_buffer_size"`
	MaxBufferSize      *int64   `toml:"max_buffer_size"`
	HistorySize        *int     `toml:"history_size"`
	AdjustCooldownSec  *float64 `toml:"adjust_cooldown_sec"`
	AdaptationStrategy *string  `toml:"adaptation_strategy"`
	UseRichProgress    *bool    `toml:"use_rich_progress"`
	ControlDeadlineSec *float64 `toml:"control_frame_deadline_sec"`
	StallDeadlineSec   *float64 `toml:"stall_deadline_sec"`
	ConnectRetries     *int     `toml:"connect_retries"`
	BandwidthLimit     *string  `toml:"bwlimit"`
}

// JumpConfig holds default jump-host connection settings.
type JumpConfig struct {
	Host    *string `toml:"host"`
	User    *string `toml:"user"`
	Port    *int    `toml:"port"`
	KeyFile *string `toml:"key_file"`
}

// Path returns the resolved path to the config file under
// $XDG_CONFIG_HOME/jumpbeam/config.toml, falling back to
// ~/.config/jumpbeam/config.toml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "jumpbeam", "config.toml")
}

// Load reads the config file from the XDG path. It returns a zero Config
// with no error if the file does not exist — the config file is always
// optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// BufferConfig resolves the transfer config's buffer-related fields into a
// buffer.Config, falling back to buffer.DefaultConfig for absent fields.
// An absent initial_buffer_size leaves Initial at zero, so the transfer
// handshake seeds the initial size from the measured RTT and strategy.
func (c TransferConfig) BufferConfig() buffer.Config {
	cfg := buffer.DefaultConfig()
	cfg.Initial = 0
	if c.MinBufferSize != nil {
		cfg.Min = *c.MinBufferSize
	}
	if c.MaxBufferSize != nil {
		cfg.Max = *c.MaxBufferSize
	}
	if c.InitialBufferSize != nil {
		cfg.Initial = *c.InitialBufferSize
	}
	if c.HistorySize != nil {
		cfg.HistorySize = *c.HistorySize
	}
	if c.AdjustCooldownSec != nil {
		cfg.Cooldown = time.Duration(*c.AdjustCooldownSec * float64(time.Second))
	}
	return cfg
}

// Strategy resolves the adaptation_strategy field, defaulting to balanced.
func (c TransferConfig) Strategy() (buffer.Strategy, error) {
	if c.AdaptationStrategy == nil {
		return buffer.Balanced, nil
	}
	return buffer.ParseStrategy(*c.AdaptationStrategy)
}

// ControlDeadline resolves control_frame_deadline_sec (spec.md §6:
// deadline for HELLO/READY/PING/PONG/ACK control frames), defaulting to
// 30s.
func (c TransferConfig) ControlDeadline() time.Duration {
	if c.ControlDeadlineSec == nil {
		return 30 * time.Second
	}
	return time.Duration(*c.ControlDeadlineSec * float64(time.Second))
}

// StallDeadline resolves stall_deadline_sec (spec.md §6: deadline for a
// single FILE_DATA read/write before the connection is considered
// stalled), defaulting to 60s.
func (c TransferConfig) StallDeadline() time.Duration {
	if c.StallDeadlineSec == nil {
		return 60 * time.Second
	}
	return time.Duration(*c.StallDeadlineSec * float64(time.Second))
}

// Retries resolves connect_retries, defaulting to 3.
func (c TransferConfig) Retries() int {
	if c.ConnectRetries == nil {
		return 3
	}
	return *c.ConnectRetries
}

// RichProgress resolves use_rich_progress, defaulting to true.
func (c TransferConfig) RichProgress() bool {
	if c.UseRichProgress == nil {
		return true
	}
	return *c.UseRichProgress
}
