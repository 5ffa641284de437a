// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the streamgate HCL configuration.
package config

import (
	"time"

	"grimm.is/streamgate/internal/errors"
	"grimm.is/streamgate/internal/logging"
)

// Protocols a stream block may configure.
const (
	StreamICMP = "icmp"
	StreamTCP  = "tcp"
	StreamUDP  = "udp"
)

// Stream configures one protocol's session table.
type Stream struct {
	// Proto is the block label: "icmp", "tcp" or "udp".
	Proto string `hcl:"proto,label" json:"proto"`
	// SessionTimeout is the idle timeout in seconds.
	// @default: 30
	SessionTimeout int `hcl:"session_timeout,optional" json:"session_timeout,omitempty"`
	// MaxFlows caps the table size.
	// @default: 65536
	MaxFlows int `hcl:"max_flows,optional" json:"max_flows,omitempty"`
}

// API configures the reporting HTTP endpoint.
type API struct {
	// Listen address, host:port. Empty disables the endpoint.
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// Config is the top-level streamgate configuration.
type Config struct {
	// LogLevel: debug, info, warn or error.
	// @default: "info"
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`

	// Workers is the number of packet-processing workers.
	// @default: 1
	Workers int `hcl:"workers,optional" json:"workers,omitempty"`

	Streams []Stream `hcl:"stream,block" json:"stream,omitempty"`
	API     *API     `hcl:"api,block" json:"api,omitempty"`

	// Syslog forwards log output to a remote collector.
	Syslog *logging.SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// Default returns the built-in configuration: one worker, 30 second ICMP
// session timeout, API disabled.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Workers:  1,
		Streams: []Stream{
			{Proto: StreamICMP, SessionTimeout: 30, MaxFlows: 65536},
			{Proto: StreamTCP, SessionTimeout: 3600, MaxFlows: 262144},
			{Proto: StreamUDP, SessionTimeout: 180, MaxFlows: 131072},
		},
	}
}

// StreamFor returns the stream block for proto, falling back to the
// built-in defaults when the config does not mention it.
func (c *Config) StreamFor(proto string) Stream {
	for _, s := range c.Streams {
		if s.Proto == proto {
			if s.SessionTimeout == 0 || s.MaxFlows == 0 {
				def := defaultStream(proto)
				if s.SessionTimeout == 0 {
					s.SessionTimeout = def.SessionTimeout
				}
				if s.MaxFlows == 0 {
					s.MaxFlows = def.MaxFlows
				}
			}
			return s
		}
	}
	return defaultStream(proto)
}

func defaultStream(proto string) Stream {
	for _, s := range Default().Streams {
		if s.Proto == proto {
			return s
		}
	}
	return Stream{Proto: proto, SessionTimeout: 30, MaxFlows: 65536}
}

// ICMPSessionTimeout is the configuration-summary accessor the reporting
// layer displays.
func (c *Config) ICMPSessionTimeout() time.Duration {
	return time.Duration(c.StreamFor(StreamICMP).SessionTimeout) * time.Second
}

// Validate checks the configuration. A nil config is a validation error;
// all validation failures surface at startup, never at packet time.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New(errors.KindValidation, "configuration is nil")
	}
	if c.Workers < 0 {
		return errors.Errorf(errors.KindValidation, "workers must be positive, got %d", c.Workers)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Errorf(errors.KindValidation, "unknown log_level %q", c.LogLevel)
	}
	seen := map[string]bool{}
	for _, s := range c.Streams {
		switch s.Proto {
		case StreamICMP, StreamTCP, StreamUDP:
		default:
			return errors.Errorf(errors.KindValidation, "unknown stream protocol %q", s.Proto)
		}
		if seen[s.Proto] {
			return errors.Errorf(errors.KindValidation, "duplicate stream block for %q", s.Proto)
		}
		seen[s.Proto] = true
		if s.SessionTimeout < 0 {
			return errors.Errorf(errors.KindValidation, "stream %q: session_timeout must not be negative", s.Proto)
		}
		if s.MaxFlows < 0 {
			return errors.Errorf(errors.KindValidation, "stream %q: max_flows must not be negative", s.Proto)
		}
	}
	if c.Syslog != nil && c.Syslog.Enabled && c.Syslog.Host == "" {
		return errors.New(errors.KindValidation, "syslog enabled without a host")
	}
	return nil
}
