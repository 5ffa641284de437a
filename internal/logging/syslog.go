// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// SyslogConfig controls forwarding of log output to a remote syslog server.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
	Host     string `hcl:"host,optional" json:"host,omitempty"`
	Port     int    `hcl:"port,optional" json:"port,omitempty"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"` // "udp" or "tcp"
	Tag      string `hcl:"tag,optional" json:"tag,omitempty"`
	Facility int    `hcl:"facility,optional" json:"facility,omitempty"`
}

// DefaultSyslogConfig returns syslog defaults: disabled, udp/514, user facility.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "streamgate",
		Facility: 1,
	}
}

// NewOutput builds the writer a logger should emit to: base alone when
// syslog is disabled, or base tee'd into a syslog forwarder. The returned
// closer is non-nil when a connection was opened; the caller owns it.
func NewOutput(base io.Writer, cfg *SyslogConfig) (io.Writer, io.Closer, error) {
	if cfg == nil || !cfg.Enabled {
		return base, nil, nil
	}
	w, err := NewSyslogWriter(*cfg)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(base, w), w, nil
}

// SyslogWriter is an io.Writer that frames each write as an RFC 3164 message.
type SyslogWriter struct {
	conn     net.Conn
	tag      string
	facility int
	hostname string
}

// NewSyslogWriter connects to the configured syslog server.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "streamgate"
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := net.DialTimeout(cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog server %s: %w", addr, err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return &SyslogWriter{
		conn:     conn,
		tag:      cfg.Tag,
		facility: cfg.Facility,
		hostname: hostname,
	}, nil
}

// Write frames p with the syslog priority/timestamp header and sends it.
func (w *SyslogWriter) Write(p []byte) (int, error) {
	// severity 6 (informational); priority = facility*8 + severity
	pri := w.facility*8 + 6
	ts := time.Now().Format(time.Stamp)
	msg := fmt.Sprintf("<%d>%s %s %s: %s", pri, ts, w.hostname, w.tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying connection.
func (w *SyslogWriter) Close() error {
	return w.conn.Close()
}
