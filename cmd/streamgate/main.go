// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// streamgate replays captured traffic through the stream flow-correlation
// core and reports session statistics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"grimm.is/streamgate/internal/api"
	"grimm.is/streamgate/internal/config"
	"grimm.is/streamgate/internal/engine"
	"grimm.is/streamgate/internal/logging"
	"grimm.is/streamgate/internal/stats"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to HCL config file")
		pcapPath   = flag.String("r", "", "pcap file to replay")
		listenAddr = flag.String("listen", "", "reporting API listen address (overrides config)")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
		format     = flag.String("format", "text", "stats output format: text, json, yaml")
	)
	flag.Parse()

	if err := run(*configPath, *pcapPath, *listenAddr, *logLevel, *format); err != nil {
		fmt.Fprintln(os.Stderr, "streamgate:", err)
		os.Exit(1)
	}
}

func run(configPath, pcapPath, listenAddr, logLevel, format string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logOut, syslogConn, err := logging.NewOutput(os.Stderr, cfg.Syslog)
	if err != nil {
		return err
	}
	if syslogConn != nil {
		defer syslogConn.Close()
	}
	logger := logging.New(logging.Config{
		Output: logOut,
		Level:  logging.ParseLevel(cfg.LogLevel),
	})
	logging.SetDefault(logger)

	logger.Info("Stream ICMP config", "session_timeout", cfg.ICMPSessionTimeout().String())

	eng, err := engine.New(engine.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	addr := listenAddr
	if addr == "" && cfg.API != nil {
		addr = cfg.API.Listen
	}
	var server *api.Server
	if addr != "" {
		server = api.NewServer(cfg, eng.Stats(), logger)
		go func() {
			if err := server.Start(addr); err != nil {
				logger.Error("Reporting API failed", "error", err)
			}
		}()
	}

	if pcapPath == "" {
		return fmt.Errorf("no pcap file given (use -r)")
	}

	eng.Start()
	n, err := replay(pcapPath, eng, logger)
	eng.Stop()
	if err != nil {
		return err
	}
	logger.Info("Replay finished", "packets", n)

	totals := eng.Report()
	if err := printStats(os.Stdout, format, eng.Stats().Proto(), totals); err != nil {
		return err
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return nil
}

func printStats(w *os.File, format, proto string, totals stats.SessionStats) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]stats.SessionStats{proto: totals})
	case "yaml":
		return yaml.NewEncoder(w).Encode(map[string]stats.SessionStats{proto: totals})
	case "text":
		fmt.Fprintf(w, "stream_%s\n", proto)
		fmt.Fprintf(w, "  created:  %d\n", totals.Created)
		fmt.Fprintf(w, "  released: %d\n", totals.Released)
		fmt.Fprintf(w, "  timeouts: %d\n", totals.Timeouts)
		fmt.Fprintf(w, "  prunes:   %d\n", totals.Prunes)
		fmt.Fprintf(w, "  discards: %d\n", totals.Discards)
		return nil
	default:
		return fmt.Errorf("unknown stats format %q", format)
	}
}
