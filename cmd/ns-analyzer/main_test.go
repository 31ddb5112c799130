package main

import (
	"Go2AQMSpectra/internal/config"
	"testing"
)

func TestRunReturnsSetupErrors(t *testing.T) {
	tests := map[string]func(cfg *config.Config) string{
		"unknown profile mode": func(cfg *config.Config) string {
			cfg.Capture.Device = "lo"
			return "heap"
		},
		"bad wire format": func(cfg *config.Config) string {
			cfg.Capture.Device = "lo"
			cfg.Analyzer.WireFormat = "morse"
			return ""
		},
		"missing device": func(cfg *config.Config) string {
			cfg.Capture.Device = "no-such-device0"
			return ""
		},
	}
	for name, setup := range tests {
		cfg := config.Default()
		cfg.Analyzer.OutputDir = t.TempDir()
		mode := setup(cfg)
		// a fatal exit here would take the test binary down with it
		if err := run(cfg, mode); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
