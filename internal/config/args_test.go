package config

import (
	"testing"
	"time"
)

func TestApplyArgs(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyArgs([]string{"eth1", "ip and src net 10.0.0.0/24", "/tmp/out", "250", "t", "40"}); err != nil {
		t.Fatalf("ApplyArgs() error: %v", err)
	}
	if cfg.Capture.Device != "eth1" || cfg.Capture.Filter != "ip and src net 10.0.0.0/24" || cfg.Analyzer.OutputDir != "/tmp/out" {
		t.Errorf("unexpected config %+v %+v", cfg.Capture, cfg.Analyzer)
	}
	if d, _ := cfg.Analyzer.Interval(); d != 250*time.Millisecond {
		t.Errorf("expected a 250ms interval, got %v", d)
	}
	if !cfg.Analyzer.IPClass || cfg.Analyzer.NumSamples != 40 {
		t.Errorf("unexpected analyzer config %+v", cfg.Analyzer)
	}

	cfg = Default()
	if err := cfg.ApplyArgs([]string{"eth0", "", "out", "1000"}); err != nil {
		t.Fatalf("ApplyArgs() error: %v", err)
	}
	if cfg.Analyzer.IPClass || cfg.Analyzer.NumSamples != 0 {
		t.Errorf("optional arguments should keep defaults: %+v", cfg.Analyzer)
	}
}

func TestApplyArgsErrors(t *testing.T) {
	bad := [][]string{
		{"eth0", "ip", "out"},
		{"eth0", "ip", "out", "fast"},
		{"eth0", "ip", "out", "0"},
		{"eth0", "ip", "out", "100", "yes"},
		{"eth0", "ip", "out", "100", "f", "-1"},
		{"eth0", "ip", "out", "100", "f", "1", "extra"},
	}
	for _, args := range bad {
		if err := Default().ApplyArgs(args); err == nil {
			t.Errorf("ApplyArgs(%q): expected an error", args)
		}
	}
}
