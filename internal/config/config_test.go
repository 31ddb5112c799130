package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Capture.Device != "eth0" || cfg.Capture.SnapLen != 128 {
		t.Errorf("unexpected capture config: %+v", cfg.Capture)
	}
	if d, _ := cfg.Analyzer.Interval(); d != time.Second {
		t.Errorf("expected a 1s interval, got %v", d)
	}
	if len(cfg.Writers) != 3 || cfg.Writers[1].ClickHouse.Port != 9000 {
		t.Errorf("unexpected writers: %+v", cfg.Writers)
	}
	if cfg.Writers[2].NATS.Subject != "aqm.samples" {
		t.Errorf("unexpected nats subject %q", cfg.Writers[2].NATS.Subject)
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "analyzer:\n  sample_interval: 250ms\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if d, _ := cfg.Analyzer.Interval(); d != 250*time.Millisecond {
		t.Errorf("expected a 250ms interval, got %v", d)
	}
	if cfg.Analyzer.WireFormat != "float" || cfg.Capture.SnapLen != 128 {
		t.Errorf("defaults lost: %+v %+v", cfg.Analyzer, cfg.Capture)
	}
	if len(cfg.Writers) != 1 || cfg.Writers[0].Type != "text" {
		t.Errorf("expected the default text writer, got %+v", cfg.Writers)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := map[string]string{
		"bad interval":     "analyzer:\n  sample_interval: soon\n",
		"zero interval":    "analyzer:\n  sample_interval: 0s\n",
		"negative samples": "analyzer:\n  num_samples: -3\n",
		"bad timeout":      "capture:\n  read_timeout: forever\n",
		"empty timeout":    "capture:\n  read_timeout: \"\"\n",
		"zero timeout":     "capture:\n  read_timeout: 0s\n",
		"negative timeout": "capture:\n  read_timeout: -1s\n",
		"bad yaml":         "analyzer: [\n",
	}
	for name, content := range tests {
		if _, err := LoadConfig(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
