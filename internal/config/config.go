package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig describes where packets come from.
type CaptureConfig struct {
	Device      string `yaml:"device"`
	Filter      string `yaml:"filter"`
	PcapFile    string `yaml:"pcap_file"`
	SnapLen     int32  `yaml:"snaplen"`
	Promiscuous bool   `yaml:"promiscuous"`
	ReadTimeout string `yaml:"read_timeout"`
	DumpPath    string `yaml:"dump_path"`
}

// AnalyzerConfig holds the sampling parameters.
type AnalyzerConfig struct {
	SampleInterval string `yaml:"sample_interval"`
	NumSamples     int    `yaml:"num_samples"`
	IPClass        bool   `yaml:"ip_class"`
	WireFormat     string `yaml:"wire_format"`
	OutputDir      string `yaml:"output_dir"`
}

// ClickHouseConfig holds the connection settings for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig holds the settings for publishing samples over NATS.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// WriterDef defines one output writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
}

// APIConfig holds the status endpoints. Empty addresses disable them.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	GRPCAddr   string `yaml:"grpc_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Writers  []WriterDef    `yaml:"writers"`
	API      APIConfig      `yaml:"api"`
}

// Default returns the settings used when no config file is given.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			SnapLen:     128,
			Promiscuous: true,
			ReadTimeout: "100ms",
		},
		Analyzer: AnalyzerConfig{
			SampleInterval: "1s",
			WireFormat:     "float",
			OutputDir:      ".",
		},
		Writers: []WriterDef{{Type: "text", Enabled: true}},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the
// defaults and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that cannot be checked by the YAML decoder.
func (c *Config) Validate() error {
	if _, err := c.Analyzer.Interval(); err != nil {
		return err
	}
	if _, err := c.Capture.Timeout(); err != nil {
		return err
	}
	if c.Analyzer.NumSamples < 0 {
		return fmt.Errorf("num_samples must not be negative, got %d", c.Analyzer.NumSamples)
	}
	if c.Capture.SnapLen <= 0 {
		return fmt.Errorf("snaplen must be positive, got %d", c.Capture.SnapLen)
	}
	return nil
}

// Interval parses the sample interval.
func (a AnalyzerConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(a.SampleInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid sample_interval %q: %w", a.SampleInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sample_interval must be positive, got %v", d)
	}
	return d, nil
}

// Timeout parses the capture read timeout. It must be positive: a live read
// only notices Stop when it returns.
func (c CaptureConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid read_timeout %q: %w", c.ReadTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("read_timeout must be positive, got %v", d)
	}
	return d, nil
}
