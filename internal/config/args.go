package config

import (
	"fmt"
	"strconv"
	"time"
)

// ApplyArgs overrides the config with the positional command line
//
//	<device> <filter> <output dir> <interval ms> [t|f] [num samples]
//
// where t selects classification by source address.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) < 4 || len(args) > 6 {
		return fmt.Errorf("expected 4 to 6 arguments, got %d", len(args))
	}
	c.Capture.Device = args[0]
	c.Capture.Filter = args[1]
	c.Analyzer.OutputDir = args[2]

	ms, err := strconv.Atoi(args[3])
	if err != nil || ms <= 0 {
		return fmt.Errorf("invalid sample interval %q: must be a positive number of milliseconds", args[3])
	}
	c.Analyzer.SampleInterval = (time.Duration(ms) * time.Millisecond).String()

	if len(args) > 4 {
		switch args[4] {
		case "t":
			c.Analyzer.IPClass = true
		case "f":
			c.Analyzer.IPClass = false
		default:
			return fmt.Errorf("invalid classification flag %q: must be t or f", args[4])
		}
	}
	if len(args) > 5 {
		n, err := strconv.Atoi(args[5])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid number of samples %q", args[5])
		}
		c.Analyzer.NumSamples = n
	}
	return c.Validate()
}
