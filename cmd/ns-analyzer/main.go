package main

import (
	"Go2AQMSpectra/internal/api"
	"Go2AQMSpectra/internal/capture"
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/engine/manager"
	"Go2AQMSpectra/internal/engine/sampler"
	"Go2AQMSpectra/pkg/pcap"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <dev> <pcap filter> <output folder> <sample interval ms> [t|f] [nrsamples]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "  t classifies packets by the low bits of the source address instead of ECN")
	fmt.Fprintln(os.Stderr, "  nrsamples 0 or absent runs until interrupted")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "Optional YAML config file; positional arguments override it.")
	format := flag.String("format", "", "Wire format of the telemetry field: float or linear.")
	dumpPath := flag.String("dump", "", "Also write every captured frame to this pcap file.")
	profMode := flag.String("profile", "", "Profile the run: cpu or mem.")
	flag.Usage = usage
	flag.Parse()

	// 1. Load configuration
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Println("Configuration loaded successfully.")
	}
	var argErr error
	if *configPath != "" && flag.NArg() == 0 {
		argErr = cfg.Validate()
	} else {
		argErr = cfg.ApplyArgs(flag.Args())
	}
	if argErr == nil && cfg.Capture.Device == "" {
		argErr = errors.New("no capture device")
	}
	if argErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", argErr)
		usage()
		os.Exit(1)
	}
	if *format != "" {
		cfg.Analyzer.WireFormat = *format
	}
	if *dumpPath != "" {
		cfg.Capture.DumpPath = *dumpPath
	}

	if err := run(cfg, *profMode); err != nil {
		var ie *sampler.InvariantError
		if errors.As(err, &ie) {
			log.Printf("Aborting, output would be corrupt: %v", err)
		} else {
			log.Printf("Error: %v", err)
		}
		os.Exit(1)
	}
	log.Println("Shutdown complete.")
}

// run executes one capture session. Every failure is returned so that the
// deferred cleanup runs before the process exits.
func run(cfg *config.Config, profMode string) error {
	wireFormat, err := codec.ParseFormat(cfg.Analyzer.WireFormat)
	if err != nil {
		return fmt.Errorf("invalid wire format: %w", err)
	}
	interval, err := cfg.Analyzer.Interval()
	if err != nil {
		return err
	}
	timeout, err := cfg.Capture.Timeout()
	if err != nil {
		return err
	}

	switch profMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.Analyzer.OutputDir), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(cfg.Analyzer.OutputDir), profile.NoShutdownHook).Stop()
	case "":
	default:
		return fmt.Errorf("unknown profile mode %q", profMode)
	}

	// 2. Open the capture device
	handle, err := pcap.OpenLive(pcap.Options{
		Device:      cfg.Capture.Device,
		Filter:      cfg.Capture.Filter,
		SnapLen:     cfg.Capture.SnapLen,
		Promiscuous: cfg.Capture.Promiscuous,
		ReadTimeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer handle.Close()

	var dumper *capture.Dumper
	if cfg.Capture.DumpPath != "" {
		dumper, err = capture.OpenDumper(cfg.Capture.DumpPath, uint32(handle.SnapLen()), handle.LinkType())
		if err != nil {
			return fmt.Errorf("failed to open dump: %w", err)
		}
	}

	// 3. Initialize the session
	m, err := manager.NewManager(manager.Options{
		Source:     handle,
		SourceName: cfg.Capture.Device,
		Filter:     cfg.Capture.Filter,
		Format:     wireFormat,
		IPClass:    cfg.Analyzer.IPClass,
		Sampler:    sampler.Config{Interval: interval, NumSamples: cfg.Analyzer.NumSamples},
		Dump:       dumper,
		OutputDir:  cfg.Analyzer.OutputDir,
		Writers:    cfg.Writers,
	})
	if err != nil {
		if dumper != nil {
			dumper.Stop()
		}
		return fmt.Errorf("failed to create manager: %w", err)
	}

	srv := api.NewServer(cfg.API, m)
	m.OnStateChange(srv.SetServing)
	if err := srv.Start(); err != nil {
		m.Close()
		return fmt.Errorf("failed to start API: %w", err)
	}

	// 4. Graceful shutdown on a signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		log.Printf("Received %v, finishing the current sample...", sig)
		m.Quit().Cancel()
	}()

	// 5. Run until done
	m.Start()
	summary, err := m.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("API shutdown: %v", err)
	}

	if received, dropped, err := handle.Stats(); err == nil {
		log.Printf("Kernel received %d packets, dropped %d.", received, dropped)
	}
	fmt.Printf("Packets captured: %d\n", summary.PacketsCaptured)
	fmt.Printf("Packets processed: %d\n", summary.PacketsProcessed)
	fmt.Printf("Malformed packets: %d\n", summary.PacketsMalformed)

	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	return nil
}
