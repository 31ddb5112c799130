package main

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/engine/manager"
	"Go2AQMSpectra/internal/engine/sampler"
	"Go2AQMSpectra/pkg/pcap"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file.")
	filter := flag.String("filter", "", "BPF filter applied to the file.")
	out := flag.String("out", "", "Output folder, overrides the config.")
	interval := flag.Duration("interval", 0, "Sample interval, overrides the config.")
	format := flag.String("format", "", "Wire format of the telemetry field: float or linear.")
	ipClass := flag.Bool("ipclass", false, "Classify packets by the low bits of the source address.")
	pace := flag.Bool("pace", true, "Replay at the speed of the capture timestamps.")
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() != 1 {
		fmt.Println("Usage: pcap-analyzer [flags] <path_to_pcap_file>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Println("Configuration loaded successfully.")
	}
	if *filter != "" {
		cfg.Capture.Filter = *filter
	}
	if *out != "" {
		cfg.Analyzer.OutputDir = *out
	}
	if *interval > 0 {
		cfg.Analyzer.SampleInterval = interval.String()
	}
	if *format != "" {
		cfg.Analyzer.WireFormat = *format
	}
	if *ipClass {
		cfg.Analyzer.IPClass = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	wireFormat, err := codec.ParseFormat(cfg.Analyzer.WireFormat)
	if err != nil {
		log.Fatalf("Invalid wire format: %v", err)
	}
	sampleInterval, _ := cfg.Analyzer.Interval()

	// 3. Initialize modules
	handle, err := pcap.OpenOffline(pcapFilePath, cfg.Capture.Filter)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer handle.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	m, err := manager.NewManager(manager.Options{
		Source:     handle,
		SourceName: pcapFilePath,
		Filter:     cfg.Capture.Filter,
		Format:     wireFormat,
		IPClass:    cfg.Analyzer.IPClass,
		Sampler:    sampler.Config{Interval: sampleInterval, NumSamples: cfg.Analyzer.NumSamples},
		Pace:       *pace,
		OutputDir:  cfg.Analyzer.OutputDir,
		Writers:    cfg.Writers,
	})
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	log.Println("Manager initialized.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, stopping replay...")
		m.Stop()
	}()

	// 4. Start the processing pipeline; the end of the file ends the session
	begin := time.Now()
	m.Start()
	summary, err := m.Wait()
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	fmt.Printf("Packets captured: %d\n", summary.PacketsCaptured)
	fmt.Printf("Packets processed: %d\n", summary.PacketsProcessed)
	fmt.Printf("Malformed packets: %d\n", summary.PacketsMalformed)
	log.Printf("Replayed %d samples in %v.", summary.Samples, time.Since(begin).Round(time.Millisecond))
}
