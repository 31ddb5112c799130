package main

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"Go2AQMSpectra/internal/probe"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	url := flag.String("url", "", "NATS server URL (default nats://127.0.0.1:4222)")
	subject := flag.String("subject", "aqm.samples", "Subject the analyzer publishes on")
	flag.Parse()

	log.Println("Starting ns-watch...")

	sub, err := probe.NewSubscriber(config.NATSConfig{URL: *url, Subject: *subject})
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	onSample := func(s probe.SampleSummary) {
		ecn, nonecn := s.Queues[model.ECN], s.Queues[model.NonECN]
		log.Printf("[%s] sample %d at %d ms | ecn %d pkts %.2f Mbit/s %d flows qdelay %.0f/%.0f us marks %d drops %d | nonecn %d pkts %.2f Mbit/s %d flows qdelay %.0f/%.0f us drops %d",
			s.SessionID, s.SampleID, s.TimeMs,
			ecn.Packets, float64(ecn.Rate)/1e6, ecn.Flows, ecn.MeanQDelayUs, ecn.P99QDelayUs, ecn.Marks, ecn.Drops,
			nonecn.Packets, float64(nonecn.Rate)/1e6, nonecn.Flows, nonecn.MeanQDelayUs, nonecn.P99QDelayUs, nonecn.Drops)
	}
	onSession := func(s model.SessionSummary) {
		log.Printf("[%s] session finished: %d samples, %d captured, %d processed, %d malformed",
			s.SessionID, s.Samples, s.PacketsCaptured, s.PacketsProcessed, s.PacketsMalformed)
	}

	if err := sub.Start(onSample, onSession); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
