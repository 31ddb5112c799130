package main

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/model"
	"Go2AQMSpectra/internal/testbed"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"
)

func main() {
	outputFile := flag.String("o", "testbed.pcap", "Output pcap file path")
	flows := flag.Int("flows", 4, "Flows per queue")
	rate := flag.Int("rate", 1000, "Packets per second per flow")
	duration := flag.Duration("d", 10*time.Second, "Length of the trace")
	maxDelay := flag.Duration("qdelay", 20*time.Millisecond, "Peak queueing delay of the classic queue")
	dropProb := flag.Float64("drop", 0.01, "Drop probability at peak delay")
	markProb := flag.Float64("mark", 0.1, "CE mark probability at peak delay")
	format := flag.String("format", "float", "Wire format: float or linear")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	wireFormat, err := codec.ParseFormat(*format)
	if err != nil {
		log.Fatalf("Invalid wire format: %v", err)
	}
	gen, err := testbed.NewGenerator(testbed.Config{
		Format:    wireFormat,
		Flows:     *flows,
		Rate:      *rate,
		Duration:  *duration,
		MaxQDelay: *maxDelay,
		DropProb:  *dropProb,
		MarkProb:  *markProb,
		Seed:      *seed,
	})
	if err != nil {
		log.Fatalf("Invalid generator settings: %v", err)
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := testbed.WriteHeader(pcapWriter); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	log.Printf("Generating %v of traffic for %d flows per queue into %s...", *duration, *flows, *outputFile)
	st, err := gen.Generate(pcapWriter)
	if err != nil {
		log.Fatalf("Failed to generate trace: %v", err)
	}

	for c := model.NonECN; c < model.NumClasses; c++ {
		log.Printf("%s: %d packets, %d drops", c, st.Packets[c], st.Drops[c])
	}
	log.Printf("Drops not yet reported at the end of the trace: ecn %d, nonecn %d", st.Pending.ECN, st.Pending.NonECN)
	log.Printf("Successfully generated %s.", *outputFile)
}
