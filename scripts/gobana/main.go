package main

import (
	"Go2AQMSpectra/internal/model"
	"Go2AQMSpectra/internal/snapshot"
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <snapshot_dir>")
		os.Exit(1)
	}

	r, err := snapshot.Load(os.Args[1])
	if err != nil {
		log.Fatalf("Unable to load snapshot: %v", err)
	}

	if r.Summary != nil {
		s := r.Summary
		fmt.Printf("Session %s on %s (%s, %s)\n", s.SessionID, s.Device, s.WireFormat, s.SampleInterval)
		fmt.Printf("  samples=%d captured=%d processed=%d malformed=%d\n",
			s.Samples, s.PacketsCaptured, s.PacketsProcessed, s.PacketsMalformed)
	}
	if r.Flows == nil {
		fmt.Println("No flow tables.")
		return
	}

	fmt.Printf("Decoded flows over %d samples:\n", len(r.Flows.SampleTimes))
	for c := model.Class(0); c < model.NumClasses; c++ {
		fmt.Printf("[%s]\n", c)
		for _, fs := range r.Flows.Series[c] {
			var bits, drops, marks uint64
			for _, d := range fs.Samples {
				bits += d.Rate
				drops += uint64(d.Drops)
				marks += uint64(d.Marks)
			}
			var mean uint64
			if n := len(fs.Samples); n > 0 {
				mean = bits / uint64(n)
			}
			fmt.Printf("  %-50s mean_rate=%d drops=%d marks=%d\n", fs.Key, mean, drops, marks)
		}
	}
}
