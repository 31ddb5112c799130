package testbed

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/engine/protocol"
	"Go2AQMSpectra/internal/model"
	"fmt"
	"math"
	"math/rand"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Config describes the synthetic traffic of a dual-queue bottleneck.
type Config struct {
	Format   codec.Format
	Flows    int           // flows per queue
	Rate     int           // packets per second per flow
	Duration time.Duration // length of the trace
	// MaxQDelay is the peak queueing delay of the classic queue. The
	// low-latency queue peaks at a tenth of it.
	MaxQDelay time.Duration
	DropProb  float64 // per-packet drop probability at peak delay
	MarkProb  float64 // per-packet CE probability at peak delay, ecn queue
	Seed      int64
	Start     time.Time
}

// Stats reports what was generated, for checking an analyzer run.
type Stats struct {
	Packets [model.NumClasses]uint64
	Drops   [model.NumClasses]uint64 // recorded by the queue model
	Pending codec.DropCounters       // recorded but not yet carried by a packet
}

type flow struct {
	frame protocol.Frame
	class model.Class
}

// Generator writes Ethernet/IPv4 frames whose IP-ID fields carry queue
// telemetry stamped by a codec.Packer.
type Generator struct {
	cfg    Config
	rnd    *rand.Rand
	packer *codec.Packer
	flows  []flow
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Flows <= 0 || cfg.Rate <= 0 || cfg.Duration <= 0 {
		return nil, fmt.Errorf("flows, rate and duration must be positive")
	}
	if cfg.Flows > 250 {
		return nil, fmt.Errorf("at most 250 flows per queue, got %d", cfg.Flows)
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	g := &Generator{
		cfg:    cfg,
		rnd:    rand.New(rand.NewSource(cfg.Seed)),
		packer: codec.NewPacker(cfg.Format),
	}
	for i := 0; i < cfg.Flows; i++ {
		// ECT(1) for the low-latency queue, Not-ECT for the classic one
		g.flows = append(g.flows, g.newFlow(i, model.ECN, 1))
		g.flows = append(g.flows, g.newFlow(i, model.NonECN, 0))
	}
	return g, nil
}

func (g *Generator) newFlow(i int, class model.Class, tos uint8) flow {
	proto := model.ProtoTCP
	if i%4 == 3 {
		proto = model.ProtoUDP
	}
	return flow{
		class: class,
		frame: protocol.Frame{
			Protocol:   proto,
			SrcIP:      netip.AddrFrom4([4]byte{10, 0, byte(class), byte(i + 1)}),
			DstIP:      netip.AddrFrom4([4]byte{10, 0, 9, 1}),
			SrcPort:    uint16(40000 + i),
			DstPort:    uint16(5001 + i%50),
			TOS:        tos,
			PayloadLen: 1400,
		},
	}
}

// qdelay is the queue model: a slow sine wave per queue.
func (g *Generator) qdelay(class model.Class, t time.Duration) (time.Duration, float64) {
	load := 0.5 + 0.5*math.Sin(2*math.Pi*t.Seconds()/5)
	peak := g.cfg.MaxQDelay
	if class == model.ECN {
		peak /= 10
	}
	return time.Duration(load * float64(peak)), load
}

// Generate writes the trace to w, which must already have its file header.
func (g *Generator) Generate(w *pcapgo.Writer) (Stats, error) {
	var st Stats
	gap := time.Second / time.Duration(g.cfg.Rate*len(g.flows))
	n := int(g.cfg.Duration / gap)
	tosByClass := [model.NumClasses]uint8{model.NonECN: 0, model.ECN: 1}

	for i := 0; i < n; i++ {
		at := time.Duration(i) * gap
		f := g.flows[i%len(g.flows)]
		delay, load := g.qdelay(f.class, at)

		if g.rnd.Float64() < g.cfg.DropProb*load {
			// dropped at the bottleneck; the next packet of the queue
			// reports it
			g.packer.RecordDrop(tosByClass[f.class])
			st.Drops[f.class]++
			continue
		}

		fr := f.frame
		if f.class == model.ECN && g.rnd.Float64() < g.cfg.MarkProb*load {
			fr.TOS |= 3
		}
		data, err := protocol.BuildFrame(fr)
		if err != nil {
			return st, err
		}
		if err := g.packer.Stamp(data[14:], delay); err != nil {
			return st, err
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     g.cfg.Start.Add(at),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			return st, fmt.Errorf("failed to write packet: %w", err)
		}
		st.Packets[f.class]++
	}
	st.Pending = g.packer.Pending()
	return st, nil
}

// WriteHeader writes the pcap file header for generated traces.
func WriteHeader(w *pcapgo.Writer) error {
	return w.WriteFileHeader(65536, layers.LinkTypeEthernet)
}
