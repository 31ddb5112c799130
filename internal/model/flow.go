package model

import (
	"fmt"
	"net/netip"
	"time"
)

// IP protocol numbers used for flow classification.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// Codepoint is the 2-bit ECN field (or the 2-bit class taken from the source
// address when classifying by IP).
type Codepoint uint8

const (
	ECN00 Codepoint = iota // Not-ECT
	ECN01                  // ECT(1)
	ECN10                  // ECT(0)
	ECN11                  // CE
	NumCodepoints
)

func (c Codepoint) String() string {
	return fmt.Sprintf("ecn%d%d", (c>>1)&1, c&1)
}

// Class returns the queue a codepoint is accounted to.
func (c Codepoint) Class() Class {
	if c&3 == ECN00 {
		return NonECN
	}
	return ECN
}

// Class is the queue a packet is accounted to for throughput and flows.
type Class int

const (
	NonECN Class = iota
	ECN
	NumClasses
)

func (c Class) String() string {
	if c == ECN {
		return "ecn"
	}
	return "nonecn"
}

// FlowKey identifies a flow. All fields take part in equality and ordering.
type FlowKey struct {
	Protocol uint8
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
}

// Less orders keys by protocol, then addresses, then ports.
func (k FlowKey) Less(o FlowKey) bool {
	if k.Protocol != o.Protocol {
		return k.Protocol < o.Protocol
	}
	if c := k.SrcIP.Compare(o.SrcIP); c != 0 {
		return c < 0
	}
	if c := k.DstIP.Compare(o.DstIP); c != 0 {
		return c < 0
	}
	if k.SrcPort != o.SrcPort {
		return k.SrcPort < o.SrcPort
	}
	return k.DstPort < o.DstPort
}

// ProtoName returns the name written to the flow legend files.
func (k FlowKey) ProtoName() string {
	switch k.Protocol {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	case ProtoICMP:
		return "ICMP"
	default:
		return "UNKNOWN"
	}
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d", k.ProtoName(), k.SrcIP, k.SrcPort, k.DstIP, k.DstPort)
}

// Tracked reports whether the flow is kept in the per-flow tables.
func (k FlowKey) Tracked() bool {
	return k.Protocol == ProtoTCP || k.Protocol == ProtoUDP || k.Protocol == ProtoICMP
}

// FlowData accumulates per-flow counters. Rate is in bits while accumulating
// and in bits/sec once converted for a sample.
type FlowData struct {
	Rate  uint64
	Drops uint32
	Marks uint32
	Port  uint16 // representative port, tells control and data flows apart
}

// Update adds one packet's contribution.
func (f *FlowData) Update(bits uint64, drops, marks uint32) {
	f.Rate += bits
	f.Drops += drops
	f.Marks += marks
}

// PacketInfo holds what the decoder extracts from a captured frame.
type PacketInfo struct {
	Timestamp  time.Time
	Key        FlowKey
	Length     int // IPv4 total length
	TOS        uint8
	Codepoint  Codepoint
	Marked     bool
	QDelayCode uint16
	Drops      uint32
}

// Bits is the on-link size of the packet including the Ethernet header.
func (p *PacketInfo) Bits() uint64 {
	return 8 * uint64(p.Length+14)
}

// RepresentativePort picks the port that names the flow: the destination
// port for ssh and the 5001-5050 test range, otherwise the source port.
func (p *PacketInfo) RepresentativePort() uint16 {
	if d := p.Key.DstPort; d == 22 || (d > 5000 && d <= 5050) {
		return d
	}
	return p.Key.SrcPort
}
