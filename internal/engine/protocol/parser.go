package protocol

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/model"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	// ErrMalformedPacket is returned for frames too short to hold the
	// headers they announce.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrNotIPv4 is returned for well-formed frames that carry no IPv4.
	ErrNotIPv4 = errors.New("not an IPv4 packet")
)

// Decoder extracts flow keys and queue telemetry from Ethernet frames.
// It reuses its layer structs, so each capture goroutine needs its own.
type Decoder struct {
	format  codec.Format
	ipClass bool

	eth     layers.Ethernet
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// NewDecoder creates a Decoder for the given wire format. With ipClass set,
// the 2-bit class is taken from the low bits of the source address instead
// of the ECN field.
func NewDecoder(format codec.Format, ipClass bool) *Decoder {
	d := &Decoder{
		format:  format,
		ipClass: ipClass,
		decoded: make([]gopacket.LayerType, 0, 4),
	}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &d.eth, &d.ip4, &d.tcp, &d.udp)
	d.parser.IgnoreUnsupported = true
	return d
}

// Decode fills info from a raw frame. Delay is left as the raw code, drops
// are decoded right away.
func (d *Decoder) Decode(data []byte, ts time.Time, info *model.PacketInfo) error {
	if err := d.parser.DecodeLayers(data, &d.decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	// The parser stops quietly when a layer has no payload left, so a frame
	// cut right after a header decodes without error. Check what we got.
	var haveIP, haveL4 bool
	var sport, dport uint16
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			haveIP = true
		case layers.LayerTypeTCP:
			haveL4 = true
			sport, dport = uint16(d.tcp.SrcPort), uint16(d.tcp.DstPort)
		case layers.LayerTypeUDP:
			haveL4 = true
			sport, dport = uint16(d.udp.SrcPort), uint16(d.udp.DstPort)
		}
	}
	if !haveIP {
		if len(d.decoded) > 0 && d.eth.EthernetType == layers.EthernetTypeIPv4 {
			return fmt.Errorf("%w: missing IPv4 header", ErrMalformedPacket)
		}
		return ErrNotIPv4
	}

	proto := uint8(d.ip4.Protocol)
	if (proto == model.ProtoTCP || proto == model.ProtoUDP) && !haveL4 {
		if d.ip4.FragOffset == 0 {
			return fmt.Errorf("%w: missing %s header", ErrMalformedPacket, d.ip4.Protocol)
		}
		// later fragments carry no transport header
		sport, dport = 0, 0
	}

	src, ok := netip.AddrFromSlice(d.ip4.SrcIP.To4())
	if !ok {
		return fmt.Errorf("%w: bad source address", ErrMalformedPacket)
	}
	dst, ok := netip.AddrFromSlice(d.ip4.DstIP.To4())
	if !ok {
		return fmt.Errorf("%w: bad destination address", ErrMalformedPacket)
	}

	if proto != model.ProtoTCP && proto != model.ProtoUDP {
		sport, dport = 0, 0
	}

	qdelay, drops := d.format.Unpack(d.ip4.Id)

	class := d.ip4.TOS
	if d.ipClass {
		class = src.As4()[3]
	}

	*info = model.PacketInfo{
		Timestamp: ts,
		Key: model.FlowKey{
			Protocol: proto,
			SrcIP:    src,
			DstIP:    dst,
			SrcPort:  sport,
			DstPort:  dport,
		},
		Length:     int(d.ip4.Length),
		TOS:        d.ip4.TOS,
		Codepoint:  model.Codepoint(class & 3),
		Marked:     d.ip4.TOS&3 == 3,
		QDelayCode: qdelay,
		Drops:      drops,
	}
	return nil
}
