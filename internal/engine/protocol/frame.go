package protocol

import (
	"Go2AQMSpectra/internal/model"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Frame describes a synthetic Ethernet/IPv4 packet.
type Frame struct {
	Protocol   uint8
	SrcIP      netip.Addr
	DstIP      netip.Addr
	SrcPort    uint16
	DstPort    uint16
	TOS        uint8
	ID         uint16
	PayloadLen int
}

var (
	frameSrcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	frameDstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// BuildFrame serializes f with correct lengths and checksums.
func BuildFrame(f Frame) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       frameSrcMAC,
		DstMAC:       frameDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TOS:      f.TOS,
		Id:       f.ID,
		Flags:    layers.IPv4DontFragment,
		TTL:      64,
		Protocol: layers.IPProtocol(f.Protocol),
		SrcIP:    net.IP(f.SrcIP.AsSlice()),
		DstIP:    net.IP(f.DstIP.AsSlice()),
	}

	stack := []gopacket.SerializableLayer{eth, ip}
	switch f.Protocol {
	case model.ProtoTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(f.SrcPort),
			DstPort: layers.TCPPort(f.DstPort),
			ACK:     true,
			Window:  14600,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		stack = append(stack, tcp)
	case model.ProtoUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(f.SrcPort),
			DstPort: layers.UDPPort(f.DstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		stack = append(stack, udp)
	}
	stack = append(stack, gopacket.Payload(make([]byte, f.PayloadLen)))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}
