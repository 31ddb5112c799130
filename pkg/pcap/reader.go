package pcap

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Options describe a live capture.
type Options struct {
	Device      string
	Filter      string
	SnapLen     int32
	Promiscuous bool
	// ReadTimeout bounds each blocking read so the capture loop can notice a
	// stop request.
	ReadTimeout time.Duration
}

// Handle wraps a libpcap handle, live or offline.
type Handle struct {
	handle *pcap.Handle
}

// timeoutError is returned by ReadPacketData when a live read timed out
// without a packet.
type timeoutError struct{}

func (timeoutError) Error() string   { return "pcap: read timeout expired" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// OpenLive opens a device for capture and installs the filter. Both an
// unknown device and a filter that does not compile are reported here.
func OpenLive(opts Options) (*Handle, error) {
	// a blocking read would never see Stop on an idle link
	if opts.ReadTimeout <= 0 {
		return nil, fmt.Errorf("read timeout must be positive, got %v", opts.ReadTimeout)
	}
	handle, err := pcap.OpenLive(opts.Device, opts.SnapLen, opts.Promiscuous, opts.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", opts.Device, err)
	}
	if err := setFilter(handle, opts.Filter); err != nil {
		handle.Close()
		return nil, err
	}
	return &Handle{handle: handle}, nil
}

// OpenOffline opens a pcap file, optionally applying a filter.
func OpenOffline(path, filter string) (*Handle, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := setFilter(handle, filter); err != nil {
		handle.Close()
		return nil, err
	}
	return &Handle{handle: handle}, nil
}

func setFilter(handle *pcap.Handle, filter string) error {
	if filter == "" {
		return nil
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("failed to set filter %q: %w", filter, err)
	}
	return nil
}

// ReadPacketData returns the next frame. A read timeout is reported as an
// error with a Timeout method returning true, the end of a file as io.EOF.
func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.handle.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, timeoutError{}
	}
	return data, ci, err
}

// LinkType returns the link type of the capture.
func (h *Handle) LinkType() layers.LinkType {
	return h.handle.LinkType()
}

// SnapLen returns the snapshot length of the capture.
func (h *Handle) SnapLen() int {
	return h.handle.SnapLen()
}

// Stats returns the packets received and dropped by the kernel, for live
// captures only.
func (h *Handle) Stats() (received, dropped int, err error) {
	st, err := h.handle.Stats()
	if err != nil {
		return 0, 0, err
	}
	return st.PacketsReceived, st.PacketsDropped, nil
}

// Close closes the pcap handle.
func (h *Handle) Close() {
	h.handle.Close()
}
