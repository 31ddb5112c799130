package capture

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/engine/aggregator"
	"Go2AQMSpectra/internal/engine/protocol"
	"Go2AQMSpectra/internal/model"
	"bytes"
	"errors"
	"io"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/goleak"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

// fakeSource replays frames, then times out forever or ends with err.
type fakeSource struct {
	mu     sync.Mutex
	frames [][]byte
	stamps []time.Time
	end    error
}

func (s *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		if s.end != nil {
			return nil, gopacket.CaptureInfo{}, s.end
		}
		time.Sleep(time.Millisecond)
		return nil, gopacket.CaptureInfo{}, timeoutErr{}
	}
	data := s.frames[0]
	ts := time.Unix(1700000000, 0)
	if len(s.stamps) > 0 {
		ts, s.stamps = s.stamps[0], s.stamps[1:]
	}
	s.frames = s.frames[1:]
	return data, gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}, nil
}

func frame(t *testing.T, proto uint8, tos uint8) []byte {
	t.Helper()
	data, err := protocol.BuildFrame(protocol.Frame{
		Protocol:   proto,
		SrcIP:      netip.MustParseAddr("10.0.0.1"),
		DstIP:      netip.MustParseAddr("10.0.1.1"),
		SrcPort:    40000,
		DstPort:    5001,
		TOS:        tos,
		ID:         5,
		PayloadLen: 46,
	})
	if err != nil {
		t.Fatalf("BuildFrame() error: %v", err)
	}
	return data
}

func TestCaptureIngestsAndCounts(t *testing.T) {
	tcp := frame(t, model.ProtoTCP, 1)
	arp := append([]byte(nil), tcp...)
	arp[12], arp[13] = 0x08, 0x06

	src := &fakeSource{
		frames: [][]byte{tcp, frame(t, model.ProtoUDP, 0), tcp[:20], arp},
		end:    io.EOF,
	}
	agg := aggregator.New()
	eof := false
	c := New(src, protocol.NewDecoder(codec.FormatFloat, false), agg, Options{OnEOF: func() { eof = true }})

	if err := c.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !eof {
		t.Error("OnEOF was not called")
	}
	if c.Captured() != 4 || c.Malformed() != 1 || c.Ignored() != 1 {
		t.Errorf("captured/malformed/ignored = %d/%d/%d, want 4/1/1", c.Captured(), c.Malformed(), c.Ignored())
	}
	if agg.Ingested() != 2 {
		t.Errorf("expected 2 ingested packets, got %d", agg.Ingested())
	}

	blk := agg.Swap(time.Now())
	if blk.Packets[model.ECN01][5] != 1 || blk.Packets[model.ECN00][5] != 1 {
		t.Errorf("packets not in delay bucket 5")
	}
}

func TestCaptureStopDuringTimeouts(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(&fakeSource{}, protocol.NewDecoder(codec.FormatFloat, false), aggregator.New(), Options{})
	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestCaptureReadError(t *testing.T) {
	boom := errors.New("device went away")
	c := New(&fakeSource{end: boom}, protocol.NewDecoder(codec.FormatFloat, false), aggregator.New(), Options{})
	if err := c.Run(); !errors.Is(err, boom) {
		t.Errorf("expected the read error, got %v", err)
	}
}

func TestCaptureDump(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	d, err := NewDumper(&buf, 65536, layers.LinkTypeEthernet, 16)
	if err != nil {
		t.Fatalf("NewDumper() error: %v", err)
	}
	src := &fakeSource{frames: [][]byte{frame(t, model.ProtoTCP, 2), frame(t, model.ProtoTCP, 3)}, end: io.EOF}
	c := New(src, protocol.NewDecoder(codec.FormatFloat, false), aggregator.New(), Options{Dump: d})
	if err := c.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	r, err := pcapgo.NewReader(&buf)
	if err != nil {
		t.Fatalf("pcapgo.NewReader() error: %v", err)
	}
	n := 0
	for {
		if _, _, err := r.ReadPacketData(); err != nil {
			break
		}
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 dumped packets, got %d", n)
	}
	if d.Dropped() != 0 {
		t.Errorf("expected no dropped frames, got %d", d.Dropped())
	}
}

func TestCapturePacing(t *testing.T) {
	base := time.Unix(1700000000, 0)
	src := &fakeSource{
		frames: [][]byte{frame(t, model.ProtoTCP, 1), frame(t, model.ProtoTCP, 1)},
		stamps: []time.Time{base, base.Add(100 * time.Millisecond)},
		end:    io.EOF,
	}
	c := New(src, protocol.NewDecoder(codec.FormatFloat, false), aggregator.New(), Options{Pace: true})

	begin := time.Now()
	if err := c.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if took := time.Since(begin); took < 100*time.Millisecond {
		t.Errorf("paced replay took %v, want at least 100ms", took)
	}
}
