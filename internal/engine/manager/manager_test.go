package manager

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/engine/protocol"
	"Go2AQMSpectra/internal/engine/sampler"
	"Go2AQMSpectra/internal/factory"
	"Go2AQMSpectra/internal/model"
	"Go2AQMSpectra/internal/snapshot"
	"errors"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"go.uber.org/goleak"
)

type memWriter struct {
	mu      sync.Mutex
	samples []*model.Sample
	report  *model.Report
	closed  bool
}

func (w *memWriter) Name() string { return "test-mem" }
func (w *memWriter) WriteSample(s *model.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	return nil
}
func (w *memWriter) Finish(r *model.Report) error { w.report = r; return nil }
func (w *memWriter) Close() error                 { w.closed = true; return nil }

var lastMem *memWriter

func init() {
	factory.RegisterWriter("test-mem", func(*factory.Env, config.WriterDef) (model.Writer, error) {
		lastMem = &memWriter{}
		return lastMem, nil
	})
}

// frameSource replays frames, optionally one every gap, then returns end.
type frameSource struct {
	frames [][]byte
	gap    time.Duration
	end    error
}

func (s *frameSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if len(s.frames) == 0 {
		return nil, gopacket.CaptureInfo{}, s.end
	}
	if s.gap > 0 {
		time.Sleep(s.gap)
	}
	data := s.frames[0]
	s.frames = s.frames[1:]
	return data, gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(data), Length: len(data)}, nil
}

func frames(t *testing.T, n int) [][]byte {
	t.Helper()
	var out [][]byte
	for i := 0; i < n; i++ {
		data, err := protocol.BuildFrame(protocol.Frame{
			Protocol:   model.ProtoTCP,
			SrcIP:      netip.MustParseAddr("10.0.0.1"),
			DstIP:      netip.MustParseAddr("10.0.1.1"),
			SrcPort:    uint16(40000 + i%3),
			DstPort:    5001,
			TOS:        uint8(i % 4),
			ID:         uint16(i % 64),
			PayloadLen: 100,
		})
		if err != nil {
			t.Fatalf("BuildFrame() error: %v", err)
		}
		out = append(out, data)
	}
	return out
}

func TestManagerReplaysSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := append(frames(t, 30), []byte{1, 2, 3})
	m, err := NewManager(Options{
		Source:     &frameSource{frames: in, gap: time.Millisecond, end: io.EOF},
		SourceName: "test",
		Format:     codec.FormatFloat,
		Sampler:    sampler.Config{Interval: 10 * time.Millisecond},
		Writers:    []config.WriterDef{{Type: "test-mem", Enabled: true}},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	w := lastMem

	var states []bool
	m.OnStateChange(func(capturing bool) { states = append(states, capturing) })
	m.Start()
	summary, err := m.Wait()
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	if summary.PacketsCaptured != 31 || summary.PacketsMalformed != 1 {
		t.Errorf("captured/malformed = %d/%d, want 31/1", summary.PacketsCaptured, summary.PacketsMalformed)
	}
	// the source ends the session, so nothing is left unserialized
	if summary.PacketsProcessed != 30 {
		t.Errorf("processed = %d, want 30", summary.PacketsProcessed)
	}
	if summary.SessionID != m.SessionID() || summary.Samples != len(w.samples) {
		t.Errorf("unexpected summary %+v", summary)
	}
	if w.report == nil || !w.closed {
		t.Fatal("writer was not finished and closed")
	}
	if n := len(w.report.Flows.Series[model.ECN]); n != 3 {
		t.Errorf("expected 3 ecn flows, got %d", n)
	}
	if st := m.Status(); st.State != StateFinished || st.PacketsCaptured != 31 {
		t.Errorf("unexpected status %+v", st)
	}
	if len(states) == 0 || !states[0] || states[len(states)-1] {
		t.Errorf("unexpected state changes %v", states)
	}
}

func TestManagerStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := NewManager(Options{
		Source:  &blockingSource{},
		Format:  codec.FormatLinear,
		Sampler: sampler.Config{Interval: time.Hour},
		Writers: []config.WriterDef{{Type: "test-mem", Enabled: true}},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := m.Wait()
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}

// blockingSource times out like a live capture on an idle link.
type blockingSource struct{}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

func (blockingSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	time.Sleep(5 * time.Millisecond)
	return nil, gopacket.CaptureInfo{}, timeoutErr{}
}

func TestManagerCaptureError(t *testing.T) {
	boom := errors.New("interface down")
	m, err := NewManager(Options{
		Source:  &frameSource{end: boom},
		Format:  codec.FormatFloat,
		Sampler: sampler.Config{Interval: time.Hour},
		Writers: []config.WriterDef{{Type: "test-mem", Enabled: true}},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	m.Start()
	if _, err := m.Wait(); !errors.Is(err, boom) {
		t.Errorf("expected the capture error, got %v", err)
	}
}

func TestManagerTextOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	m, err := NewManager(Options{
		Source:    &frameSource{frames: frames(t, 10), end: io.EOF},
		Format:    codec.FormatFloat,
		Sampler:   sampler.Config{Interval: 50 * time.Millisecond},
		OutputDir: dir,
		Writers:   []config.WriterDef{{Type: "text", Enabled: true}},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	m.Start()
	if _, err := m.Wait(); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	for _, name := range []string{"queue_packets_ecn00", "rate_ecn", "flows_ecn", "flows_rate_nonecn"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	r, err := snapshot.Load(dir)
	if err != nil {
		t.Fatalf("snapshot.Load() error: %v", err)
	}
	if r.Summary == nil || r.Summary.PacketsProcessed != 10 || r.Summary.SessionID != m.SessionID() {
		t.Errorf("unexpected stored summary %+v", r.Summary)
	}
}

func TestManagerUnknownWriter(t *testing.T) {
	_, err := NewManager(Options{
		Source:  &frameSource{end: io.EOF},
		Sampler: sampler.Config{Interval: time.Second},
		Writers: []config.WriterDef{{Type: "carrier-pigeon", Enabled: true}},
	})
	if err == nil {
		t.Error("expected an error for an unknown writer type")
	}
}
