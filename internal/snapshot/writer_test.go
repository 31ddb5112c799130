package snapshot

import (
	"Go2AQMSpectra/internal/model"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndLoad(t *testing.T) {
	key := model.FlowKey{
		Protocol: model.ProtoTCP,
		SrcIP:    netip.MustParseAddr("10.0.0.1"),
		DstIP:    netip.MustParseAddr("10.0.1.1"),
		SrcPort:  40000,
		DstPort:  5001,
	}
	flows := &model.FlowTables{SampleTimes: []uint64{1000, 2000}}
	flows.Series[model.ECN] = []model.FlowSeries{{
		Key:     key,
		Samples: []model.FlowData{{}, {Rate: 912000, Drops: 3, Marks: 1, Port: 5001}},
	}}
	summary := &model.SessionSummary{
		SessionID: "test-session",
		Samples:   2,
		FlowsECN:  1,
		StartTime: time.Unix(1700000000, 0).UTC(),
	}

	dir := filepath.Join(t.TempDir(), "session")
	if err := Write(dir, &model.Report{Flows: flows, Summary: summary}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.json")); os.IsNotExist(err) {
		t.Fatalf("summary.json was not created")
	}

	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.Summary.SessionID != "test-session" || r.Summary.FlowsECN != 1 || !r.Summary.StartTime.Equal(summary.StartTime) {
		t.Errorf("unexpected summary %+v", r.Summary)
	}
	ecn := r.Flows.Series[model.ECN]
	if len(ecn) != 1 || ecn[0].Key != key {
		t.Fatalf("unexpected flows %+v", ecn)
	}
	if got := ecn[0].Samples[1]; got.Rate != 912000 || got.Port != 5001 {
		t.Errorf("unexpected flow sample %+v", got)
	}
}

func TestLoadEmptyDir(t *testing.T) {
	r, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.Summary != nil || r.Flows != nil {
		t.Errorf("expected an empty report, got %+v", r)
	}
}
