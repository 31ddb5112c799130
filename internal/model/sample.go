package model

import "time"

// Histogram holds one bucket array per ECN codepoint.
type Histogram [NumCodepoints][]uint32

// ClassTotals are the per-queue scalars of one sample.
type ClassTotals struct {
	Packets uint64
	Rate    uint64 // bits/sec
	Drops   uint64
	Marks   uint64
}

// QueueStats summarizes the queueing delay seen by one queue in a sample.
type QueueStats struct {
	MeanQDelayUs float64
	P99QDelayUs  float64
}

// FlowSample is one flow's counters for one sample, rate in bits/sec.
type FlowSample struct {
	Key  FlowKey
	Data FlowData
}

// Sample is everything serialized for one sampling interval.
type Sample struct {
	ID     int
	TimeMs uint64 // block close time since session start
	Start  time.Time
	End    time.Time

	Packets Histogram
	Drops   Histogram

	Flows  [NumClasses][]FlowSample
	Totals [NumClasses]ClassTotals
	Stats  [NumClasses]QueueStats
}

// Length is the observed length of the sample.
func (s *Sample) Length() time.Duration {
	return s.End.Sub(s.Start)
}

// FlowSeries is the per-sample history of one flow.
type FlowSeries struct {
	Key     FlowKey
	Samples []FlowData
}

// FlowTables holds the session-long per-flow histories, flows in order of
// first appearance.
type FlowTables struct {
	SampleTimes []uint64
	Series      [NumClasses][]FlowSeries
}

// SessionSummary describes a finished capture session.
type SessionSummary struct {
	SessionID        string    `json:"session_id"`
	Device           string    `json:"device"`
	Filter           string    `json:"filter"`
	WireFormat       string    `json:"wire_format"`
	SampleInterval   string    `json:"sample_interval"`
	Samples          int       `json:"samples"`
	FlowsECN         int       `json:"flows_ecn"`
	FlowsNonECN      int       `json:"flows_nonecn"`
	PacketsCaptured  uint64    `json:"packets_captured"`
	PacketsProcessed uint64    `json:"packets_processed"`
	PacketsMalformed uint64    `json:"packets_malformed"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
}

// Report is handed to writers once the session has ended.
type Report struct {
	Flows   *FlowTables
	Summary *SessionSummary
}

// SessionStatus is the live state of a capture session.
type SessionStatus struct {
	SessionID        string    `json:"session_id"`
	State            string    `json:"state"`
	Source           string    `json:"source"`
	StartTime        time.Time `json:"start_time"`
	Samples          int       `json:"samples"`
	PacketsCaptured  uint64    `json:"packets_captured"`
	PacketsProcessed uint64    `json:"packets_processed"`
	PacketsMalformed uint64    `json:"packets_malformed"`
}
