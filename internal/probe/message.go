package probe

import (
	"Go2AQMSpectra/internal/model"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// QueueSummary is the per-queue part of a SampleSummary.
type QueueSummary struct {
	Packets      uint64  `json:"packets"`
	Rate         uint64  `json:"rate"`
	Drops        uint64  `json:"drops"`
	Marks        uint64  `json:"marks"`
	Flows        int     `json:"flows"`
	MeanQDelayUs float64 `json:"mean_qdelay_us"`
	P99QDelayUs  float64 `json:"p99_qdelay_us"`
}

// SampleSummary is what gets published for every sample. Histograms and
// per-flow rows stay local.
type SampleSummary struct {
	SessionID string                         `json:"session_id"`
	SampleID  int                            `json:"sample_id"`
	TimeMs    uint64                         `json:"time_ms"`
	End       time.Time                      `json:"end"`
	Queues    [model.NumClasses]QueueSummary `json:"queues"` // nonecn, ecn
}

// Summarize reduces a sample to its published form.
func Summarize(sessionID string, s *model.Sample) SampleSummary {
	sum := SampleSummary{
		SessionID: sessionID,
		SampleID:  s.ID,
		TimeMs:    s.TimeMs,
		End:       s.End,
	}
	for c := range sum.Queues {
		t := s.Totals[c]
		sum.Queues[c] = QueueSummary{
			Packets:      t.Packets,
			Rate:         t.Rate,
			Drops:        t.Drops,
			Marks:        t.Marks,
			Flows:        len(s.Flows[c]),
			MeanQDelayUs: s.Stats[c].MeanQDelayUs,
			P99QDelayUs:  s.Stats[c].P99QDelayUs,
		}
	}
	return sum
}

// Marshal encodes the summary as a protobuf Struct.
func (s SampleSummary) Marshal() ([]byte, error) {
	queues := make(map[string]interface{}, len(s.Queues))
	for c, q := range s.Queues {
		queues[model.Class(c).String()] = map[string]interface{}{
			"packets":        q.Packets,
			"rate":           q.Rate,
			"drops":          q.Drops,
			"marks":          q.Marks,
			"flows":          q.Flows,
			"mean_qdelay_us": q.MeanQDelayUs,
			"p99_qdelay_us":  q.P99QDelayUs,
		}
	}
	st, err := structpb.NewStruct(map[string]interface{}{
		"session_id": s.SessionID,
		"sample_id":  s.SampleID,
		"time_ms":    s.TimeMs,
		"end":        s.End.UTC().Format(time.RFC3339Nano),
		"queues":     queues,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build sample message: %w", err)
	}
	return proto.Marshal(st)
}

// UnmarshalSampleSummary decodes a message produced by Marshal.
func UnmarshalSampleSummary(data []byte) (SampleSummary, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return SampleSummary{}, fmt.Errorf("failed to unmarshal sample message: %w", err)
	}
	f := st.GetFields()

	s := SampleSummary{
		SessionID: f["session_id"].GetStringValue(),
		SampleID:  int(f["sample_id"].GetNumberValue()),
		TimeMs:    uint64(f["time_ms"].GetNumberValue()),
	}
	if end := f["end"].GetStringValue(); end != "" {
		t, err := time.Parse(time.RFC3339Nano, end)
		if err != nil {
			return SampleSummary{}, fmt.Errorf("bad end time %q: %w", end, err)
		}
		s.End = t
	}

	queues := f["queues"].GetStructValue().GetFields()
	for c := range s.Queues {
		q := queues[model.Class(c).String()].GetStructValue().GetFields()
		if q == nil {
			continue
		}
		s.Queues[c] = QueueSummary{
			Packets:      uint64(q["packets"].GetNumberValue()),
			Rate:         uint64(q["rate"].GetNumberValue()),
			Drops:        uint64(q["drops"].GetNumberValue()),
			Marks:        uint64(q["marks"].GetNumberValue()),
			Flows:        int(q["flows"].GetNumberValue()),
			MeanQDelayUs: q["mean_qdelay_us"].GetNumberValue(),
			P99QDelayUs:  q["p99_qdelay_us"].GetNumberValue(),
		}
	}
	return s, nil
}
