package sampler

import (
	"Go2AQMSpectra/internal/model"
	"fmt"
)

// InvariantError reports a per-flow series whose length no longer matches
// the sample index. Output written after this would be misaligned, so the
// scheduler stops on it.
type InvariantError struct {
	Key      model.FlowKey
	SampleID int
	Length   int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("flow %s has %d samples at sample %d", e.Key, e.Length, e.SampleID)
}

// flowTable keeps every tracked flow's history for the whole session. It is
// only touched by the reporting goroutine.
type flowTable struct {
	index  map[model.FlowKey]int
	series []model.FlowSeries
}

func newFlowTable() *flowTable {
	return &flowTable{index: make(map[model.FlowKey]int)}
}

// add appends fd as sample sampleID of key. A flow seen for the first time
// gets zeroed samples for everything before it.
func (t *flowTable) add(sampleID int, key model.FlowKey, fd model.FlowData) error {
	i, ok := t.index[key]
	if !ok {
		i = len(t.series)
		t.index[key] = i
		t.series = append(t.series, model.FlowSeries{
			Key:     key,
			Samples: make([]model.FlowData, sampleID),
		})
	}

	s := &t.series[i]
	if len(s.Samples) != sampleID {
		return &InvariantError{Key: key, SampleID: sampleID, Length: len(s.Samples)}
	}
	s.Samples = append(s.Samples, fd)
	return nil
}

// fill pads flows that were silent in sample sampleID.
func (t *flowTable) fill(sampleID int) {
	for i := range t.series {
		for len(t.series[i].Samples) < sampleID+1 {
			t.series[i].Samples = append(t.series[i].Samples, model.FlowData{})
		}
	}
}

func (t *flowTable) len() int {
	return len(t.series)
}
