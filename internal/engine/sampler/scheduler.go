package sampler

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/engine/aggregator"
	"Go2AQMSpectra/internal/metrics"
	"Go2AQMSpectra/internal/model"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"
)

// Config holds the reporting cadence.
type Config struct {
	Interval   time.Duration
	NumSamples int // 0 runs until cancelled
}

// Scheduler is the reporting loop. It swaps the aggregator's blocks on a
// fixed cadence, turns each drained block into a model.Sample and hands it
// to the writers.
type Scheduler struct {
	cfg     Config
	agg     *aggregator.Aggregator
	delays  *codec.DelayTable
	writers []model.Writer
	quit    *Quit

	// owned by the goroutine running Run
	tables      [model.NumClasses]*flowTable
	sampleTimes []uint64
	sampleID    int
	samples     int
	start       time.Time

	mu        sync.Mutex
	latest    *model.Sample
	processed uint64
}

// New creates a Scheduler draining agg.
func New(cfg Config, agg *aggregator.Aggregator, delays *codec.DelayTable, quit *Quit, writers ...model.Writer) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sample interval must be positive, got %v", cfg.Interval)
	}
	if cfg.NumSamples < 0 {
		return nil, fmt.Errorf("number of samples must not be negative, got %d", cfg.NumSamples)
	}
	s := &Scheduler{
		cfg:     cfg,
		agg:     agg,
		delays:  delays,
		writers: writers,
		quit:    quit,
	}
	for c := range s.tables {
		s.tables[c] = newFlowTable()
	}
	return s, nil
}

// Begin starts the session: it empties both blocks and opens the first
// sample now. Packets ingested before Begin are discarded. Run calls it if
// the caller has not.
func (s *Scheduler) Begin() {
	if !s.start.IsZero() {
		return
	}
	s.agg.Draining().Init()
	now := time.Now()
	s.agg.Swap(now).Init()
	s.start = now
	log.Printf("Sampling every %v", s.cfg.Interval)
}

// Run executes the reporting loop until the sample count is reached or quit
// is cancelled. On cancel the sample being collected is closed early and
// written, so Run never leaves a sample half written.
func (s *Scheduler) Run() error {
	s.Begin()

	s.quit.Wait(s.cfg.Interval)
	for {
		// read before the swap so packets ingested up to the cancel are
		// in the last sample
		final := s.quit.Cancelled()
		closed := s.agg.Swap(time.Now())
		if err := s.process(closed); err != nil {
			return err
		}
		if s.cfg.NumSamples != 0 && s.sampleID >= s.cfg.NumSamples-1 {
			log.Printf("Collected %d samples, stopping.", s.samples)
			return nil
		}
		if final {
			log.Printf("Cancelled after %d samples.", s.samples)
			return nil
		}
		closed.Init()

		elapsed := time.Since(s.start)
		next := time.Duration(s.sampleID+2) * s.cfg.Interval
		if elapsed < next {
			s.quit.Wait(next - elapsed)
		}
		s.sampleID++
	}
}

// process serializes one drained block.
func (s *Scheduler) process(b *aggregator.DataBlock) error {
	begin := time.Now()

	lengthUs := uint64(b.End.Sub(b.Start).Microseconds())
	if lengthUs == 0 {
		lengthUs = 1
	}
	sample := &model.Sample{
		ID:     s.sampleID,
		TimeMs: uint64(b.End.Sub(s.start).Milliseconds()),
		Start:  b.Start,
		End:    b.End,
	}
	sample.Packets, sample.Drops = b.Histogram()

	for c := model.NonECN; c < model.NumClasses; c++ {
		flows := b.Flows[c]
		keys := make([]model.FlowKey, 0, len(flows))
		for k := range flows {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b model.FlowKey) int {
			switch {
			case a.Less(b):
				return -1
			case b.Less(a):
				return 1
			}
			return 0
		})

		tot := model.ClassTotals{Packets: b.TotPackets[c]}
		out := make([]model.FlowSample, 0, len(keys))
		for _, k := range keys {
			fd := flows[k]
			data := *fd
			data.Rate = fd.Rate * 1000000 / lengthUs
			fd.Rate = 0

			tot.Rate += data.Rate
			tot.Drops += uint64(data.Drops)
			tot.Marks += uint64(data.Marks)
			out = append(out, model.FlowSample{Key: k, Data: data})

			if k.Tracked() {
				if err := s.tables[c].add(s.sampleID, k, data); err != nil {
					return err
				}
			}
		}
		s.tables[c].fill(s.sampleID)

		sample.Flows[c] = out
		sample.Totals[c] = tot
		sample.Stats[c] = queueStats(sample.Packets, c, s.delays)
	}
	s.sampleTimes = append(s.sampleTimes, sample.TimeMs)
	s.samples++

	for _, w := range s.writers {
		if err := w.WriteSample(sample); err != nil {
			log.Printf("Error writing sample %d to %s: %v", sample.ID, w.Name(), err)
			metrics.WriterErrors.WithLabelValues(w.Name()).Inc()
		}
	}

	s.report(sample)

	took := time.Since(begin)
	metrics.SampleProcessingTime.Observe(took.Seconds())
	if took > s.cfg.Interval {
		log.Printf("Warning: sample %d took %v to process, longer than the %v interval", sample.ID, took, s.cfg.Interval)
	}
	return nil
}

// report publishes a sample to the metrics and the status snapshot and logs
// one line for it. The histograms alias the drained block, so the snapshot
// drops them.
func (s *Scheduler) report(sample *model.Sample) {
	metrics.SamplesWritten.Inc()
	for c := model.NonECN; c < model.NumClasses; c++ {
		q := c.String()
		metrics.PacketsProcessed.WithLabelValues(q).Add(float64(sample.Totals[c].Packets))
		metrics.SampleRate.WithLabelValues(q).Set(float64(sample.Totals[c].Rate))
		metrics.SampleQueueDelay.WithLabelValues(q, "mean").Set(sample.Stats[c].MeanQDelayUs)
		metrics.SampleQueueDelay.WithLabelValues(q, "p99").Set(sample.Stats[c].P99QDelayUs)
	}

	snap := *sample
	snap.Packets, snap.Drops = model.Histogram{}, model.Histogram{}

	s.mu.Lock()
	s.latest = &snap
	s.processed += sample.Totals[model.NonECN].Packets + sample.Totals[model.ECN].Packets
	s.mu.Unlock()

	ecn, nonecn := sample.Totals[model.ECN], sample.Totals[model.NonECN]
	log.Printf("Sample %d at %d ms: ecn %d pkts %.2f Mbit/s qdelay mean %.0fus p99 %.0fus, nonecn %d pkts %.2f Mbit/s qdelay mean %.0fus p99 %.0fus",
		sample.ID, sample.TimeMs,
		ecn.Packets, float64(ecn.Rate)/1e6, sample.Stats[model.ECN].MeanQDelayUs, sample.Stats[model.ECN].P99QDelayUs,
		nonecn.Packets, float64(nonecn.Rate)/1e6, sample.Stats[model.NonECN].MeanQDelayUs, sample.Stats[model.NonECN].P99QDelayUs)
}

// Finish hands the session-long flow tables to every writer. Call it once
// Run has returned.
func (s *Scheduler) Finish(summary *model.SessionSummary) error {
	tables := s.FlowTables()
	if summary != nil {
		summary.Samples = s.samples
		summary.FlowsECN = s.tables[model.ECN].len()
		summary.FlowsNonECN = s.tables[model.NonECN].len()
		summary.PacketsProcessed = s.Processed()
	}
	report := &model.Report{Flows: tables, Summary: summary}

	var firstErr error
	for _, w := range s.writers {
		if err := w.Finish(report); err != nil {
			metrics.WriterErrors.WithLabelValues(w.Name()).Inc()
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to finish %s: %w", w.Name(), err)
			}
		}
	}
	return firstErr
}

// FlowTables returns the per-flow histories collected so far. It must not
// race with Run.
func (s *Scheduler) FlowTables() *model.FlowTables {
	t := &model.FlowTables{SampleTimes: s.sampleTimes}
	for c := range s.tables {
		t.Series[c] = s.tables[c].series
	}
	return t
}

// Latest returns the most recent sample without its histograms, or nil
// before the first sample.
func (s *Scheduler) Latest() *model.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Processed returns the packets contained in all serialized samples.
func (s *Scheduler) Processed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// Start returns the session start time. Only call it once Run has returned.
func (s *Scheduler) Start() time.Time {
	return s.start
}
