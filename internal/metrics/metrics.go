package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the capture and sampling pipeline.
var (
	PacketsCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqm_packets_captured_total",
			Help: "Frames read from the capture source.",
		})
	PacketsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqm_packets_discarded_total",
			Help: "Frames that could not be decoded, by reason.",
		},
		[]string{"reason"})
	PacketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqm_packets_processed_total",
			Help: "Packets written out in samples, by queue.",
		},
		[]string{"queue"})
	SamplesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqm_samples_total",
			Help: "Samples serialized by the reporting loop.",
		})
	WriterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqm_writer_errors_total",
			Help: "Errors returned by output writers.",
		},
		[]string{"writer"})
	SampleProcessingTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aqm_sample_processing_seconds",
			Help:    "Time from block swap until the sample is written.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		})
	SampleRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aqm_sample_rate_bits_per_second",
			Help: "Throughput of the most recent sample, by queue.",
		},
		[]string{"queue"})
	SampleQueueDelay = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aqm_sample_qdelay_microseconds",
			Help: "Queueing delay of the most recent sample, by queue and statistic.",
		},
		[]string{"queue", "stat"})
)
