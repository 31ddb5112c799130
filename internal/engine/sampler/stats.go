package sampler

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/model"

	"gonum.org/v1/gonum/stat"
)

// queueStats computes the packet-weighted mean and 99th percentile queueing
// delay of the codepoints belonging to class.
func queueStats(packets model.Histogram, class model.Class, delays *codec.DelayTable) model.QueueStats {
	var x, w []float64
	for i := 0; i < codec.QSLimit; i++ {
		var n uint32
		for cp := model.ECN00; cp < model.NumCodepoints; cp++ {
			if cp.Class() == class && packets[cp] != nil {
				n += packets[cp][i]
			}
		}
		if n == 0 {
			continue
		}
		// the delay table is non-decreasing, so x stays sorted
		x = append(x, float64(delays[i]))
		w = append(w, float64(n))
	}
	if len(x) == 0 {
		return model.QueueStats{}
	}
	return model.QueueStats{
		MeanQDelayUs: stat.Mean(x, w),
		P99QDelayUs:  stat.Quantile(0.99, stat.Empirical, x, w),
	}
}
