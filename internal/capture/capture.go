package capture

import (
	"Go2AQMSpectra/internal/engine/aggregator"
	"Go2AQMSpectra/internal/engine/protocol"
	"Go2AQMSpectra/internal/metrics"
	"Go2AQMSpectra/internal/model"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
)

// Options tune a capture loop.
type Options struct {
	// Pace replays frames at the speed of their capture timestamps. Used
	// for offline sources.
	Pace bool
	// Dump receives every captured frame when set.
	Dump *Dumper
	// OnEOF is called once when the source is exhausted.
	OnEOF func()
}

// Capture is the producer side of the pipeline: it reads frames, decodes
// them and feeds the aggregator.
type Capture struct {
	src  gopacket.PacketDataSource
	dec  *protocol.Decoder
	agg  *aggregator.Aggregator
	opts Options

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	captured  atomic.Uint64
	malformed atomic.Uint64
	ignored   atomic.Uint64

	pacer pacer
}

// New creates a Capture reading from src.
func New(src gopacket.PacketDataSource, dec *protocol.Decoder, agg *aggregator.Aggregator, opts Options) *Capture {
	return &Capture{
		src:    src,
		dec:    dec,
		agg:    agg,
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

// timeout is implemented by read errors that only mean no packet arrived.
type timeout interface {
	Timeout() bool
}

// Run reads until Stop is called, the source ends or fails. Frames that
// cannot be decoded are counted and skipped.
func (c *Capture) Run() error {
	var info model.PacketInfo
	for !c.stopped.Load() {
		data, ci, err := c.src.ReadPacketData()
		if err != nil {
			var t timeout
			if errors.As(err, &t) && t.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Println("Capture source exhausted.")
				if c.opts.OnEOF != nil {
					c.opts.OnEOF()
				}
				return nil
			}
			if c.stopped.Load() {
				return nil
			}
			return fmt.Errorf("failed to read packet: %w", err)
		}

		c.captured.Add(1)
		metrics.PacketsCaptured.Inc()

		if c.opts.Dump != nil {
			c.opts.Dump.Enqueue(ci, data)
		}

		if c.opts.Pace && !c.pacer.wait(ci.Timestamp, c.stopCh) {
			return nil
		}

		if err := c.dec.Decode(data, ci.Timestamp, &info); err != nil {
			if errors.Is(err, protocol.ErrNotIPv4) {
				c.ignored.Add(1)
				metrics.PacketsDiscarded.WithLabelValues("not_ipv4").Inc()
			} else {
				c.malformed.Add(1)
				metrics.PacketsDiscarded.WithLabelValues("malformed").Inc()
			}
			continue
		}
		c.agg.Ingest(&info)
	}
	return nil
}

// Stop asks Run to return. It does not wait; a blocked read returns at the
// source's next timeout.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopCh)
	})
}

// Captured returns the number of frames read.
func (c *Capture) Captured() uint64 {
	return c.captured.Load()
}

// Malformed returns the number of frames that failed to decode.
func (c *Capture) Malformed() uint64 {
	return c.malformed.Load()
}

// Ignored returns the number of well-formed frames without IPv4.
func (c *Capture) Ignored() uint64 {
	return c.ignored.Load()
}

// pacer delays frames so they are delivered at the rate they were
// captured.
type pacer struct {
	first time.Time
	wall  time.Time
}

// wait blocks until ts is due and reports false if stop closed first.
func (p *pacer) wait(ts time.Time, stop <-chan struct{}) bool {
	if p.first.IsZero() {
		p.first, p.wall = ts, time.Now()
		return true
	}
	d := time.Until(p.wall.Add(ts.Sub(p.first)))
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}
