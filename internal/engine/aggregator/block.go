package aggregator

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/model"
	"time"
)

// Buckets is one queueing-delay histogram, indexed by delay code.
type Buckets [codec.QSLimit]uint32

// DataBlock is one of the two accumulation buffers.
type DataBlock struct {
	Packets [model.NumCodepoints]Buckets
	Drops   [model.NumCodepoints]Buckets // reported drops per delay bucket

	Flows      [model.NumClasses]map[model.FlowKey]*model.FlowData
	TotPackets [model.NumClasses]uint64

	Start time.Time // set when the block becomes active
	End   time.Time // set when the block is swapped out
}

func newDataBlock() *DataBlock {
	b := &DataBlock{}
	for c := range b.Flows {
		b.Flows[c] = make(map[model.FlowKey]*model.FlowData)
	}
	return b
}

// Init empties the block for reuse. Only call it on a block that is not
// active.
func (b *DataBlock) Init() {
	for c := range b.Packets {
		clear(b.Packets[c][:])
		clear(b.Drops[c][:])
	}
	for c := range b.Flows {
		clear(b.Flows[c])
		b.TotPackets[c] = 0
	}
	b.Start, b.End = time.Time{}, time.Time{}
}

// Histogram exposes the bucket arrays as slices. The slices alias the block
// and are only valid until the block is initialized again.
func (b *DataBlock) Histogram() (packets, drops model.Histogram) {
	for c := range b.Packets {
		packets[c] = b.Packets[c][:]
		drops[c] = b.Drops[c][:]
	}
	return packets, drops
}

func bucketIndex(code uint16) int {
	if int(code) >= codec.QSLimit {
		return codec.QSLimit - 1
	}
	return int(code)
}

func (b *DataBlock) add(p *model.PacketInfo) {
	cp := p.Codepoint & 3
	class := cp.Class()
	i := bucketIndex(p.QDelayCode)

	b.TotPackets[class]++
	b.Packets[cp][i]++
	b.Drops[cp][i] += p.Drops

	var mark uint32
	if p.Marked {
		mark = 1
	}
	if fd, ok := b.Flows[class][p.Key]; ok {
		fd.Update(p.Bits(), p.Drops, mark)
	} else {
		b.Flows[class][p.Key] = &model.FlowData{
			Rate:  p.Bits(),
			Drops: p.Drops,
			Marks: mark,
			Port:  p.RepresentativePort(),
		}
	}
}
