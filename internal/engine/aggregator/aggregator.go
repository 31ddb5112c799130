package aggregator

import (
	"Go2AQMSpectra/internal/model"
	"sync"
	"time"
)

// Aggregator owns the two data blocks. The capture side writes into the
// active block, the reporting side swaps and drains the other one. Swapping
// flips an index, block contents are never copied.
type Aggregator struct {
	mu       sync.Mutex
	blocks   [2]*DataBlock
	active   int
	ingested uint64
}

// New returns an Aggregator whose first block is active from now.
func New() *Aggregator {
	a := &Aggregator{
		blocks: [2]*DataBlock{newDataBlock(), newDataBlock()},
	}
	a.blocks[0].Start = time.Now()
	return a
}

// Ingest attributes one decoded packet to the active block.
func (a *Aggregator) Ingest(p *model.PacketInfo) {
	a.mu.Lock()
	a.blocks[a.active].add(p)
	a.ingested++
	a.mu.Unlock()
}

// Swap closes the active block at now and opens the other one at now. The
// caller must have initialized the other block beforehand. The returned
// block is owned by the caller until the next Swap.
func (a *Aggregator) Swap(now time.Time) *DataBlock {
	a.mu.Lock()
	defer a.mu.Unlock()

	closed := a.blocks[a.active]
	a.active ^= 1
	a.blocks[a.active].Start = now
	closed.End = now
	return closed
}

// Draining returns the block that is not active.
func (a *Aggregator) Draining() *DataBlock {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blocks[a.active^1]
}

// Ingested returns the number of packets attributed to any block so far.
func (a *Aggregator) Ingested() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ingested
}
