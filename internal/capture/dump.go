package capture

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const defaultDumpBuffer = 10000

type rawFrame struct {
	ci   gopacket.CaptureInfo
	data []byte
}

// Dumper writes captured frames to a pcap file from its own goroutine so
// that disk latency never stalls the capture loop.
type Dumper struct {
	frames  chan rawFrame
	wg      sync.WaitGroup
	closer  io.Closer
	dropped atomic.Uint64
	once    sync.Once
}

// OpenDumper creates path and starts writing frames of the given link type
// to it.
func OpenDumper(path string, snaplen uint32, link layers.LinkType) (*Dumper, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dump file: %w", err)
	}
	d, err := NewDumper(file, snaplen, link, defaultDumpBuffer)
	if err != nil {
		file.Close()
		return nil, err
	}
	d.closer = file
	log.Printf("Dumping captured frames to %s", path)
	return d, nil
}

// NewDumper writes the pcap file header to w and starts the writer
// goroutine.
func NewDumper(w io.Writer, snaplen uint32, link layers.LinkType, buffer int) (*Dumper, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snaplen, link); err != nil {
		return nil, fmt.Errorf("failed to write pcap file header: %w", err)
	}
	if buffer <= 0 {
		buffer = defaultDumpBuffer
	}
	d := &Dumper{frames: make(chan rawFrame, buffer)}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		failed := false
		for f := range d.frames {
			if failed {
				continue
			}
			if err := pw.WritePacket(f.ci, f.data); err != nil {
				log.Printf("Error writing capture dump, dump disabled: %v", err)
				failed = true
			}
		}
	}()
	return d, nil
}

// Enqueue hands a frame to the writer goroutine. The frame is dropped when
// the buffer is full.
func (d *Dumper) Enqueue(ci gopacket.CaptureInfo, data []byte) {
	select {
	case d.frames <- rawFrame{ci: ci, data: data}:
	default:
		if d.dropped.Add(1) == 1 {
			log.Println("Dump buffer is full, dropping frames.")
		}
	}
}

// Dropped returns the number of frames that did not fit in the buffer.
func (d *Dumper) Dropped() uint64 {
	return d.dropped.Load()
}

// Stop writes the queued frames and closes the file. Enqueue must not be
// called afterwards.
func (d *Dumper) Stop() error {
	var err error
	d.once.Do(func() {
		close(d.frames)
		d.wg.Wait()
		if d.closer != nil {
			err = d.closer.Close()
		}
	})
	return err
}
