package codec

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"time"
)

// Layout of the 16-bit telemetry field carried in the IPv4 identification
// field: queueing delay in the low 11 bits, drops in the high 5 bits.
const (
	QDelayMask  = 0x7FF
	DropsShift  = 11
	QDelayShift = 15 // ns >> 15 gives units of 32.768 us

	// QSLimit is the number of distinct queueing-delay codes, and therefore
	// the number of histogram buckets.
	QSLimit = 1 << DropsShift

	linearDelayMax = QSLimit - 1
	linearDropsMax = (1 << (16 - DropsShift)) - 1

	// A remainder above this is reported as encoding drift.
	driftThreshold = 10
)

// Format selects the wire encoding. The two formats are not compatible, the
// packer and the decoder must agree.
type Format int

const (
	// FormatFloat encodes delay with a 7/4 and drops with a 2/3 float split.
	FormatFloat Format = iota
	// FormatLinear clamps delay to 2047 and drops to 31 with no exponent.
	FormatLinear
)

// ParseFormat maps a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "float":
		return FormatFloat, nil
	case "linear":
		return FormatLinear, nil
	default:
		return 0, fmt.Errorf("unknown wire format '%s'", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatFloat:
		return "float"
	case FormatLinear:
		return "linear"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

func (f Format) encodeDelay(units uint32) (code, remainder uint32) {
	if f == FormatLinear {
		if units > linearDelayMax {
			return linearDelayMax, units - linearDelayMax
		}
		return units, 0
	}
	return Encode(units, QDelayMantissaBits, QDelayExponentBits)
}

func (f Format) encodeDrops(count uint32) (code, remainder uint32) {
	if f == FormatLinear {
		if count > linearDropsMax {
			return linearDropsMax, count - linearDropsMax
		}
		return count, 0
	}
	return Encode(count, DropsMantissaBits, DropsExponentBits)
}

// DecodeDrops expands the 5-bit drop code.
func (f Format) DecodeDrops(code uint32) uint32 {
	if f == FormatLinear {
		return code & linearDropsMax
	}
	return Decode(code, DropsMantissaBits, DropsExponentBits)
}

// DecodeDelay converts a queueing-delay code into microseconds. The kernel
// divides by 1024 instead of 1000 when shifting, the 1.024 factor undoes that.
func (f Format) DecodeDelay(code uint32) uint32 {
	units := code & QDelayMask
	if f == FormatFloat {
		units = Decode(units, QDelayMantissaBits, QDelayExponentBits)
	}
	return uint32(float64(units) * 32 * 1.024)
}

// Unpack splits a telemetry field into the raw delay code and the decoded
// drop count. The delay code is left encoded so it can index a histogram.
func (f Format) Unpack(id uint16) (qdelayCode uint16, drops uint32) {
	return id & QDelayMask, f.DecodeDrops(uint32(id >> DropsShift))
}

// DelayTable maps every delay code to microseconds. It is filled once and
// only read afterwards.
type DelayTable [QSLimit]uint32

// NewDelayTable decodes every possible delay code for the given format.
func NewDelayTable(f Format) *DelayTable {
	var t DelayTable
	for i := range t {
		t[i] = f.DecodeDelay(uint32(i))
	}
	return &t
}

// DropCounters holds the drops not yet reported, one counter per queue.
type DropCounters struct {
	ECN    uint32
	NonECN uint32
}

// Packer is the encoding side of the telemetry channel. It mirrors what the
// patched scheduler does at dequeue time.
type Packer struct {
	format Format
	drops  DropCounters
}

// NewPacker returns a Packer for the given format.
func NewPacker(f Format) *Packer {
	return &Packer{format: f}
}

// Pending returns the drops that have not yet been reported.
func (p *Packer) Pending() DropCounters {
	return p.drops
}

// RecordDrop counts a dropped packet against the queue its TOS selects.
// ECT(0), ECT(1) and CE drops all count against the ECN queue.
func (p *Packer) RecordDrop(tos uint8) {
	if tos&3 != 0 {
		p.drops.ECN++
	} else {
		p.drops.NonECN++
	}
}

// Pack builds the telemetry field for a packet leaving the queue after
// qdelay, and consumes the reported part of the drop counter for its class.
func (p *Packer) Pack(qdelay time.Duration, tos uint8) uint16 {
	var units uint32
	if qdelay > 0 {
		u := uint64(qdelay.Nanoseconds()) >> QDelayShift
		if u > math.MaxUint32 {
			u = math.MaxUint32
		}
		units = uint32(u)
	}

	delayCode, delayRem := p.format.encodeDelay(units)
	if delayRem > driftThreshold {
		log.Printf("Warning: high (>%d) queue delay remainder: %d", driftThreshold, delayRem)
	}

	counter, queue := &p.drops.NonECN, "nonecn"
	if tos&3 != 0 {
		counter, queue = &p.drops.ECN, "ecn"
	}
	dropCode, dropRem := p.format.encodeDrops(*counter)
	if dropRem > driftThreshold {
		log.Printf("Warning: high (>%d) drops %s remainder: %d", driftThreshold, queue, dropRem)
	}
	*counter = dropRem

	return uint16(delayCode) | uint16(dropCode)<<DropsShift
}

// Stamp writes the telemetry field into an IPv4 header in place and patches
// the header checksum incrementally.
func (p *Packer) Stamp(hdr []byte, qdelay time.Duration) error {
	if len(hdr) < 20 || hdr[0]>>4 != 4 {
		return fmt.Errorf("not an IPv4 header (%d bytes)", len(hdr))
	}
	oldID := binary.BigEndian.Uint16(hdr[4:6])
	newID := p.Pack(qdelay, hdr[1])
	check := binary.BigEndian.Uint16(hdr[10:12])

	binary.BigEndian.PutUint16(hdr[4:6], newID)
	binary.BigEndian.PutUint16(hdr[10:12], UpdateChecksum(check, oldID, newID))
	return nil
}

// UpdateChecksum adjusts an internet checksum for one 16-bit word changing
// from oldWord to newWord (RFC 1624, eqn. 3).
func UpdateChecksum(check, oldWord, newWord uint16) uint16 {
	sum := uint32(^check) + uint32(^oldWord) + uint32(newWord)
	sum = (sum & 0xffff) + (sum >> 16)
	sum = (sum & 0xffff) + (sum >> 16)
	return ^uint16(sum)
}
