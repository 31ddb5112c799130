package codec

import "math/bits"

// Bit splits used on the testbed path.
const (
	QDelayMantissaBits = 7
	QDelayExponentBits = 4
	DropsMantissaBits  = 2
	DropsExponentBits  = 3
)

// Decode expands a float-encoded value back into an integer.
//
// Codes below 2^(m+1) are returned unchanged. Above that the bits beyond the
// mantissa are a biased exponent and the result is rounded down to the
// power-of-two grid of that exponent.
func Decode(code, mantissaBits, exponentBits uint32) uint32 {
	mMax := uint32(1) << mantissaBits
	code &= (mMax << exponentBits) - 1

	if code < mMax<<1 {
		return code
	}
	return ((code & (mMax - 1)) + mMax) << ((code >> mantissaBits) - 1)
}

// MaxValue is the largest integer Decode can return for the given split.
func MaxValue(mantissaBits, exponentBits uint32) uint32 {
	maxE := (uint32(1) << exponentBits) - 1
	maxM := (uint32(1) << mantissaBits) - 1
	return ((maxM << 1) + 1) << (maxE - 1)
}

// Encode compresses value into mantissaBits+exponentBits bits.
//
// The low-order bits that do not fit are returned as remainder. Callers that
// keep a running counter must carry the remainder into the next Encode so
// that the sum of decoded codes stays exact over time. Values above the
// representable maximum encode to the largest code and the overflow is
// returned as remainder.
func Encode(value, mantissaBits, exponentBits uint32) (code, remainder uint32) {
	if value < uint32(1)<<(mantissaBits+1) {
		return value, 0
	}

	maxFl := MaxValue(mantissaBits, exponentBits)
	if value >= maxFl {
		return (uint32(1) << (mantissaBits + exponentBits)) - 1, value - maxFl
	}

	// position of the leading one
	length := uint32(bits.Len32(value)) - 1

	exponent := length - mantissaBits
	mantissa := (value >> exponent) & ((uint32(1) << mantissaBits) - 1)
	remainder = value & ((uint32(1) << exponent) - 1)

	return ((exponent + 1) << mantissaBits) | mantissa, remainder
}
