package codec

import (
	"math/rand"
	"testing"
)

var splits = []struct {
	name string
	m, e uint32
}{
	{"qdelay", QDelayMantissaBits, QDelayExponentBits},
	{"drops", DropsMantissaBits, DropsExponentBits},
}

func TestEncodeDecode_ExactBelowLinearRange(t *testing.T) {
	for _, s := range splits {
		for v := uint32(0); v < 1<<(s.m+1); v++ {
			code, rem := Encode(v, s.m, s.e)
			if rem != 0 {
				t.Fatalf("%s: Encode(%d) remainder = %d, want 0", s.name, v, rem)
			}
			if got := Decode(code, s.m, s.e); got != v {
				t.Fatalf("%s: Decode(Encode(%d)) = %d", s.name, v, got)
			}
		}
	}
}

func TestEncode_MonotonicCoarsening(t *testing.T) {
	for _, s := range splits {
		max := MaxValue(s.m, s.e)
		prev := uint32(0)
		for v := uint32(1) << (s.m + 1); v <= max+16; v++ {
			code, _ := Encode(v, s.m, s.e)
			if code >= 1<<(s.m+s.e) {
				t.Fatalf("%s: Encode(%d) = %d does not fit in %d bits", s.name, v, code, s.m+s.e)
			}
			got := Decode(code, s.m, s.e)
			if got < prev {
				t.Fatalf("%s: Decode(Encode(%d)) = %d, smaller than previous %d", s.name, v, got, prev)
			}
			if got > v {
				t.Fatalf("%s: Decode(Encode(%d)) = %d rounds up", s.name, v, got)
			}
			prev = got
		}
	}
}

func TestEncode_RemainderCompletesValue(t *testing.T) {
	for _, s := range splits {
		max := MaxValue(s.m, s.e)
		for _, v := range []uint32{0, 1, 7, 8, 9, 255, 256, 300, 345, 4097, max - 1, max, max + 1, max * 3} {
			code, rem := Encode(v, s.m, s.e)
			if got := Decode(code, s.m, s.e) + rem; got != v {
				t.Errorf("%s: Decode(code)+remainder for %d = %d", s.name, v, got)
			}
		}
	}
}

func TestEncode_KnownCodes(t *testing.T) {
	tests := []struct {
		v, m, e       uint32
		code, rem     uint32
		decodedResult uint32
	}{
		{344, 7, 4, 300, 0, 344},
		{345, 7, 4, 300, 1, 344},
		{9, 2, 3, 8, 1, 8},
		{448, 2, 3, 31, 0, 448},
		{500, 2, 3, 31, 52, 448},
	}
	for _, tt := range tests {
		code, rem := Encode(tt.v, tt.m, tt.e)
		if code != tt.code || rem != tt.rem {
			t.Errorf("Encode(%d, %d, %d) = (%d, %d), want (%d, %d)", tt.v, tt.m, tt.e, code, rem, tt.code, tt.rem)
		}
		if got := Decode(code, tt.m, tt.e); got != tt.decodedResult {
			t.Errorf("Decode(%d, %d, %d) = %d, want %d", code, tt.m, tt.e, got, tt.decodedResult)
		}
	}
}

func TestEncode_RemainderCarryConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, s := range splits {
		var counter, total, reported uint64
		for i := 0; i < 100000; i++ {
			inc := uint64(rng.Intn(6))
			total += inc
			counter += inc

			code, rem := Encode(uint32(counter), s.m, s.e)
			reported += uint64(Decode(code, s.m, s.e))
			counter = uint64(rem)
		}
		if reported+counter != total {
			t.Fatalf("%s: reported %d + pending %d != total %d", s.name, reported, counter, total)
		}
		step := uint64(1) << ((1 << s.e) - 2)
		if total-reported > step {
			t.Errorf("%s: unreported drift %d exceeds one quantization step %d", s.name, total-reported, step)
		}
	}
}
