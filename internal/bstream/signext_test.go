package bstream

import "testing"

func TestSignExtendAllWidths(t *testing.T) {
	funcs := map[uint]func(uint32) int32{
		2:  SignExtend2Bit,
		4:  SignExtend4Bit,
		5:  SignExtend5Bit,
		6:  SignExtend6Bit,
		7:  SignExtend7Bit,
		8:  SignExtend8Bit,
		14: SignExtend14Bit,
		16: SignExtend16Bit,
		24: SignExtend24Bit,
	}
	for width, fn := range funcs {
		max := uint32(1) << width
		half := int32(1) << (width - 1)
		for v := uint32(0); v < max; v++ {
			// The reference is the two's-complement reading of the bits.
			want := int32(v)
			if want >= half {
				want -= half * 2
			}
			if got := fn(v); got != want {
				t.Fatalf("signExtend%d(%d) = %d, want %d", width, v, got, want)
			}
			if width >= 14 {
				// Exhaustive checks only pay off for the small widths.
				v += max/16 - 1
			}
		}
	}
}

func TestSignExtendBoundaries(t *testing.T) {
	tests := []struct {
		name string
		got  int32
		want int32
	}{
		{"2bit max positive", SignExtend2Bit(1), 1},
		{"2bit min negative", SignExtend2Bit(2), -2},
		{"4bit -1", SignExtend4Bit(0xF), -1},
		{"8bit -128", SignExtend8Bit(0x80), -128},
		{"14bit -1", SignExtend14Bit(0x3FFF), -1},
		{"14bit min", SignExtend14Bit(0x2000), -8192},
		{"16bit -1", SignExtend16Bit(0xFFFF), -1},
		{"24bit min", SignExtend24Bit(0x800000), -8388608},
		{"24bit max", SignExtend24Bit(0x7FFFFF), 8388607},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}
