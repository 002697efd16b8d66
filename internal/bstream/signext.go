package bstream

// Sign extension for the sub-byte and odd-width fields packed by the tagged
// group encodings. Each helper interprets the low w bits of its argument as a
// two's-complement value of that width.

func signExtend(value uint32, width uint) int32 {
	if value&(1<<(width-1)) != 0 {
		return int32(value | ^uint32(0)<<width)
	}
	return int32(value)
}

func SignExtend2Bit(v uint32) int32  { return signExtend(v, 2) }
func SignExtend4Bit(v uint32) int32  { return signExtend(v, 4) }
func SignExtend5Bit(v uint32) int32  { return signExtend(v, 5) }
func SignExtend6Bit(v uint32) int32  { return signExtend(v, 6) }
func SignExtend7Bit(v uint32) int32  { return signExtend(v, 7) }
func SignExtend8Bit(v uint32) int32  { return signExtend(v, 8) }
func SignExtend14Bit(v uint32) int32 { return signExtend(v, 14) }
func SignExtend16Bit(v uint32) int32 { return signExtend(v, 16) }
func SignExtend24Bit(v uint32) int32 { return signExtend(v, 24) }
