// Encoded bitstream inspection.
//
// Callers feeding a decoder from a raw elementary stream often have no
// container metadata telling them whether a payload is a key or delta
// sample. ClassifyChunk answers that from the bitstream itself so chunks
// can be labeled correctly before Decode.
package webcodecs

// ClassifyChunk inspects an encoded payload and reports whether it is a
// key sample for the given codec family. Audio families always classify
// as key. Payloads too short to carry a header classify as delta.
func ClassifyChunk(family CodecFamily, data []byte) ChunkType {
	switch family {
	case FamilyH264:
		if h264HasIDR(data) {
			return ChunkTypeKey
		}
	case FamilyHEVC:
		if hevcHasIRAP(data) {
			return ChunkTypeKey
		}
	case FamilyVP8:
		if vp8IsKeyFrame(data) {
			return ChunkTypeKey
		}
	case FamilyVP9:
		if vp9IsKeyFrame(data) {
			return ChunkTypeKey
		}
	case FamilyAV1:
		if av1HasKeyFrame(data) {
			return ChunkTypeKey
		}
	default:
		if family.IsAudio() {
			return ChunkTypeKey
		}
	}
	return ChunkTypeDelta
}

// nalUnits walks both Annex B (start-code) and AVCC (length-prefixed)
// framing and calls fn with each NAL unit payload. Walking stops when fn
// returns true.
func nalUnits(data []byte, fn func(nal []byte) bool) {
	// Annex B: scan for 3- or 4-byte start codes.
	if hasStartCode(data) {
		i := 0
		for i+3 < len(data) {
			if data[i] == 0 && data[i+1] == 0 && (data[i+2] == 1 || (data[i+2] == 0 && i+4 <= len(data) && data[i+3] == 1)) {
				start := i + 3
				if data[i+2] == 0 {
					start = i + 4
				}
				end := len(data)
				for j := start; j+3 <= len(data); j++ {
					if data[j] == 0 && data[j+1] == 0 && (data[j+2] == 1 || (j+4 <= len(data) && data[j+2] == 0 && data[j+3] == 1)) {
						end = j
						break
					}
				}
				if start < end && fn(data[start:end]) {
					return
				}
				i = end
				continue
			}
			i++
		}
		return
	}

	// AVCC: 4-byte big-endian length prefixes.
	i := 0
	for i+4 <= len(data) {
		length := int(data[i])<<24 | int(data[i+1])<<16 | int(data[i+2])<<8 | int(data[i+3])
		if length <= 0 || i+4+length > len(data) {
			return
		}
		if fn(data[i+4 : i+4+length]) {
			return
		}
		i += 4 + length
	}
}

func hasStartCode(data []byte) bool {
	if len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return true
	}
	return len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2] == 1
}

// h264HasIDR reports whether the payload carries an IDR slice
// (nal_unit_type 5, ITU-T H.264 Table 7-1).
func h264HasIDR(data []byte) bool {
	found := false
	nalUnits(data, func(nal []byte) bool {
		if len(nal) > 0 && nal[0]&0x1F == 5 {
			found = true
		}
		return found
	})
	return found
}

// hevcHasIRAP reports whether the payload carries an IRAP slice
// (nal_unit_type 16-21, ITU-T H.265 Table 7-1).
func hevcHasIRAP(data []byte) bool {
	found := false
	nalUnits(data, func(nal []byte) bool {
		if len(nal) > 0 {
			t := (nal[0] >> 1) & 0x3F
			if t >= 16 && t <= 21 {
				found = true
			}
		}
		return found
	})
	return found
}

// vp8IsKeyFrame checks the RFC 6386 frame tag: bit 0 of the first byte is
// the frame type (0 = key), and key frames carry the start code
// 0x9D 0x01 0x2A after the 3-byte tag.
func vp8IsKeyFrame(data []byte) bool {
	if len(data) < 6 {
		return false
	}
	if data[0]&0x01 != 0 {
		return false
	}
	return data[3] == 0x9D && data[4] == 0x01 && data[5] == 0x2A
}

// vp9IsKeyFrame parses the start of the VP9 uncompressed header:
// frame_marker (2 bits, always 0b10), profile bits, show_existing_frame,
// then frame_type (0 = key).
func vp9IsKeyFrame(data []byte) bool {
	if len(data) < 1 {
		return false
	}
	b := data[0]
	if (b>>6)&0x03 != 0x02 {
		return false
	}
	profileLow := (b >> 5) & 1
	profileHigh := (b >> 4) & 1
	bit := 3
	if profileLow == 1 && profileHigh == 1 {
		// Profile 3 carries a reserved bit before show_existing_frame.
		bit = 2
	}
	showExisting := (b >> uint(bit)) & 1
	if showExisting == 1 {
		return false
	}
	frameType := (b >> uint(bit-1)) & 1
	return frameType == 0
}

// av1HasKeyFrame walks the OBU sequence (AV1 spec section 5.3) and
// reports whether a sequence header OBU is present; encoders emit one on
// every key frame.
func av1HasKeyFrame(data []byte) bool {
	i := 0
	for i < len(data) {
		b := data[i]
		if (b>>7)&1 != 0 {
			return false
		}
		obuType := (b >> 3) & 0x0F
		if obuType == 1 { // sequence header
			return true
		}
		hasExtension := (b>>2)&1 == 1
		hasSize := (b>>1)&1 == 1
		i++
		if hasExtension {
			i++
		}
		if !hasSize {
			return false
		}
		// leb128 size
		size := 0
		for shift := 0; i < len(data); shift += 7 {
			v := data[i]
			i++
			size |= int(v&0x7F) << uint(shift)
			if v&0x80 == 0 {
				break
			}
		}
		i += size
	}
	return false
}
