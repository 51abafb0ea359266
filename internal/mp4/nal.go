package mp4

import "encoding/binary"

// Keyframe scans the mdat payload of a completed moof+mdat segment for a
// random access point. Access units are prefixed with a 4-byte big-endian
// NAL length; the scan starts 8 bytes past the moof, skipping the mdat
// header of the default-base-moof layout. Streams without a video codec
// treat every segment as a keyframe.
func Keyframe(segment []byte, moofLen int, codec Codec) bool {
	if codec == CodecNone {
		return true
	}
	i := moofLen + 8
	for i+5 <= len(segment) {
		nalLen := binary.BigEndian.Uint32(segment[i : i+4])
		if nalLen == 0 {
			break
		}
		b := segment[i+4]
		switch codec {
		case CodecAVC:
			// NAL type 5 is an IDR slice.
			if b&0x1f == 5 {
				return true
			}
		case CodecHEVC:
			// Types 16..21 are IRAP pictures (BLA, IDR, CRA).
			if t := (b >> 1) & 0x3f; t >= 16 && t <= 21 {
				return true
			}
		}
		i += 4 + int(nalLen)
	}
	return false
}
