package mp4

import (
	"bytes"
	"encoding/binary"
)

// trun/tfhd flag bits relevant to timing extraction.
const (
	trunDataOffsetPresent       = 0x000001
	trunFirstSampleFlagsPresent = 0x000004
	trunSampleDurationPresent   = 0x000100
	trunSampleSizePresent       = 0x000200
	trunSampleFlagsPresent      = 0x000400
	trunSampleCompOffsetPresent = 0x000800

	tfhdBaseDataOffsetPresent  = 0x000001
	tfhdSampleDescIndexPresent = 0x000002
	tfhdDefaultDurationPresent = 0x000008
)

// Duration computes the segment duration in seconds from the moof bytes.
// Preferred source is the trun per-sample duration list; the tfhd default
// sample duration multiplied by the trun sample count is the fallback.
// ok is false when neither is usable, including a zero timescale.
func Duration(moof []byte, timescale uint32) (float64, bool) {
	if timescale == 0 {
		return 0, false
	}

	t := bytes.Index(moof, tagTrun)
	if t == -1 || len(moof) < t+12 {
		return 0, false
	}
	trunFlags := binary.BigEndian.Uint32(moof[t+4 : t+8])
	sampleCount := binary.BigEndian.Uint32(moof[t+8 : t+12])

	if trunFlags&trunSampleDurationPresent != 0 {
		off := t + 12
		if trunFlags&trunDataOffsetPresent != 0 {
			off += 4
		}
		if trunFlags&trunFirstSampleFlagsPresent != 0 {
			off += 4
		}
		// Stride across one sample record: the duration field plus any
		// optional per-sample fields that follow it.
		stride := 4
		if trunFlags&trunSampleSizePresent != 0 {
			stride += 4
		}
		if trunFlags&trunSampleFlagsPresent != 0 {
			stride += 4
		}
		if trunFlags&trunSampleCompOffsetPresent != 0 {
			stride += 4
		}
		var total uint64
		for i := uint32(0); i < sampleCount; i++ {
			if len(moof) < off+4 {
				return 0, false
			}
			total += uint64(binary.BigEndian.Uint32(moof[off : off+4]))
			off += stride
		}
		return float64(total) / float64(timescale), true
	}

	f := bytes.Index(moof, tagTfhd)
	if f == -1 || len(moof) < f+8 {
		return 0, false
	}
	tfhdFlags := binary.BigEndian.Uint32(moof[f+4 : f+8])
	if tfhdFlags&tfhdDefaultDurationPresent == 0 {
		return 0, false
	}
	off := f + 12
	if tfhdFlags&tfhdBaseDataOffsetPresent != 0 {
		off += 8
	}
	if tfhdFlags&tfhdSampleDescIndexPresent != 0 {
		off += 4
	}
	if len(moof) < off+4 {
		return 0, false
	}
	defaultDuration := binary.BigEndian.Uint32(moof[off : off+4])
	return float64(uint64(defaultDuration)*uint64(sampleCount)) / float64(timescale), true
}
