// Package testutil builds synthetic fragmented MP4 byte streams for
// tests. The boxes carry just enough structure for the parser's fixed
// offsets; they are not playable media.
package testutil

import "encoding/binary"

// Box wraps payload parts into a length-prefixed, tagged box.
func Box(tag string, parts ...[]byte) []byte {
	size := 8
	for _, p := range parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(size))
	out = append(out, tag...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func u32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// Ftyp returns a minimal ftyp box.
func Ftyp() []byte {
	return Box("ftyp", []byte("iso5"), u32(512), []byte("iso6mp41"))
}

// Mdhd returns a version-0 mdhd box with the given timescale.
func Mdhd(timescale uint32) []byte {
	return Box("mdhd",
		u32(0),         // version 0, flags
		u32(0),         // creation
		u32(0),         // modification
		u32(timescale), // timescale
		u32(0),         // duration
		u32(0x55c40000),
	)
}

// AvcC returns an avcC box with the given profile, constraint and level
// bytes at the configuration offsets.
func AvcC(profile, constraint, level byte) []byte {
	return Box("avcC",
		[]byte{1, profile, constraint, level, 0xff, 0xe1, 0, 0},
	)
}

// Avc1 returns an avc1 sample entry wrapping the given avcC box.
func Avc1(avcc []byte) []byte {
	header := make([]byte, 78)
	return Box("avc1", header, avcc)
}

// HvcC returns an hvcC box carrying the general profile byte, the
// profile compatibility word (stored bit-reversed relative to the codec
// string), six constraint bytes and the level.
func HvcC(profileByte byte, compat uint32, constraint [6]byte, level byte) []byte {
	payload := []byte{1, profileByte}
	payload = binary.BigEndian.AppendUint32(payload, compat)
	payload = append(payload, constraint[:]...)
	payload = append(payload, level)
	return Box("hvcC", payload)
}

// Hvc1 returns an hvc1 sample entry wrapping the given hvcC box.
func Hvc1(hvcc []byte) []byte {
	header := make([]byte, 78)
	return Box("hvc1", header, hvcc)
}

// EsdsAAC returns an mp4a sample entry with an esds whose descriptor tags
// sit at the fixed offsets the extractor expects. objectType is the
// DecoderConfigDescriptor object type (0x40 for AAC); aot is the 5-bit
// audio object type.
func EsdsAAC(objectType byte, aot byte) []byte {
	esdsPayload := []byte{
		0, 0, 0, 0, // version, flags
		0x03, 0x80, 0x80, 0x80, 0x22, // ES descriptor
		0, 1, 0, // ES_ID, stream priority
		0x04, 0x80, 0x80, 0x80, 0x14, // DecoderConfig descriptor
		objectType,
		0x15,          // streamType
		0, 0, 0,       // bufferSizeDB
		0, 1, 0xf4, 0, // maxBitrate
		0, 1, 0xf4, 0, // avgBitrate
		0x05, 0x80, 0x80, 0x80, 0x02, // DecoderSpecificInfo
		aot<<3 | 0x01, 0x90, // AudioSpecificConfig
	}
	esds := Box("esds", esdsPayload)
	header := make([]byte, 28)
	return Box("mp4a", header, esds)
}

// Moov assembles a moov box from the given child boxes.
func Moov(children ...[]byte) []byte {
	return Box("moov", children...)
}

// MoovAVC is the standard video+audio moov used across tests: 90kHz
// timescale, avc1.64001F video, mp4a.40.2 audio.
func MoovAVC() []byte {
	return Moov(
		Mdhd(90000),
		Avc1(AvcC(0x64, 0x00, 0x1f)),
		EsdsAAC(0x40, 2),
	)
}

// TrunMoof returns a moof box with a trun carrying per-sample durations
// (flags: data-offset + sample-duration present).
func TrunMoof(sequence uint32, sampleDurations []uint32) []byte {
	mfhd := Box("mfhd", u32(0), u32(sequence))
	tfhd := Box("tfhd", u32(0), u32(1))
	trunParts := [][]byte{
		u32(0x000101), // version 0, data-offset + sample-duration present
		u32(uint32(len(sampleDurations))),
		u32(0), // data offset
	}
	for _, d := range sampleDurations {
		trunParts = append(trunParts, u32(d))
	}
	trun := Box("trun", trunParts...)
	traf := Box("traf", tfhd, trun)
	return Box("moof", mfhd, traf)
}

// TfhdMoof returns a moof whose trun has no per-sample durations; the
// duration comes from the tfhd default-sample-duration instead.
func TfhdMoof(sequence, sampleCount, defaultDuration uint32) []byte {
	mfhd := Box("mfhd", u32(0), u32(sequence))
	tfhd := Box("tfhd",
		u32(0x000008), // default-sample-duration present
		u32(1),        // track ID
		u32(defaultDuration),
	)
	trun := Box("trun",
		u32(0x000001), // data-offset present only
		u32(sampleCount),
		u32(0),
	)
	traf := Box("traf", tfhd, trun)
	return Box("moof", mfhd, traf)
}

// Mdat wraps length-prefixed NAL units into an mdat box.
func Mdat(nals ...[]byte) []byte {
	parts := make([][]byte, 0, len(nals))
	for _, nal := range nals {
		parts = append(parts, u32(uint32(len(nal))), nal)
	}
	return Box("mdat", parts...)
}

// NAL returns an n-byte NAL unit starting with the given header byte.
func NAL(header byte, n int) []byte {
	nal := make([]byte, n)
	nal[0] = header
	return nal
}

// Fragment returns one moof+mdat pair with 3 samples of 30000 ticks each
// (1 second at the MoovAVC timescale). keyframe controls the first NAL
// header byte: 0x65 (IDR) or 0x41 (non-IDR slice).
func Fragment(sequence uint32, keyframe bool) []byte {
	header := byte(0x41)
	if keyframe {
		header = 0x65
	}
	moof := TrunMoof(sequence, []uint32{30000, 30000, 30000})
	mdat := Mdat(NAL(header, 32), NAL(0x41, 24))
	return append(moof, mdat...)
}

// Stream concatenates an initialization segment with n fragments, the
// first one a keyframe.
func Stream(n int) []byte {
	out := append([]byte{}, Ftyp()...)
	out = append(out, MoovAVC()...)
	for i := 0; i < n; i++ {
		out = append(out, Fragment(uint32(i+1), i == 0)...)
	}
	return out
}
