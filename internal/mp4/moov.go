package mp4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
)

// Codec selects the keyframe detector installed for a stream.
type Codec int

const (
	// CodecNone means no video track was found; every segment counts as a
	// keyframe.
	CodecNone Codec = iota
	CodecAVC
	CodecHEVC
)

// InitInfo is the metadata extracted from a fully assembled ftyp+moov
// buffer.
type InitInfo struct {
	Timescale  uint32
	VideoCodec string
	AudioCodec string
	Mime       string
	Codec      Codec
}

// ParseInit extracts timescale, codec strings and mime from the
// concatenated ftyp+moov bytes. A missing audio descriptor layout degrades
// to no audio codec; a moov with neither codec is a CodecMissingError.
func ParseInit(init []byte) (*InitInfo, error) {
	info := &InitInfo{
		Timescale: parseTimescale(init),
	}

	if codec, ok := parseAVC(init); ok {
		info.VideoCodec = codec
		info.Codec = CodecAVC
	} else if codec, ok := parseHEVC(init); ok {
		info.VideoCodec = codec
		info.Codec = CodecHEVC
	}

	if codec, ok := parseAudio(init); ok {
		info.AudioCodec = codec
	}

	if info.VideoCodec == "" && info.AudioCodec == "" {
		return nil, &CodecMissingError{}
	}

	primary := "video"
	if info.VideoCodec == "" {
		primary = "audio"
	}
	codecs := make([]string, 0, 2)
	if info.VideoCodec != "" {
		codecs = append(codecs, info.VideoCodec)
	}
	if info.AudioCodec != "" {
		codecs = append(codecs, info.AudioCodec)
	}
	info.Mime = fmt.Sprintf("%s/mp4; codecs=\"%s\"", primary, strings.Join(codecs, ", "))

	return info, nil
}

// parseTimescale reads the track timescale from the mdhd box. Version 0
// keeps 32-bit times, so the timescale sits at offset 16 from the tag;
// version 1 widens the duration fields to 64 bits, pushing it to 24.
func parseTimescale(b []byte) uint32 {
	i := bytes.Index(b, tagMdhd)
	if i == -1 {
		return 0
	}
	off := i + 16
	if len(b) > i+4 && b[i+4] == 1 {
		off = i + 24
	}
	if len(b) < off+4 {
		return 0
	}
	return binary.BigEndian.Uint32(b[off : off+4])
}

// parseAVC builds the AVC codec string from the avcC configuration box:
// profile, constraint and level bytes at fixed offsets past the tag,
// uppercase hex, prefixed by whichever avc1..avc4 sample entry is present.
func parseAVC(b []byte) (string, bool) {
	i := bytes.Index(b, tagAvcC)
	if i == -1 || len(b) < i+8 {
		return "", false
	}
	for _, sub := range avcSubtypes {
		if bytes.Contains(b, sub) {
			return fmt.Sprintf("%s.%02X%02X%02X", sub, b[i+5], b[i+6], b[i+7]), true
		}
	}
	return "", false
}

// parseHEVC builds the HEVC codec string from the hvcC configuration box.
// The general_profile_compatibility field is stored in reverse bit order
// relative to the codec-string convention and must be bit-reversed before
// hex encoding.
func parseHEVC(b []byte) (string, bool) {
	i := bytes.Index(b, tagHvcC)
	if i == -1 || len(b) < i+17 {
		return "", false
	}

	var subtype []byte
	switch {
	case bytes.Contains(b, tagHvc1):
		subtype = tagHvc1
	case bytes.Contains(b, tagHev1):
		subtype = tagHev1
	default:
		return "", false
	}

	profileByte := b[i+5]
	profileSpace := [4]string{"", "A", "B", "C"}[profileByte>>6]
	tier := "L"
	if profileByte&0x20 != 0 {
		tier = "H"
	}
	profileIdc := profileByte & 0x1f

	compat := bits.Reverse32(binary.BigEndian.Uint32(b[i+6 : i+10]))

	constraint := b[i+10 : i+16]
	end := len(constraint)
	for end > 0 && constraint[end-1] == 0 {
		end--
	}
	levelIdc := b[i+16]

	s := fmt.Sprintf("%s.%s%d.%x.%s%d", subtype, profileSpace, profileIdc, compat, tier, levelIdc)
	if end > 0 {
		s += fmt.Sprintf(".%x", constraint[:end])
	}
	return s, true
}

// parseAudio builds the AAC codec string from the esds descriptor chain
// following the mp4a sample entry. The descriptor tags 0x03, 0x04 and 0x05
// are expected at fixed offsets, which holds for the 4-byte expandable
// length encoding this stream layout uses; any other layout silently
// yields no audio codec.
func parseAudio(b []byte) (string, bool) {
	m := bytes.Index(b, tagMp4a)
	if m == -1 {
		return "", false
	}
	rel := bytes.Index(b[m:], tagEsds)
	if rel == -1 {
		return "", false
	}
	e := m + rel
	if len(b) < e+40 {
		return "", false
	}
	if b[e+8] != 0x03 || b[e+16] != 0x04 || b[e+34] != 0x05 {
		return "", false
	}
	objectType := b[e+21]
	audioObjectType := (b[e+39] & 0xf8) >> 3
	return fmt.Sprintf("mp4a.%x.%d", objectType, audioObjectType), true
}
