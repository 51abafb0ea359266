// Package mp4 contains the hand-rolled ISO base media parsing the
// segmenter relies on: box scanning, moov codec extraction, fragment
// timing and keyframe detection. It parses only what segment cutting
// needs and is not a general container library.
package mp4

import (
	"encoding/binary"
	"fmt"
)

// Well-known box tags. Comparisons are done on the raw 4 bytes following
// the big-endian length prefix.
var (
	TagFtyp = []byte("ftyp")
	TagMoov = []byte("moov")
	TagMoof = []byte("moof")
	TagMdat = []byte("mdat")
	TagMfra = []byte("mfra")

	tagMdhd = []byte("mdhd")
	tagAvcC = []byte("avcC")
	tagHvcC = []byte("hvcC")
	tagHvc1 = []byte("hvc1")
	tagHev1 = []byte("hev1")
	tagMp4a = []byte("mp4a")
	tagEsds = []byte("esds")
	tagTrun = []byte("trun")
	tagTfhd = []byte("tfhd")

	avcSubtypes = [][]byte{[]byte("avc1"), []byte("avc2"), []byte("avc3"), []byte("avc4")}
)

// StructuralError reports a violated box tag or length invariant. It is
// fatal for the current parse attempt; the owning segmenter stays unusable
// until an explicit reset.
type StructuralError struct {
	Expected string
	Reason   string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("mp4: bad %s box: %s", e.Expected, e.Reason)
}

// CodecMissingError reports a moov box that contains neither a
// recognizable video nor audio codec.
type CodecMissingError struct{}

func (e *CodecMissingError) Error() string {
	return "mp4: moov contains neither video nor audio codec configuration"
}

// ReadBox verifies that buf starts with a box carrying the expected tag at
// bytes [4,8) and returns the declared box length from bytes [0,4). It has
// no side effects; the payload is buf[8:length] when length fits the buffer.
func ReadBox(buf []byte, tag []byte) (uint32, error) {
	if len(buf) < 8 {
		return 0, &StructuralError{Expected: string(tag), Reason: fmt.Sprintf("chunk of %d bytes is too short for a box header", len(buf))}
	}
	if string(buf[4:8]) != string(tag) {
		return 0, &StructuralError{Expected: string(tag), Reason: fmt.Sprintf("found tag %q", buf[4:8])}
	}
	return binary.BigEndian.Uint32(buf[0:4]), nil
}
