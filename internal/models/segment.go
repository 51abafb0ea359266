package models

// Segment is one completed media segment (moof+mdat) cut from the input
// stream. Instances are immutable once constructed and shared read-only
// between the segmenter, the retention ring and the HTTP layer.
type Segment struct {
	// Bytes is the concatenated moof+mdat data.
	Bytes []byte
	// Sequence numbers segments 0,1,2,... with no gaps per stream lifetime.
	Sequence int
	// Duration of the segment in seconds.
	Duration float64
	// Timestamp is the wall-clock completion time in milliseconds since epoch.
	Timestamp int64
	// Keyframe reports whether the segment contains a random access point.
	Keyframe bool
}

// InitSegment is the reusable initialization segment (ftyp+moov) plus the
// metadata derived from it. Created once per stream lifetime.
type InitSegment struct {
	// Bytes is the concatenated ftyp+moov data.
	Bytes []byte
	// Timescale is the track timescale from the mdhd box, units per second.
	Timescale uint32
	// Mime is the full mime string including the codecs parameter.
	Mime string
	// VideoCodec is the RFC 6381 video codec string, empty for audio-only.
	VideoCodec string
	// AudioCodec is the RFC 6381 audio codec string, empty if none detected.
	AudioCodec string
}
