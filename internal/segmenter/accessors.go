package segmenter

import "fmp4hlsd/internal/models"

// Initialized reports whether the initialization segment has been parsed.
func (s *Segmenter) Initialized() bool {
	return s.init != nil
}

// InitSegment returns the initialization segment, or nil before
// initialization. Shared read-only.
func (s *Segmenter) InitSegment() *models.InitSegment {
	return s.init
}

// Mime returns the derived mime string, empty before initialization.
func (s *Segmenter) Mime() string {
	if s.init == nil {
		return ""
	}
	return s.init.Mime
}

// Playlist returns the current playlist text, empty outside playlist mode
// or before anything was generated.
func (s *Segmenter) Playlist() string {
	return s.playlist
}

// PlaylistBase returns the configured playlist base name.
func (s *Segmenter) PlaylistBase() string {
	return s.opts.HLSPlaylistBase
}

// Latest returns the most recently completed segment, or nil.
func (s *Segmenter) Latest() *models.Segment {
	if s.ring == nil {
		return nil
	}
	return s.ring.Latest()
}

// Segments returns the currently retained segments, oldest first.
func (s *Segmenter) Segments() []*models.Segment {
	if s.ring == nil {
		return nil
	}
	return s.ring.All()
}

// SegmentBySequence returns the retained segment with the given sequence
// number, or nil when it has been evicted or not yet produced.
func (s *Segmenter) SegmentBySequence(sequence int) *models.Segment {
	if s.ring == nil {
		return nil
	}
	return s.ring.BySequence(sequence)
}

// TotalDuration is the summed duration in seconds of the retained
// segments.
func (s *Segmenter) TotalDuration() float64 {
	if s.ring == nil {
		return 0
	}
	return s.ring.TotalDuration()
}

// TotalByteLength is the byte size of the retained segments plus the
// initialization segment.
func (s *Segmenter) TotalByteLength() int {
	if s.ring == nil {
		return 0
	}
	return s.ring.TotalByteLength()
}

// AllKeyframes reports whether every completed segment so far carried a
// keyframe. Once false it stays false for the stream lifetime.
func (s *Segmenter) AllKeyframes() bool {
	return s.allKeyframes
}
