// Package ring keeps the bounded in-memory window of recently completed
// segments together with exact aggregate bookkeeping.
package ring

import "fmp4hlsd/internal/models"

// Ring is an insertion-ordered, capacity-bounded collection of segments.
// Eviction removes the oldest entry; aggregates always equal the exact sum
// over the retained entries plus the initialization segment length.
// It is not safe for concurrent use; the owning stream serializes access.
type Ring struct {
	segments []*models.Segment
	capacity int

	totalDuration   float64
	totalByteLength int
}

// New creates a Ring holding at most capacity segments. initByteLength is
// the initialization segment size included in the byte total.
func New(capacity, initByteLength int) *Ring {
	return &Ring{
		segments:        make([]*models.Segment, 0, capacity),
		capacity:        capacity,
		totalByteLength: initByteLength,
	}
}

// Add inserts a segment, evicting the oldest one when the ring is full.
func (r *Ring) Add(seg *models.Segment) {
	if len(r.segments) >= r.capacity {
		old := r.segments[0]
		r.segments = r.segments[1:]
		r.totalDuration -= old.Duration
		r.totalByteLength -= len(old.Bytes)
	}
	r.segments = append(r.segments, seg)
	r.totalDuration += seg.Duration
	r.totalByteLength += len(seg.Bytes)
}

// Len is the number of retained segments.
func (r *Ring) Len() int {
	return len(r.segments)
}

// Capacity is the configured bound.
func (r *Ring) Capacity() int {
	return r.capacity
}

// TotalDuration is the sum of durations over the retained segments.
func (r *Ring) TotalDuration() float64 {
	return r.totalDuration
}

// TotalByteLength is the byte size of the retained segments plus the
// initialization segment.
func (r *Ring) TotalByteLength() int {
	return r.totalByteLength
}

// Latest returns the most recently added segment, or nil when empty.
func (r *Ring) Latest() *models.Segment {
	if len(r.segments) == 0 {
		return nil
	}
	return r.segments[len(r.segments)-1]
}

// BySequence returns the retained segment with the given sequence number
// via index arithmetic off the head, or nil when it is outside the window.
func (r *Ring) BySequence(sequence int) *models.Segment {
	if len(r.segments) == 0 {
		return nil
	}
	idx := sequence - r.segments[0].Sequence
	if idx < 0 || idx >= len(r.segments) {
		return nil
	}
	return r.segments[idx]
}

// All returns the retained segments oldest first. The returned slice is a
// copy; the segments themselves are shared read-only.
func (r *Ring) All() []*models.Segment {
	out := make([]*models.Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

// Window returns the last n retained segments oldest first, fewer when the
// ring holds fewer.
func (r *Ring) Window(n int) []*models.Segment {
	if n > len(r.segments) {
		n = len(r.segments)
	}
	out := make([]*models.Segment, n)
	copy(out, r.segments[len(r.segments)-n:])
	return out
}
