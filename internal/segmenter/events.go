package segmenter

import (
	"github.com/google/uuid"

	"fmp4hlsd/internal/models"
)

// InitEvent announces a freshly initialized stream. Fired exactly once
// per stream lifetime, again after an explicit reset and
// reinitialization.
type InitEvent struct {
	Mime     string
	Init     []byte
	Playlist string
}

// InitFunc receives the one-time initialization event.
type InitFunc func(InitEvent)

// SegmentFunc receives each completed segment, in strict sequence order.
type SegmentFunc func(*models.Segment)

// ErrorFunc receives a fatal parse error, reported once.
type ErrorFunc func(error)

type initSub struct {
	id uuid.UUID
	fn InitFunc
}

type segmentSub struct {
	id uuid.UUID
	fn SegmentFunc
}

type errorSub struct {
	id uuid.UUID
	fn ErrorFunc
}

// subscribers delivers events synchronously and in registration order.
// Like the segmenter itself it is single-goroutine territory.
type subscribers struct {
	init    []initSub
	segment []segmentSub
	err     []errorSub
}

// OnInit registers a callback for the initialization event and returns a
// handle for Unsubscribe.
func (s *Segmenter) OnInit(fn InitFunc) uuid.UUID {
	id := uuid.New()
	s.subs.init = append(s.subs.init, initSub{id: id, fn: fn})
	return id
}

// OnSegment registers a callback for completed segments.
func (s *Segmenter) OnSegment(fn SegmentFunc) uuid.UUID {
	id := uuid.New()
	s.subs.segment = append(s.subs.segment, segmentSub{id: id, fn: fn})
	return id
}

// OnError registers a callback for fatal parse errors.
func (s *Segmenter) OnError(fn ErrorFunc) uuid.UUID {
	id := uuid.New()
	s.subs.err = append(s.subs.err, errorSub{id: id, fn: fn})
	return id
}

// Unsubscribe removes the subscription with the given handle, whichever
// event it was registered for.
func (s *Segmenter) Unsubscribe(id uuid.UUID) {
	for i, sub := range s.subs.init {
		if sub.id == id {
			s.subs.init = append(s.subs.init[:i], s.subs.init[i+1:]...)
			return
		}
	}
	for i, sub := range s.subs.segment {
		if sub.id == id {
			s.subs.segment = append(s.subs.segment[:i], s.subs.segment[i+1:]...)
			return
		}
	}
	for i, sub := range s.subs.err {
		if sub.id == id {
			s.subs.err = append(s.subs.err[:i], s.subs.err[i+1:]...)
			return
		}
	}
}

func (s *subscribers) emitInit(ev InitEvent) {
	for _, sub := range s.init {
		sub.fn(ev)
	}
}

func (s *subscribers) emitSegment(seg *models.Segment) {
	for _, sub := range s.segment {
		sub.fn(seg)
	}
}

func (s *subscribers) emitError(err error) {
	for _, sub := range s.err {
		sub.fn(err)
	}
}
