// Package segmenter reconstructs discrete media segments from a
// fragmented MP4 byte stream that arrives split at arbitrary offsets. It
// consumes one chunk per Write call, reassembles ftyp/moov into a
// reusable initialization segment and each moof/mdat pair into a segment
// annotated with duration, timestamp and keyframe flag, and maintains the
// retention ring and playlist text derived from them.
package segmenter

import (
	"bytes"
	"errors"
	"time"

	"fmp4hlsd/internal/config"
	"fmp4hlsd/internal/hls"
	"fmp4hlsd/internal/logger"
	"fmp4hlsd/internal/models"
	"fmp4hlsd/internal/mp4"
	"fmp4hlsd/internal/ring"
)

// ErrResyncExhausted is returned when the recovery scan fails to find a
// moof tag within the attempt limit.
var ErrResyncExhausted = errors.New("segmenter: moof resync attempt limit exceeded")

// resyncLimit caps consecutive unsuccessful recovery scans.
const resyncLimit = 50

type state int

const (
	stateSeekFtyp state = iota
	stateSeekMoov
	stateSeekMoof
	stateAccumMoof
	stateSeekMdat
	stateAccumMdat
	stateMoofRecovery
	// stateStopped is entered on a benign end-of-stream (mfra box); all
	// further input is ignored.
	stateStopped
)

// Segmenter is a push-driven re-segmenter for one fMP4 stream. It is not
// safe for concurrent use: the caller supplies chunks strictly in stream
// order from a single goroutine. Concurrent streams use separate
// instances.
type Segmenter struct {
	opts config.Options
	log  logger.Logger
	subs subscribers

	state state
	err   error

	ftyp  []byte
	init  *models.InitSegment
	codec mp4.Codec
	ring  *ring.Ring

	// Accumulation for a moof or mdat spanning multiple chunks. accum is a
	// single growable buffer; need is the declared box length.
	accum []byte
	need  int

	// pending carries a sub-header remainder (fewer than 8 bytes) between
	// Write calls while seeking moof/mdat, so a chunk boundary inside a
	// box header does not derail framing.
	pending []byte

	moof []byte

	sequence     int
	allKeyframes bool
	timestamp    int64
	playlist     string
	huntAttempts int
}

// New creates a Segmenter. The options are normalized in place: the
// playlist base is validated, numeric bounds are clamped silently.
func New(opts config.Options, log logger.Logger) (*Segmenter, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Segmenter{
		opts:         opts,
		log:          log,
		state:        stateSeekFtyp,
		allKeyframes: true,
	}, nil
}

// Write consumes exactly one input chunk to completion, including any
// recursive re-entry on leftover bytes, before returning. A non-nil error
// is fatal: the instance stays unusable until Reset. Implements io.Writer
// so an encoder's output can be piped in directly.
func (s *Segmenter) Write(chunk []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if err := s.parse(chunk); err != nil {
		s.err = err
		s.log.Errorf("stream parsing failed: %v", err)
		s.subs.emitError(err)
		return 0, err
	}
	return len(chunk), nil
}

// Reset atomically discards all accumulated state, counters and derived
// metadata and returns the instance to the initial seek-ftyp stage. A
// reset mid-accumulation drops the partial box irrecoverably. Subscribers
// stay registered.
func (s *Segmenter) Reset() {
	s.state = stateSeekFtyp
	s.err = nil
	s.ftyp = nil
	s.init = nil
	s.codec = mp4.CodecNone
	s.ring = nil
	s.accum = nil
	s.need = 0
	s.pending = nil
	s.moof = nil
	s.sequence = 0
	s.allKeyframes = true
	s.timestamp = 0
	s.playlist = ""
	s.huntAttempts = 0
}

func (s *Segmenter) parse(chunk []byte) error {
	if len(s.pending) > 0 {
		chunk = append(s.pending, chunk...)
		s.pending = nil
	}
	switch s.state {
	case stateSeekFtyp:
		return s.seekFtyp(chunk)
	case stateSeekMoov:
		return s.seekMoov(chunk)
	case stateSeekMoof:
		return s.seekMoof(chunk)
	case stateAccumMoof:
		return s.accumMoof(chunk)
	case stateSeekMdat:
		return s.seekMdat(chunk)
	case stateAccumMdat:
		return s.accumMdat(chunk)
	case stateMoofRecovery:
		return s.moofRecovery(chunk)
	case stateStopped:
		return nil
	}
	return nil
}

func (s *Segmenter) seekFtyp(chunk []byte) error {
	length, err := mp4.ReadBox(chunk, mp4.TagFtyp)
	if err != nil {
		return err
	}
	n := int(length)
	if n > len(chunk) {
		// ftyp is expected to fit its first chunk; a declared length
		// beyond it means the stream framing is broken.
		return &mp4.StructuralError{Expected: "ftyp", Reason: "box length exceeds chunk"}
	}
	s.ftyp = append([]byte(nil), chunk[:n]...)
	s.state = stateSeekMoov
	if n < len(chunk) {
		return s.seekMoov(chunk[n:])
	}
	return nil
}

func (s *Segmenter) seekMoov(chunk []byte) error {
	length, err := mp4.ReadBox(chunk, mp4.TagMoov)
	if err != nil {
		return err
	}
	n := int(length)
	if n > len(chunk) {
		return &mp4.StructuralError{Expected: "moov", Reason: "box length exceeds chunk"}
	}
	if err := s.initialize(chunk[:n]); err != nil {
		return err
	}
	if n < len(chunk) {
		return s.seekMoof(chunk[n:])
	}
	return nil
}

// initialize assembles the initialization segment from the buffered ftyp
// and the completed moov, extracts codec metadata and announces the
// stream.
func (s *Segmenter) initialize(moov []byte) error {
	init := make([]byte, 0, len(s.ftyp)+len(moov))
	init = append(init, s.ftyp...)
	init = append(init, moov...)
	s.ftyp = nil

	info, err := mp4.ParseInit(init)
	if err != nil {
		return err
	}
	s.init = &models.InitSegment{
		Bytes:      init,
		Timescale:  info.Timescale,
		Mime:       info.Mime,
		VideoCodec: info.VideoCodec,
		AudioCodec: info.AudioCodec,
	}
	s.codec = info.Codec
	s.ring = ring.New(s.opts.RingCapacity(), len(init))
	s.sequence = 0
	s.allKeyframes = true
	s.timestamp = time.Now().UnixMilli()
	if s.opts.PlaylistMode() && s.opts.PlaylistInit() {
		s.playlist = hls.GenerateInitPlaylist(s.opts.HLSPlaylistBase)
	}
	s.state = stateSeekMoof

	s.log.Infof("stream initialized: mime=%s timescale=%d", info.Mime, info.Timescale)
	s.subs.emitInit(InitEvent{Mime: info.Mime, Init: init, Playlist: s.playlist})
	return nil
}

func (s *Segmenter) seekMoof(chunk []byte) error {
	if len(chunk) < 8 {
		s.pending = append([]byte(nil), chunk...)
		return nil
	}
	length, err := mp4.ReadBox(chunk, mp4.TagMoof)
	if err != nil {
		if bytes.Contains(chunk, mp4.TagMfra) {
			// mfra marks a clean end of the fragmented stream.
			s.log.Debugf("mfra found, stream ended")
			s.state = stateStopped
			return nil
		}
		s.log.Warnf("expected moof not found, entering recovery scan")
		s.state = stateMoofRecovery
		return s.moofRecovery(chunk)
	}
	n := int(length)
	if n > len(chunk) {
		s.need = n
		s.accum = append(s.accum[:0], chunk...)
		s.state = stateAccumMoof
		return nil
	}
	s.moof = append([]byte(nil), chunk[:n]...)
	s.state = stateSeekMdat
	if n < len(chunk) {
		return s.seekMdat(chunk[n:])
	}
	return nil
}

func (s *Segmenter) accumMoof(chunk []byte) error {
	s.accum = append(s.accum, chunk...)
	if len(s.accum) < s.need {
		return nil
	}
	s.moof = append([]byte(nil), s.accum[:s.need]...)
	rest := append([]byte(nil), s.accum[s.need:]...)
	s.accum = s.accum[:0]
	s.need = 0
	s.state = stateSeekMdat
	if len(rest) > 0 {
		return s.seekMdat(rest)
	}
	return nil
}

func (s *Segmenter) seekMdat(chunk []byte) error {
	if len(chunk) < 8 {
		s.pending = append([]byte(nil), chunk...)
		return nil
	}
	length, err := mp4.ReadBox(chunk, mp4.TagMdat)
	if err != nil {
		return err
	}
	n := int(length)
	if n > len(chunk) {
		s.need = n
		s.accum = append(s.accum[:0], chunk...)
		s.state = stateAccumMdat
		return nil
	}
	if err := s.completeSegment(chunk[:n]); err != nil {
		return err
	}
	if n < len(chunk) {
		return s.seekMoof(chunk[n:])
	}
	return nil
}

func (s *Segmenter) accumMdat(chunk []byte) error {
	s.accum = append(s.accum, chunk...)
	if len(s.accum) < s.need {
		return nil
	}
	mdat := s.accum[:s.need]
	rest := append([]byte(nil), s.accum[s.need:]...)
	if err := s.completeSegment(mdat); err != nil {
		return err
	}
	s.accum = s.accum[:0]
	s.need = 0
	if len(rest) > 0 {
		return s.seekMoof(rest)
	}
	return nil
}

// completeSegment joins the buffered moof with the completed mdat,
// derives timing and keyframe metadata, pushes the segment into the
// retention ring and regenerates the playlist.
func (s *Segmenter) completeSegment(mdat []byte) error {
	data := make([]byte, 0, len(s.moof)+len(mdat))
	data = append(data, s.moof...)
	data = append(data, mdat...)

	now := time.Now().UnixMilli()
	duration, ok := mp4.Duration(s.moof, s.init.Timescale)
	if !ok {
		duration = float64(now-s.timestamp) / 1000.0
	}
	keyframe := mp4.Keyframe(data, len(s.moof), s.codec)
	if !keyframe {
		s.allKeyframes = false
	}

	seg := &models.Segment{
		Bytes:     data,
		Sequence:  s.sequence,
		Duration:  duration,
		Timestamp: now,
		Keyframe:  keyframe,
	}
	s.sequence++
	s.timestamp = now
	s.moof = nil
	s.ring.Add(seg)
	if s.opts.PlaylistMode() {
		s.playlist = hls.GenerateMediaPlaylist(s.opts.HLSPlaylistBase, s.ring.Window(s.opts.HLSPlaylistSize))
	}
	s.state = stateSeekMoof

	s.log.Debugf("segment %d complete: %d bytes, %.6fs, keyframe=%t", seg.Sequence, len(seg.Bytes), seg.Duration, seg.Keyframe)
	s.subs.emitSegment(seg)
	return nil
}

// moofRecovery scans the chunk for a moof tag after a framing hiccup. A
// tag at index >= 4 with trailing room resumes normal seeking at the
// presumed length-prefix position; repeated failures up to the limit are
// fatal.
func (s *Segmenter) moofRecovery(chunk []byte) error {
	s.huntAttempts++
	if s.huntAttempts > resyncLimit {
		return ErrResyncExhausted
	}
	idx := bytes.Index(chunk, mp4.TagMoof)
	if idx >= 4 && len(chunk) > idx+4 {
		s.log.Infof("resynced on moof tag after %d scan(s)", s.huntAttempts)
		s.huntAttempts = 0
		s.state = stateSeekMoof
		return s.seekMoof(chunk[idx-4:])
	}
	return nil
}
