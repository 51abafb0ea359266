// Package stream owns the per-stream segmenter instances and serializes
// access to them: the segmenter itself is single-goroutine by contract,
// so the Stream wrapper provides the locking the HTTP layer needs.
package stream

import (
	"fmt"
	"io"
	"sync"

	"fmp4hlsd/internal/config"
	"fmp4hlsd/internal/logger"
	"fmp4hlsd/internal/metrics"
	"fmp4hlsd/internal/models"
	"fmp4hlsd/internal/segmenter"
)

// ingestChunkSize is the read size used when draining an ingest body. The
// segmenter accepts chunks split at arbitrary offsets, so the size only
// affects call frequency.
const ingestChunkSize = 32 * 1024

// EventSink receives stream lifecycle events, typically for fan-out to
// websocket observers.
type EventSink interface {
	StreamInitialized(stream, mime string)
	SegmentComplete(stream string, seg *models.Segment)
}

// Stream couples one named ingest point with its segmenter.
type Stream struct {
	Name string

	mu  sync.RWMutex
	seg *segmenter.Segmenter
	log logger.Logger

	ingesting bool
}

func newStream(name string, opts config.Options, log logger.Logger) (*Stream, error) {
	seg, err := segmenter.New(opts, log)
	if err != nil {
		return nil, err
	}
	st := &Stream{Name: name, seg: seg, log: log}

	seg.OnSegment(func(s *models.Segment) {
		metrics.SegmentsTotal.WithLabelValues(name).Inc()
		metrics.SegmentDuration.Observe(s.Duration)
		metrics.RetainedBytes.WithLabelValues(name).Set(float64(seg.TotalByteLength()))
	})
	seg.OnError(func(error) {
		metrics.ParseErrorsTotal.WithLabelValues(name).Inc()
	})

	return st, nil
}

// Ingest drains r into the segmenter chunk by chunk. Only one ingest may
// run at a time per stream; a second concurrent attempt fails fast. A
// parse error aborts the ingest and is returned; the stream then needs a
// Reset before it accepts input again.
func (st *Stream) Ingest(r io.Reader) error {
	st.mu.Lock()
	if st.ingesting {
		st.mu.Unlock()
		return fmt.Errorf("stream %q already has an active ingest", st.Name)
	}
	st.ingesting = true
	st.mu.Unlock()

	metrics.ActiveIngests.Inc()
	defer func() {
		metrics.ActiveIngests.Dec()
		st.mu.Lock()
		st.ingesting = false
		st.mu.Unlock()
	}()

	buf := make([]byte, ingestChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			metrics.BytesIngestedTotal.WithLabelValues(st.Name).Add(float64(n))
			st.mu.Lock()
			_, werr := st.seg.Write(buf[:n])
			st.mu.Unlock()
			if werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading ingest body: %w", err)
		}
	}
}

// Reset discards all parser state so a fresh producer connection can
// start over.
func (st *Stream) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seg.Reset()
	metrics.RetainedBytes.WithLabelValues(st.Name).Set(0)
}

// Mime returns the stream mime string, empty before initialization.
func (st *Stream) Mime() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.seg.Mime()
}

// InitSegment returns the initialization segment, or nil.
func (st *Stream) InitSegment() *models.InitSegment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.seg.InitSegment()
}

// Playlist returns the current playlist text.
func (st *Stream) Playlist() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.seg.Playlist()
}

// PlaylistBase returns the configured playlist base name.
func (st *Stream) PlaylistBase() string {
	return st.seg.PlaylistBase()
}

// SegmentBySequence returns the retained segment with the given sequence
// number, or nil.
func (st *Stream) SegmentBySequence(seq int) *models.Segment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.seg.SegmentBySequence(seq)
}

// Latest returns the most recent segment, or nil.
func (st *Stream) Latest() *models.Segment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.seg.Latest()
}

// Segments returns the retained segments, oldest first.
func (st *Stream) Segments() []*models.Segment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.seg.Segments()
}

// Manager holds all configured streams, keyed by name.
type Manager struct {
	streams map[string]*Stream
	logger  logger.Logger
}

// NewManager constructs the configured streams up front; unknown names
// are rejected at request time rather than created on demand.
func NewManager(log logger.Logger, cfg *config.ServerConfig) (*Manager, error) {
	m := &Manager{
		streams: make(map[string]*Stream, len(cfg.Streams)),
		logger:  log,
	}
	for _, sc := range cfg.Streams {
		st, err := newStream(sc.Name, sc.Options, log)
		if err != nil {
			return nil, fmt.Errorf("stream %q: %w", sc.Name, err)
		}
		m.streams[sc.Name] = st
		log.Infof("configured stream %q (playlist base %q)", sc.Name, sc.Options.HLSPlaylistBase)
	}
	return m, nil
}

// Get returns the stream with the given name.
func (m *Manager) Get(name string) (*Stream, bool) {
	st, ok := m.streams[name]
	return st, ok
}

// AttachSink registers event fan-out for every stream. Must be called
// before any ingest starts; subscriber registration is not locked.
func (m *Manager) AttachSink(sink EventSink) {
	for name, st := range m.streams {
		name := name
		st.seg.OnInit(func(ev segmenter.InitEvent) {
			sink.StreamInitialized(name, ev.Mime)
		})
		st.seg.OnSegment(func(seg *models.Segment) {
			sink.SegmentComplete(name, seg)
		})
	}
}
