package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fmp4hlsd/internal/logger"
	"fmp4hlsd/internal/metrics"
	"fmp4hlsd/internal/models"
	"fmp4hlsd/internal/stream"
)

type API struct {
	streams *stream.Manager
	hub     *wsHub
	logger  logger.Logger
}

// New builds the HTTP surface over the stream manager and starts the
// websocket event hub. Close shuts the hub down.
func New(streams *stream.Manager, log logger.Logger) (*API, http.Handler) {
	api := &API{
		streams: streams,
		hub:     newWSHub(log),
		logger:  log,
	}
	go api.hub.run()
	streams.AttachSink(api)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /streams/{name}", api.handleIngest)
	mux.HandleFunc("POST /streams/{name}/reset", api.handleReset)
	mux.HandleFunc("GET /streams/{name}/playlist.m3u8", api.handlePlaylist)
	mux.HandleFunc("GET /streams/{name}/events", api.handleEvents)
	mux.HandleFunc("GET /streams/{name}/{file}", api.handleFile)
	mux.Handle("GET /metrics", promhttp.Handler())

	return api, withRequestMetrics(mux)
}

// Close stops the websocket hub.
func (a *API) Close() {
	a.hub.Close()
}

// StreamInitialized implements stream.EventSink.
func (a *API) StreamInitialized(name, mime string) {
	a.hub.Broadcast("initialized", map[string]interface{}{
		"stream": name,
		"mime":   mime,
	})
}

// SegmentComplete implements stream.EventSink. Only metadata goes over
// the wire; segment bytes are pulled over HTTP.
func (a *API) SegmentComplete(name string, seg *models.Segment) {
	a.hub.Broadcast("segment", map[string]interface{}{
		"stream":    name,
		"sequence":  seg.Sequence,
		"duration":  seg.Duration,
		"timestamp": seg.Timestamp,
		"keyframe":  seg.Keyframe,
		"byteLen":   len(seg.Bytes),
	})
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request) (*stream.Stream, bool) {
	name := r.PathValue("name")
	st, ok := a.streams.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown stream %q", name), http.StatusNotFound)
		return nil, false
	}
	return st, true
}

// handleIngest drains the request body into the stream's segmenter. The
// producer keeps the request open for the lifetime of the stream.
func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	st, ok := a.lookup(w, r)
	if !ok {
		return
	}
	a.logger.Infof("ingest started for stream %q", st.Name)
	if err := st.Ingest(r.Body); err != nil {
		a.logger.Errorf("ingest for stream %q failed: %v", st.Name, err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	a.logger.Infof("ingest finished for stream %q", st.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	st, ok := a.lookup(w, r)
	if !ok {
		return
	}
	st.Reset()
	a.logger.Infof("stream %q reset", st.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	st, ok := a.lookup(w, r)
	if !ok {
		return
	}
	playlist := st.Playlist()
	if playlist == "" {
		http.Error(w, "playlist not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = w.Write([]byte(playlist))
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.lookup(w, r); !ok {
		return
	}
	a.hub.handleWS(w, r)
}

// handleFile serves the playlist-relative media URIs: the init segment as
// "init-<base>.mp4" and media segments as "<base><sequence>.m4s".
func (a *API) handleFile(w http.ResponseWriter, r *http.Request) {
	st, ok := a.lookup(w, r)
	if !ok {
		return
	}
	file := r.PathValue("file")
	base := st.PlaylistBase()

	if base != "" && file == "init-"+base+".mp4" {
		init := st.InitSegment()
		if init == nil {
			http.Error(w, "stream not initialized", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(init.Bytes)
		return
	}

	if base != "" && strings.HasPrefix(file, base) && strings.HasSuffix(file, ".m4s") {
		seqStr := strings.TrimSuffix(strings.TrimPrefix(file, base), ".m4s")
		seq, err := strconv.Atoi(seqStr)
		if err != nil || seq < 0 {
			http.Error(w, "bad segment name", http.StatusBadRequest)
			return
		}
		seg := st.SegmentBySequence(seq)
		if seg == nil {
			http.Error(w, fmt.Sprintf("segment %d not retained", seq), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/iso.segment")
		_, _ = w.Write(seg.Bytes)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade works behind the
// metrics wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
