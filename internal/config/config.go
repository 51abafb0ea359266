package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Bounds and defaults for the segmenter options. Out-of-range numeric
// values clamp to the nearest bound instead of failing.
const (
	SegmentCountMin     = 2
	SegmentCountMax     = 30
	SegmentCountDefault = 2

	PlaylistSizeMin     = 2
	PlaylistSizeMax     = 20
	PlaylistSizeDefault = 4

	PlaylistExtraMin     = 0
	PlaylistExtraMax     = 10
	PlaylistExtraDefault = 0
)

var playlistBaseRe = regexp.MustCompile(`^[a-zA-Z_]+$`)

// Options configures a single segmenter instance. The zero value plus
// Normalize yields plain mode with the default segment count.
type Options struct {
	// HLSPlaylistBase switches the segmenter into playlist mode when set.
	// Letters and underscores only.
	HLSPlaylistBase string `json:"hlsPlaylistBase"`
	// HLSPlaylistSize is the number of segments listed in the playlist.
	HLSPlaylistSize int `json:"hlsPlaylistSize"`
	// HLSPlaylistExtra is the number of retained-but-unlisted segments.
	HLSPlaylistExtra int `json:"hlsPlaylistExtra"`
	// HLSPlaylistInit emits an init-only playlist right after initialization.
	HLSPlaylistInit *bool `json:"hlsPlaylistInit"`
	// SegmentCount bounds the retention ring in plain mode. Ignored when
	// HLSPlaylistBase is set.
	SegmentCount int `json:"segmentCount"`
}

// PlaylistMode reports whether a playlist base name was configured.
func (o *Options) PlaylistMode() bool {
	return o.HLSPlaylistBase != ""
}

// PlaylistInit reports the init-playlist setting, defaulting to true.
func (o *Options) PlaylistInit() bool {
	return o.HLSPlaylistInit == nil || *o.HLSPlaylistInit
}

// RingCapacity is the retention bound implied by the current mode.
func (o *Options) RingCapacity() int {
	if o.PlaylistMode() {
		return o.HLSPlaylistSize + o.HLSPlaylistExtra
	}
	return o.SegmentCount
}

// Normalize validates the playlist base and clamps numeric fields in
// place. It must be called once before the options are used.
func (o *Options) Normalize() error {
	if o.HLSPlaylistBase != "" && !playlistBaseRe.MatchString(o.HLSPlaylistBase) {
		return fmt.Errorf("invalid hlsPlaylistBase %q: letters and underscores only", o.HLSPlaylistBase)
	}
	o.HLSPlaylistSize = clamp(o.HLSPlaylistSize, PlaylistSizeMin, PlaylistSizeMax, PlaylistSizeDefault)
	o.HLSPlaylistExtra = clamp(o.HLSPlaylistExtra, PlaylistExtraMin, PlaylistExtraMax, PlaylistExtraDefault)
	o.SegmentCount = clamp(o.SegmentCount, SegmentCountMin, SegmentCountMax, SegmentCountDefault)
	return nil
}

// clamp treats zero as unset to keep JSON-decoded zero values on defaults.
func clamp(v, min, max, def int) int {
	switch {
	case v == 0:
		return def
	case v < min:
		return min
	case v > max:
		return max
	}
	return v
}

// Stream defines one named ingest stream in the server configuration.
type Stream struct {
	Name    string  `json:"name"`
	Options Options `json:"options"`
}

// ServerConfig holds the fully processed application configuration.
type ServerConfig struct {
	Name    string   `json:"name"`
	Streams []Stream `json:"streams"`
}

// LoadConfig reads and parses the configuration file from the given path.
func LoadConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	seen := make(map[string]struct{}, len(cfg.Streams))
	for i := range cfg.Streams {
		s := &cfg.Streams[i]
		if s.Name == "" {
			return nil, fmt.Errorf("stream %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stream name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if err := s.Options.Normalize(); err != nil {
			return nil, fmt.Errorf("stream %q: %w", s.Name, err)
		}
	}

	return &cfg, nil
}
