// Package hls renders the media playlist text served to standard HLS
// clients. The exact line format matters for player compatibility and is
// covered by tests that decode the output with a third-party parser.
package hls

import (
	"fmt"
	"math"
	"strings"

	"fmp4hlsd/internal/models"
)

// GenerateMediaPlaylist renders the playlist for the given window of
// segments, oldest first. The media sequence is the sequence number of the
// first windowed segment and the target duration is the maximum segment
// duration rounded to the nearest integer, floored at 1.
func GenerateMediaPlaylist(base string, window []*models.Segment) string {
	mediaSequence := 0
	maxDuration := 0.0
	for _, seg := range window {
		if seg.Duration > maxDuration {
			maxDuration = seg.Duration
		}
	}
	if len(window) > 0 {
		mediaSequence = window[0].Sequence
	}
	targetDuration := int(math.Round(maxDuration))
	if targetDuration < 1 {
		targetDuration = 1
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:7\n")
	sb.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration))
	sb.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence))
	sb.WriteString(fmt.Sprintf("#EXT-X-MAP:URI=\"init-%s.mp4\"\n", base))

	for _, seg := range window {
		sb.WriteString(fmt.Sprintf("#EXTINF:%.6f,\n", seg.Duration))
		sb.WriteString(fmt.Sprintf("%s%d.m4s\n", base, seg.Sequence))
	}

	return sb.String()
}

// GenerateInitPlaylist renders the segment-less playlist emitted right
// after initialization so players can fetch the map before the first
// segment completes.
func GenerateInitPlaylist(base string) string {
	return GenerateMediaPlaylist(base, nil)
}
