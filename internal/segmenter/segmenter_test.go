package segmenter_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fmp4hlsd/internal/config"
	"fmp4hlsd/internal/models"
	"fmp4hlsd/internal/mp4"
	"fmp4hlsd/internal/segmenter"
	"fmp4hlsd/internal/testutil"
)

type capture struct {
	inits    []segmenter.InitEvent
	segments []*models.Segment
	errs     []error
}

func attach(t *testing.T, seg *segmenter.Segmenter) *capture {
	t.Helper()
	c := &capture{}
	seg.OnInit(func(ev segmenter.InitEvent) { c.inits = append(c.inits, ev) })
	seg.OnSegment(func(s *models.Segment) { c.segments = append(c.segments, s) })
	seg.OnError(func(err error) { c.errs = append(c.errs, err) })
	return c
}

func newSegmenter(t *testing.T, opts config.Options) *segmenter.Segmenter {
	t.Helper()
	seg, err := segmenter.New(opts, nil)
	require.NoError(t, err)
	return seg
}

// feed writes data in fixed-size chunks.
func feed(t *testing.T, seg *segmenter.Segmenter, data []byte, chunkSize int) {
	t.Helper()
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		n, err := seg.Write(data[off:end])
		require.NoError(t, err)
		require.Equal(t, end-off, n)
	}
}

func TestSegmenter_WholeStream(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	_, err := seg.Write(testutil.Stream(3))
	require.NoError(t, err)

	require.Len(t, c.inits, 1)
	assert.Equal(t, `video/mp4; codecs="avc1.64001F, mp4a.40.2"`, c.inits[0].Mime)
	assert.Equal(t, append(testutil.Ftyp(), testutil.MoovAVC()...), c.inits[0].Init)
	assert.Equal(t, c.inits[0].Init, seg.InitSegment().Bytes)
	assert.Equal(t, uint32(90000), seg.InitSegment().Timescale)
	assert.True(t, seg.Initialized())

	require.Len(t, c.segments, 3)
	for i, s := range c.segments {
		assert.Equal(t, i, s.Sequence)
		assert.InDelta(t, 1.0, s.Duration, 1e-9)
		assert.Equal(t, testutil.Fragment(uint32(i+1), i == 0), s.Bytes)
	}
	assert.True(t, c.segments[0].Keyframe)
	assert.False(t, c.segments[1].Keyframe)
}

func TestSegmenter_SplitInvariance(t *testing.T) {
	init := append(testutil.Ftyp(), testutil.MoovAVC()...)
	var fragments []byte
	for i := 1; i <= 4; i++ {
		fragments = append(fragments, testutil.Fragment(uint32(i), i == 1)...)
	}

	reference := newSegmenter(t, config.Options{SegmentCount: 10})
	ref := attach(t, reference)
	_, err := reference.Write(append(append([]byte{}, init...), fragments...))
	require.NoError(t, err)
	require.Len(t, ref.segments, 4)

	for _, chunkSize := range []int{1, 3, 7, 8, 13, 64, 1024} {
		t.Run(fmt.Sprintf("chunk%d", chunkSize), func(t *testing.T) {
			seg := newSegmenter(t, config.Options{SegmentCount: 10})
			c := attach(t, seg)

			_, err := seg.Write(init)
			require.NoError(t, err)
			feed(t, seg, fragments, chunkSize)

			require.Len(t, c.inits, 1)
			assert.Equal(t, ref.inits[0].Init, c.inits[0].Init)
			require.Len(t, c.segments, len(ref.segments))
			for i := range ref.segments {
				assert.Equal(t, ref.segments[i].Sequence, c.segments[i].Sequence)
				assert.Equal(t, ref.segments[i].Bytes, c.segments[i].Bytes, "segment %d", i)
				assert.InDelta(t, ref.segments[i].Duration, c.segments[i].Duration, 1e-9)
				assert.Equal(t, ref.segments[i].Keyframe, c.segments[i].Keyframe)
			}
		})
	}
}

func TestSegmenter_RetentionBounds(t *testing.T) {
	seg := newSegmenter(t, config.Options{SegmentCount: 3})
	attach(t, seg)

	_, err := seg.Write(testutil.Stream(7))
	require.NoError(t, err)

	retained := seg.Segments()
	require.Len(t, retained, 3)
	assert.Equal(t, 4, retained[0].Sequence)
	assert.Equal(t, 6, retained[2].Sequence)
	assert.Equal(t, retained[2], seg.Latest())

	assert.InDelta(t, 3.0, seg.TotalDuration(), 1e-9)
	wantBytes := len(seg.InitSegment().Bytes)
	for _, s := range retained {
		wantBytes += len(s.Bytes)
	}
	assert.Equal(t, wantBytes, seg.TotalByteLength())

	assert.Nil(t, seg.SegmentBySequence(3), "evicted")
	assert.Nil(t, seg.SegmentBySequence(7), "not yet produced")
	assert.Equal(t, retained[1], seg.SegmentBySequence(5))
}

func TestSegmenter_AllKeyframes(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	assert.True(t, seg.AllKeyframes())

	init := append(testutil.Ftyp(), testutil.MoovAVC()...)
	_, err := seg.Write(init)
	require.NoError(t, err)
	_, err = seg.Write(testutil.Fragment(1, true))
	require.NoError(t, err)
	assert.True(t, seg.AllKeyframes())

	_, err = seg.Write(testutil.Fragment(2, false))
	require.NoError(t, err)
	assert.False(t, seg.AllKeyframes())

	// latched for the stream lifetime
	_, err = seg.Write(testutil.Fragment(3, true))
	require.NoError(t, err)
	assert.False(t, seg.AllKeyframes())
}

func TestSegmenter_PlaylistMode(t *testing.T) {
	seg := newSegmenter(t, config.Options{HLSPlaylistBase: "cam", HLSPlaylistSize: 2})
	c := attach(t, seg)

	_, err := seg.Write(append(testutil.Ftyp(), testutil.MoovAVC()...))
	require.NoError(t, err)

	require.Len(t, c.inits, 1)
	assert.Contains(t, c.inits[0].Playlist, `#EXT-X-MAP:URI="init-cam.mp4"`)
	assert.NotContains(t, c.inits[0].Playlist, "#EXTINF")
	assert.Equal(t, c.inits[0].Playlist, seg.Playlist())
	assert.Equal(t, "cam", seg.PlaylistBase())

	for i := 1; i <= 3; i++ {
		_, err = seg.Write(testutil.Fragment(uint32(i), i == 1))
		require.NoError(t, err)
	}

	pl := seg.Playlist()
	assert.True(t, strings.HasPrefix(pl, "#EXTM3U\n"))
	assert.Contains(t, pl, "#EXT-X-MEDIA-SEQUENCE:1\n")
	assert.Contains(t, pl, "cam1.m4s")
	assert.Contains(t, pl, "cam2.m4s")
	assert.NotContains(t, pl, "cam0.m4s", "slid out of the window")
}

func TestSegmenter_PlaylistInitDisabled(t *testing.T) {
	off := false
	seg := newSegmenter(t, config.Options{HLSPlaylistBase: "cam", HLSPlaylistInit: &off})
	c := attach(t, seg)

	_, err := seg.Write(append(testutil.Ftyp(), testutil.MoovAVC()...))
	require.NoError(t, err)

	require.Len(t, c.inits, 1)
	assert.Empty(t, c.inits[0].Playlist)
	assert.Empty(t, seg.Playlist())
}

func TestSegmenter_MfraStopsStream(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	_, err := seg.Write(testutil.Stream(2))
	require.NoError(t, err)
	_, err = seg.Write(testutil.Box("mfra"))
	require.NoError(t, err)

	// anything after mfra is silently ignored
	_, err = seg.Write(testutil.Fragment(3, false))
	require.NoError(t, err)
	assert.Len(t, c.segments, 2)
	assert.Empty(t, c.errs)
}

func TestSegmenter_MoofRecovery(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	_, err := seg.Write(append(testutil.Ftyp(), testutil.MoovAVC()...))
	require.NoError(t, err)
	_, err = seg.Write(testutil.Fragment(1, true))
	require.NoError(t, err)

	garbage := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 3)
	chunk := append(garbage, testutil.Fragment(2, false)...)
	_, err = seg.Write(chunk)
	require.NoError(t, err)

	require.Len(t, c.segments, 2)
	assert.Equal(t, 1, c.segments[1].Sequence)
	assert.Equal(t, testutil.Fragment(2, false), c.segments[1].Bytes)
	assert.Empty(t, c.errs)
}

func TestSegmenter_ResyncExhausted(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	_, err := seg.Write(append(testutil.Ftyp(), testutil.MoovAVC()...))
	require.NoError(t, err)

	garbage := bytes.Repeat([]byte{0xde, 0xad}, 8)
	var fatal error
	for i := 0; i < 100 && fatal == nil; i++ {
		_, fatal = seg.Write(garbage)
	}
	require.ErrorIs(t, fatal, segmenter.ErrResyncExhausted)
	require.Len(t, c.errs, 1)
	assert.ErrorIs(t, c.errs[0], segmenter.ErrResyncExhausted)

	// the error latches until Reset
	_, err = seg.Write(testutil.Fragment(1, true))
	assert.ErrorIs(t, err, segmenter.ErrResyncExhausted)
	assert.Len(t, c.errs, 1, "reported once")
}

func TestSegmenter_RecoveryCounterResets(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	_, err := seg.Write(append(testutil.Ftyp(), testutil.MoovAVC()...))
	require.NoError(t, err)

	garbage := bytes.Repeat([]byte{0xde, 0xad}, 8)
	for round := 0; round < 3; round++ {
		for i := 0; i < 30; i++ {
			_, err = seg.Write(garbage)
			require.NoError(t, err)
		}
		chunk := append(append([]byte{}, garbage...), testutil.Fragment(uint32(round+1), true)...)
		_, err = seg.Write(chunk)
		require.NoError(t, err)
	}
	assert.Len(t, c.segments, 3)
}

func TestSegmenter_BadFtyp(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	_, err := seg.Write([]byte("definitely not an mp4 stream"))
	require.Error(t, err)
	var se *mp4.StructuralError
	assert.ErrorAs(t, err, &se)
	assert.Len(t, c.errs, 1)
	assert.False(t, seg.Initialized())
}

func TestSegmenter_TruncatedFtypIsFatal(t *testing.T) {
	seg := newSegmenter(t, config.Options{})

	chunk := make([]byte, 0, 16)
	chunk = append(chunk, 0, 0, 0, 100)
	chunk = append(chunk, "ftyp"...)
	chunk = append(chunk, "iso5"...)
	_, err := seg.Write(chunk)

	var se *mp4.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ftyp", se.Expected)
}

func TestSegmenter_TruncatedMoovIsFatal(t *testing.T) {
	seg := newSegmenter(t, config.Options{})

	_, err := seg.Write(testutil.Ftyp())
	require.NoError(t, err)

	moov := testutil.MoovAVC()
	_, err = seg.Write(moov[:len(moov)/2])
	var se *mp4.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "moov", se.Expected)
}

func TestSegmenter_ResetAndReplay(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	stream := testutil.Stream(2)
	_, err := seg.Write(stream)
	require.NoError(t, err)
	require.Len(t, c.segments, 2)

	seg.Reset()
	assert.False(t, seg.Initialized())
	assert.Nil(t, seg.Latest())
	assert.Empty(t, seg.Playlist())
	assert.Equal(t, 0, seg.TotalByteLength())

	_, err = seg.Write(stream)
	require.NoError(t, err)

	require.Len(t, c.inits, 2, "subscribers survive a reset")
	require.Len(t, c.segments, 4)
	assert.Equal(t, 0, c.segments[2].Sequence, "sequence restarts")
	assert.Equal(t, c.segments[0].Bytes, c.segments[2].Bytes)
	assert.Equal(t, c.segments[1].Bytes, c.segments[3].Bytes)
}

func TestSegmenter_ResetClearsFatalError(t *testing.T) {
	seg := newSegmenter(t, config.Options{})

	_, err := seg.Write([]byte("garbage garbage garbage"))
	require.Error(t, err)

	seg.Reset()
	_, err = seg.Write(testutil.Stream(1))
	require.NoError(t, err)
	assert.True(t, seg.Initialized())
}

func TestSegmenter_Unsubscribe(t *testing.T) {
	seg := newSegmenter(t, config.Options{})

	var got int
	id := seg.OnSegment(func(*models.Segment) { got++ })

	_, err := seg.Write(testutil.Stream(1))
	require.NoError(t, err)
	require.Equal(t, 1, got)

	seg.Unsubscribe(id)
	_, err = seg.Write(testutil.Fragment(2, false))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestSegmenter_TfhdDefaultDuration(t *testing.T) {
	seg := newSegmenter(t, config.Options{})
	c := attach(t, seg)

	_, err := seg.Write(append(testutil.Ftyp(), testutil.MoovAVC()...))
	require.NoError(t, err)

	moof := testutil.TfhdMoof(1, 30, 3000)
	mdat := testutil.Mdat(testutil.NAL(0x65, 16))
	_, err = seg.Write(append(moof, mdat...))
	require.NoError(t, err)

	require.Len(t, c.segments, 1)
	assert.InDelta(t, 1.0, c.segments[0].Duration, 1e-9)
}

func TestSegmenter_InvalidOptions(t *testing.T) {
	_, err := segmenter.New(config.Options{HLSPlaylistBase: "cam-1"}, nil)
	assert.Error(t, err)
}
