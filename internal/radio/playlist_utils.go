package radio

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// segmentNamePattern matches {brand}_{bitrate}_{sequence}.ts.
var segmentNamePattern = regexp.MustCompile(`^([^_]+)_([0-9]+)_([0-9]+)\.ts$`)

// parseSegmentName splits a segment filename into brand, bitrate and sequence.
func parseSegmentName(name string) (brand string, bitrate, seq int64, ok bool) {
	m := segmentNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, 0, false
	}
	bitrate, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	seq, err = strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	return m[1], bitrate, seq, true
}

// SegmentName returns the filename a segment is served under.
func SegmentName(brand string, bitrate, seq int64) string {
	return fmt.Sprintf("%s_%d_%d.ts", brand, bitrate, seq)
}

// SegmentURL returns the relative URL of a segment.
func SegmentURL(brand string, bitrate, seq int64) string {
	return "/api/stream/" + brand + "/segments/" + SegmentName(brand, bitrate, seq)
}

// VariantURL returns the relative URL of the per-bitrate playlist.
func VariantURL(brand string, bitrate int64) string {
	return fmt.Sprintf("/api/stream/%s/stream.m3u8?bitrate=%d", brand, bitrate)
}

// BuildMasterPlaylist lists one variant stream per ladder bitrate, in ladder order.
func BuildMasterPlaylist(brand string, bitrates []int64) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, br := range bitrates {
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d\n", br))
		b.WriteString(VariantURL(brand, br))
		b.WriteString("\n")
	}
	return b.String()
}

// BuildEmptyPlaylist is served while a station has nothing in its live window.
func BuildEmptyPlaylist(targetDuration int) string {
	if targetDuration <= 0 {
		targetDuration = 1
	}
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-ALLOW-CACHE:NO\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	return b.String()
}

// BuildLivePlaylist converts segments (ordered by sequence ascending) into a live
// media playlist for brand. URLs always carry the requested bitrate so that clients
// keep asking for the quality they chose. The target duration is never lower than
// minTarget.
func BuildLivePlaylist(brand string, bitrate int64, segments []Segment, minTarget int) string {
	if len(segments) == 0 {
		return BuildEmptyPlaylist(minTarget)
	}

	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	targetDuration := targetDurationFromSegments(segments)
	if targetDuration < minTarget {
		targetDuration = minTarget
	}
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration))
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", segments[0].Sequence))

	for _, seg := range segments {
		b.WriteString(fmt.Sprintf("#EXTINF:%.3f,%s\n", seg.Duration, seg.Metadata.Label()))
		b.WriteString(SegmentURL(brand, bitrate, seg.Sequence))
		b.WriteString("\n")
	}

	return b.String()
}

// targetDurationFromSegments returns the HLS #EXT-X-TARGETDURATION value:
// the ceiling of the maximum segment duration in seconds (integer).
func targetDurationFromSegments(segments []Segment) int {
	max := 0.0
	for _, seg := range segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	if max <= 0 {
		return 1
	}
	return int(math.Ceil(max))
}
