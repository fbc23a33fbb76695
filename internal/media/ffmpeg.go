// Package media holds the collaborators that find, fetch and encode audio
// for the radio engine: song sources, materializers and the ffmpeg encoder.
package media

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"hls-radio/internal/radio"

	"golang.org/x/sync/errgroup"
)

// maxParallelRenditions bounds concurrent ffmpeg processes per Segment call.
const maxParallelRenditions = 2

// FFmpegEncoder cuts audio into MPEG-TS segments by running ffmpeg once per bitrate.
type FFmpegEncoder struct {
	Binary          string
	WorkDir         string
	SegmentDuration time.Duration
	log             *slog.Logger
}

// NewFFmpegEncoder returns an encoder that runs binary and writes temporary
// output under workDir.
func NewFFmpegEncoder(binary, workDir string, segmentDuration time.Duration, log *slog.Logger) *FFmpegEncoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEncoder{
		Binary:          binary,
		WorkDir:         workDir,
		SegmentDuration: segmentDuration,
		log:             log.With(slog.String("component", "ffmpeg")),
	}
}

// Segment implements radio.Encoder.
func (e *FFmpegEncoder) Segment(ctx context.Context, meta radio.Metadata, sourceFile string, bitrates []int64) (map[int64][]radio.Segment, error) {
	if _, err := os.Stat(sourceFile); err != nil {
		return nil, fmt.Errorf("source %s: %w", sourceFile, err)
	}

	var mu sync.Mutex
	out := make(map[int64][]radio.Segment, len(bitrates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRenditions)
	for _, br := range bitrates {
		g.Go(func() error {
			segs, err := e.rendition(gctx, meta, sourceFile, br)
			if err != nil {
				return fmt.Errorf("bitrate %d: %w", br, err)
			}
			mu.Lock()
			out[br] = segs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *FFmpegEncoder) rendition(ctx context.Context, meta radio.Metadata, sourceFile string, bitrate int64) ([]radio.Segment, error) {
	dir, err := os.MkdirTemp(e.WorkDir, "seg-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	listPath := filepath.Join(dir, "list.csv")
	args := segmentArgs(sourceFile, dir, listPath, bitrate, e.SegmentDuration)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	f, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open segment list: %w", err)
	}
	defer f.Close()

	entries, err := parseSegmentList(f)
	if err != nil {
		return nil, err
	}

	segs := make([]radio.Segment, 0, len(entries))
	for i, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.name))
		if err != nil {
			return nil, fmt.Errorf("read segment %s: %w", entry.name, err)
		}
		segs = append(segs, radio.Segment{
			Bitrate:         bitrate,
			Duration:        entry.duration,
			Data:            data,
			Metadata:        meta,
			FirstOfFragment: i == 0,
		})
	}

	e.log.Debug("rendition encoded",
		slog.String("source", sourceFile),
		slog.Int64("bitrate", bitrate),
		slog.Int("segments", len(segs)),
		slog.Int("duration_ms", int(time.Since(start).Milliseconds())))
	return segs, nil
}

// segmentArgs builds the ffmpeg arguments for one audio-only rendition.
func segmentArgs(source, dir, listPath string, bitrate int64, segmentDuration time.Duration) []string {
	seconds := strconv.FormatFloat(segmentDuration.Seconds(), 'f', -1, 64)
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", source,
		"-vn", "-map", "0:a:0",
		"-c:a", "aac", "-b:a", strconv.FormatInt(bitrate, 10), "-ar", "44100", "-ac", "2",
		"-f", "segment",
		"-segment_time", seconds,
		"-segment_format", "mpegts",
		"-segment_list", listPath,
		"-segment_list_type", "csv",
		"-reset_timestamps", "1",
		filepath.Join(dir, "%05d.ts"),
	}
}

type listEntry struct {
	name     string
	duration float64
}

// parseSegmentList reads ffmpeg's csv segment list: name,start,end per line.
func parseSegmentList(r io.Reader) ([]listEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse segment list: %w", err)
	}
	out := make([]listEntry, 0, len(records))
	for _, rec := range records {
		start, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse segment start %q: %w", rec[1], err)
		}
		end, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parse segment end %q: %w", rec[2], err)
		}
		out = append(out, listEntry{name: filepath.Base(rec[0]), duration: end - start})
	}
	return out, nil
}
