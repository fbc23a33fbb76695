package radio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fillerPrepareTimeout bounds the one-time segmentation of the filler asset.
const fillerPrepareTimeout = 2 * time.Minute

// Filler provides the looped fallback audio used when a station has nothing
// else to play. The asset is segmented once, on first use, and every caller
// receives its own copy of the result.
type Filler struct {
	path     string
	bitrates []int64
	encoder  Encoder
	wait     time.Duration
	log      *slog.Logger

	once     sync.Once
	ready    chan struct{}
	fragment *Fragment
	err      error
}

// NewFiller returns a Filler that segments the file at path with enc.
// An empty path yields a Filler that is never available.
func NewFiller(path string, bitrates []int64, enc Encoder, wait time.Duration, log *slog.Logger) *Filler {
	return &Filler{
		path:     path,
		bitrates: append([]int64(nil), bitrates...),
		encoder:  enc,
		wait:     wait,
		log:      log.With(slog.String("component", "filler")),
		ready:    make(chan struct{}),
	}
}

// NewStaticFiller returns a Filler that is immediately ready with f's segments.
func NewStaticFiller(f *Fragment, log *slog.Logger) *Filler {
	fl := &Filler{path: "static", log: log.With(slog.String("component", "filler")), ready: make(chan struct{})}
	fl.once.Do(func() {
		fl.fragment = f.Clone()
		fl.fragment.Priority = FillerPriority
		close(fl.ready)
	})
	return fl
}

// Prepare starts segmenting the filler asset in the background. Only the first
// call does any work.
func (f *Filler) Prepare() {
	if f == nil || f.path == "" {
		return
	}
	f.once.Do(func() {
		if f.encoder == nil {
			f.err = ErrConfig
			close(f.ready)
			return
		}
		go f.prepare()
	})
}

func (f *Filler) prepare() {
	defer close(f.ready)

	ctx, cancel := context.WithTimeout(context.Background(), fillerPrepareTimeout)
	defer cancel()

	meta := Metadata{
		ContentID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("filler:"+f.path)),
		Title:     "Filler",
	}
	start := time.Now()
	segs, err := f.encoder.Segment(ctx, meta, f.path, f.bitrates)
	if err != nil {
		f.err = err
		f.log.Error("filler segmentation failed", slog.String("path", f.path), slog.String("error", err.Error()))
		return
	}
	if len(segs) == 0 {
		f.err = ErrSupply
		f.log.Error("filler segmentation produced no segments", slog.String("path", f.path))
		return
	}
	f.fragment = &Fragment{ID: meta.ContentID, Priority: FillerPriority, Metadata: meta, Segments: segs}
	f.log.Info("filler ready",
		slog.String("path", f.path),
		slog.Int("segments", f.fragment.Len()),
		slog.Int("duration_ms", int(time.Since(start).Milliseconds())))
}

// IsAvailable reports whether filler audio exists or is still being prepared.
// It starts preparation on first use.
func (f *Filler) IsAvailable() bool {
	if f == nil {
		return false
	}
	if f.path == "" {
		return false
	}
	f.Prepare()
	select {
	case <-f.ready:
		return f.fragment != nil
	default:
		return true
	}
}

// CreateFragment returns a fresh deep copy of the filler fragment. If the asset
// is still being prepared it waits at most the configured wait; when that runs
// out a placeholder without segments is returned.
func (f *Filler) CreateFragment(ctx context.Context) *Fragment {
	f.Prepare()

	select {
	case <-f.ready:
	default:
		if f.wait <= 0 {
			return Placeholder()
		}
		t := time.NewTimer(f.wait)
		defer t.Stop()
		select {
		case <-f.ready:
		case <-t.C:
			f.log.Warn("filler not ready, using placeholder", slog.Duration("waited", f.wait))
			return Placeholder()
		case <-ctx.Done():
			return Placeholder()
		}
	}

	if f.fragment == nil {
		return Placeholder()
	}
	return f.fragment.Clone()
}

// Placeholder returns a fragment without segments. Feeding it produces no
// groups and consumes no sequence numbers.
func Placeholder() *Fragment {
	return &Fragment{
		ID:       uuid.Nil,
		Priority: FillerPriority,
		Metadata: Metadata{Title: "Placeholder"},
		Segments: map[int64][]Segment{},
	}
}
