package radio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hls-radio/internal/platform/metrics"
)

// Engine turns fragments into a sliding window of numbered segments for one brand
// and renders playlists from it.
//
// Feed and Slide mutate state under mu and are normally called from Run, which
// owns the station's ticks. Readers only load the current window snapshot.
type Engine struct {
	brand    string
	settings StreamSettings
	source   FragmentSource
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending []segmentGroup

	seq  atomic.Int64
	live atomic.Pointer[window]
}

// NewEngine returns an Engine for brand that pulls fragments from source.
func NewEngine(brand string, settings StreamSettings, source FragmentSource, log *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: engine for %q has no fragment source", ErrConfig, brand)
	}
	e := &Engine{
		brand:    brand,
		settings: settings,
		source:   source,
		log:      log.With(slog.String("brand", brand), slog.String("component", "engine")),
		metrics:  m,
	}
	e.live.Store(emptyWindow)
	return e, nil
}

// Brand returns the brand key the engine serves.
func (e *Engine) Brand() string { return e.brand }

// Feed runs one feed tick: refill pending from the source when it runs low,
// then promote up to DripPerTick groups into the live window unless the window
// already holds twice the visible maximum.
func (e *Engine) Feed(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) < e.settings.RefillThreshold {
		if f, ok := e.source.Next(ctx); ok && f != nil {
			groups := e.groupsFor(f)
			e.pending = append(e.pending, groups...)
			e.log.Debug("fragment queued",
				slog.String("content_id", f.ID.String()),
				slog.Int("priority", f.Priority),
				slog.Int("groups", len(groups)),
				slog.Int("pending", len(e.pending)))
		}
	}

	e.dripLocked()
}

// dripLocked moves groups from pending into the window. Caller must hold e.mu.
func (e *Engine) dripLocked() {
	cur := e.live.Load()
	room := 2*e.settings.MaxVisibleSegments - cur.len()
	if room <= 0 {
		e.log.Debug("window saturated, drip paused", slog.Int("window", cur.len()))
		return
	}

	n := min(e.settings.DripPerTick, len(e.pending), room)
	if n == 0 {
		return
	}

	promoted := make([]segmentGroup, n)
	copy(promoted, e.pending[:n])
	rest := copy(e.pending, e.pending[n:])
	clear(e.pending[rest:])
	e.pending = e.pending[:rest]

	e.live.Store(cur.appended(promoted))
	e.metrics.AddSegmentsPromoted(n)
}

// groupsFor assigns the next sequence numbers to f's segments, one per group.
func (e *Engine) groupsFor(f *Fragment) []segmentGroup {
	n := f.Len()
	groups := make([]segmentGroup, 0, n)
	for i := 0; i < n; i++ {
		seq := e.seq.Add(1) - 1
		g := segmentGroup{seq: seq, segments: make(map[int64]Segment, len(f.Segments))}
		for bitrate, segs := range f.Segments {
			if i >= len(segs) {
				continue
			}
			s := segs[i]
			s.Sequence = seq
			s.Bitrate = bitrate
			s.Metadata = f.Metadata
			s.FirstOfFragment = i == 0
			g.segments[bitrate] = s
		}
		groups = append(groups, g)
	}
	return groups
}

// Warm appends f's segment groups to the pending buffer without touching the
// source. Stations use it to start with filler before the first feed tick.
func (e *Engine) Warm(f *Fragment) {
	if f == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, e.groupsFor(f)...)
}

// Slide evicts the oldest groups until the window holds at most MaxVisibleSegments.
func (e *Engine) Slide() {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, evicted := e.live.Load().trimmed(e.settings.MaxVisibleSegments)
	if evicted == 0 {
		return
	}
	e.live.Store(next)
	e.metrics.AddSegmentsEvicted(evicted)
}

// Reset drops everything pending and empties the window.
// Sequence numbers keep increasing across a reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.pending)
	e.pending = nil
	e.live.Store(emptyWindow)
}

// Run drives Feed and Slide from the given tick channels until ctx is done.
// A failing tick is logged and does not stop the loop.
func (e *Engine) Run(ctx context.Context, feed, slide <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-feed:
			if !ok {
				return
			}
			e.safely("feed", func() { e.Feed(ctx) })
		case _, ok := <-slide:
			if !ok {
				return
			}
			e.safely("slide", e.Slide)
		}
	}
}

func (e *Engine) safely(tick string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tick failed", slog.String("tick", tick), slog.Any("panic", r))
		}
	}()
	fn()
}

// MasterPlaylist returns the multi-variant playlist for the bitrate ladder.
func (e *Engine) MasterPlaylist() string {
	return BuildMasterPlaylist(e.brand, e.settings.Bitrates)
}

// DefaultBitrate is the first bitrate of the ladder.
func (e *Engine) DefaultBitrate() int64 {
	return e.settings.Bitrates[0]
}

// Playlist renders the media playlist for bitrate from the current window.
// ok is false when bitrate is not part of the ladder. An empty window yields
// a minimal valid playlist.
func (e *Engine) Playlist(bitrate int64) (m3u8 string, ok bool) {
	if !e.settings.hasBitrate(bitrate) {
		return "", false
	}

	w := e.live.Load()
	n := min(w.len(), e.settings.MaxVisibleSegments)
	segs := make([]Segment, 0, n)
	for _, g := range w.groups[:n] {
		if s, found := g.pick(bitrate); found {
			segs = append(segs, s)
		}
	}
	return BuildLivePlaylist(e.brand, bitrate, segs, e.minTarget()), true
}

func (e *Engine) minTarget() int {
	return int(math.Ceil(e.settings.SegmentDuration.Seconds()))
}

// Segment resolves a segment filename against the live window. The brand in
// the name must match the engine's brand. A missing bitrate falls back to the
// lowest bitrate available for that sequence.
func (e *Engine) Segment(name string) (Segment, bool) {
	brand, bitrate, seq, ok := parseSegmentName(name)
	if !ok || !strings.EqualFold(brand, e.brand) {
		return Segment{}, false
	}
	g, ok := e.live.Load().find(seq)
	if !ok {
		return Segment{}, false
	}
	return g.pick(bitrate)
}

// Window returns the sequence numbers currently in the live window.
func (e *Engine) Window() []int64 {
	return e.live.Load().sequences()
}

// Pending returns the number of groups waiting to be promoted.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
