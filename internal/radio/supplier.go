package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"hls-radio/internal/platform/metrics"

	"golang.org/x/time/rate"
)

// SongPriority is the priority given to fragments fetched by the supplier itself.
const SongPriority = 100

// recentLimit is how many dispatched fragments the supplier remembers.
const recentLimit = 2

// SupplierState is a coarse view of a supplier's queue depth.
type SupplierState string

const (
	StateEmpty    SupplierState = "empty"
	StateFeeding  SupplierState = "feeding"
	StateSteady   SupplierState = "steady"
	StateStarving SupplierState = "starving"
	StateStopped  SupplierState = "stopped"
)

type submitRequest struct {
	song     Song
	priority int
}

// Supplier buffers fragments for one brand. Urgent fragments go to an unbounded
// prioritized queue, regular ones to a small FIFO that a background worker keeps
// topped up from the song source. When both are empty, Next falls back to filler.
type Supplier struct {
	brand        string
	settings     SupplierSettings
	bitrates     []int64
	source       SongSource
	materializer Materializer
	encoder      Encoder
	filler       *Filler
	log          *slog.Logger
	metrics      *metrics.Metrics

	cooldown *rate.Limiter

	mu          sync.Mutex
	prioritized priorityQueue
	regular     fifo
	starving    bool
	stopped     bool

	fetching atomic.Bool

	recentMu sync.RWMutex
	recent   []Metadata

	feeds   chan int
	submits chan submitRequest
	cancel  context.CancelFunc
	done    chan struct{}
}

// SupplierDeps groups the collaborators a Supplier fetches content with.
type SupplierDeps struct {
	Source       SongSource
	Materializer Materializer
	Encoder      Encoder
	Filler       *Filler
}

// NewSupplier returns a Supplier for brand. Call Start to run its worker.
func NewSupplier(brand string, settings SupplierSettings, bitrates []int64, deps SupplierDeps, log *slog.Logger, m *metrics.Metrics) (*Supplier, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if len(bitrates) == 0 {
		return nil, fmt.Errorf("%w: supplier for %q has no bitrates", ErrConfig, brand)
	}
	s := &Supplier{
		brand:        brand,
		settings:     settings,
		bitrates:     append([]int64(nil), bitrates...),
		source:       deps.Source,
		materializer: deps.Materializer,
		encoder:      deps.Encoder,
		filler:       deps.Filler,
		log:          log.With(slog.String("brand", brand), slog.String("component", "supplier")),
		metrics:      m,
		cooldown:     newCooldown(settings.StarvationCooldown),
		regular:      fifo{capacity: settings.RegularCapacity},
		feeds:        make(chan int, 1),
		submits:      make(chan submitRequest, 16),
		done:         make(chan struct{}),
	}
	return s, nil
}

func newCooldown(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Start runs the supplier's worker until Stop is called or ctx is done, and
// requests an initial fetch.
func (s *Supplier) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	s.requestFeed(s.fetchCount())
}

// Stop cancels the worker and drops everything queued. It does not wait for
// a fetch in flight; its result is discarded when it completes.
func (s *Supplier) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.prioritized.reset()
	s.regular.reset()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info("supplier stopped")
}

// Wait blocks until the worker started by Start has returned.
func (s *Supplier) Wait() {
	if s.cancel != nil {
		<-s.done
	}
}

// AddFragment queues f. A priority at or below the threshold always goes to the
// prioritized queue; otherwise f is rejected when the regular queue is full.
func (s *Supplier) AddFragment(f *Fragment, priority int) bool {
	if f == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	f.Priority = priority
	if priority <= s.settings.PriorityThreshold {
		s.prioritized.push(f, priority)
		s.starving = false
		return true
	}
	if !s.regular.push(f) {
		return false
	}
	s.starving = false
	return true
}

// Next returns the next fragment to play: prioritized first, then regular.
// With both queues empty it asks the worker for more content, at most once per
// cooldown, and returns a filler fragment if filler audio exists. Next never
// blocks on the song source.
func (s *Supplier) Next(ctx context.Context) (*Fragment, bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, false
	}
	if f, ok := s.prioritized.pop(); ok {
		s.mu.Unlock()
		s.dispatched(f, "prioritized")
		return f, true
	}
	if f, ok := s.regular.pop(); ok {
		s.mu.Unlock()
		s.dispatched(f, "regular")
		return f, true
	}
	s.starving = true
	s.mu.Unlock()

	if s.cooldown.Allow() {
		s.requestFeed(s.fetchCount())
	}

	if !s.filler.IsAvailable() {
		return nil, false
	}
	f := s.filler.CreateFragment(ctx)
	s.metrics.IncFragmentsDispatched("filler")
	return f, true
}

// Submit asks the worker to fetch and queue song with the given priority.
// It returns ErrStopped after Stop and ErrSupply when the request queue is full.
func (s *Supplier) Submit(song Song, priority int) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	select {
	case s.submits <- submitRequest{song: song, priority: priority}:
		return nil
	default:
		s.log.Warn("submit queue full, dropping request", slog.String("song_id", song.ID.String()))
		return fmt.Errorf("%w: submit queue full", ErrSupply)
	}
}

// requestFeed hands a fetch request to the worker. If one is already waiting,
// the new request is dropped.
func (s *Supplier) requestFeed(n int) {
	select {
	case s.feeds <- n:
	default:
	}
}

// fetchCount picks 1 or 2 fragments per fetch.
func (s *Supplier) fetchCount() int {
	return 1 + rand.IntN(2)
}

func (s *Supplier) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.settings.MaintenanceDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.maintain(ctx)
			timer.Reset(s.settings.MaintenanceInterval)
		case n := <-s.feeds:
			s.fetch(ctx, n)
		case req := <-s.submits:
			s.submit(ctx, req)
		}
	}
}

// maintain tops up the regular queue when it has drained to the trigger depth.
func (s *Supplier) maintain(ctx context.Context) {
	_, regular := s.Depth()
	if regular > s.settings.TriggerDepth {
		return
	}
	s.fetch(ctx, s.fetchCount())
}

// fetch lists the brand's songs, picks up to n not played recently and queues
// them. Failures drop the affected song and are counted.
func (s *Supplier) fetch(ctx context.Context, n int) {
	if s.source == nil {
		return
	}

	s.mu.Lock()
	room := s.regular.capacity - len(s.regular.items)
	s.mu.Unlock()
	n = min(n, room)
	if n <= 0 {
		return
	}

	s.fetching.Store(true)
	defer s.fetching.Store(false)

	songs, err := s.source.ListBrandSongs(ctx, s.brand, ItemSong)
	if err != nil {
		s.failed(fmt.Errorf("%w: list songs: %w", ErrSupply, err))
		return
	}
	picked := s.pick(songs, n)
	if len(picked) == 0 {
		s.log.Warn("no songs available for brand")
		return
	}

	for _, song := range picked {
		if ctx.Err() != nil {
			return
		}
		f, err := s.build(ctx, song, SongPriority)
		if err != nil {
			s.failed(err)
			continue
		}
		if !s.AddFragment(f, SongPriority) {
			s.log.Debug("fragment discarded", slog.String("song_id", song.ID.String()))
			continue
		}
		s.log.Info("fragment queued",
			slog.String("song_id", song.ID.String()),
			slog.String("title", song.Title))
	}
}

func (s *Supplier) submit(ctx context.Context, req submitRequest) {
	f, err := s.build(ctx, req.song, req.priority)
	if err != nil {
		s.failed(err)
		return
	}
	if !s.AddFragment(f, req.priority) {
		s.log.Warn("submitted fragment rejected",
			slog.String("song_id", req.song.ID.String()),
			slog.Int("priority", req.priority))
		return
	}
	s.log.Info("submitted fragment queued",
		slog.String("song_id", req.song.ID.String()),
		slog.Int("priority", req.priority))
}

// build materializes and encodes song into a fragment.
func (s *Supplier) build(ctx context.Context, song Song, priority int) (*Fragment, error) {
	if s.materializer == nil || s.encoder == nil {
		return nil, fmt.Errorf("%w: no materializer or encoder configured", ErrSupply)
	}
	path, release, err := s.materializer.Materialize(ctx, song)
	if err != nil {
		return nil, fmt.Errorf("%w: materialize %s: %w", ErrSupply, song.ID, err)
	}
	defer release()

	meta := song.Metadata()
	segs, err := s.encoder.Segment(ctx, meta, path, s.bitrates)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", ErrSupply, song.ID, err)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: encode %s: no segments", ErrSupply, song.ID)
	}
	return &Fragment{ID: song.ID, Priority: priority, Metadata: meta, Segments: segs}, nil
}

func (s *Supplier) failed(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.metrics.IncSupplyFailures()
	s.log.Error("supply failed", slog.String("error", err.Error()))
}

// pick shuffles songs and returns up to n of them, preferring ones that were
// not dispatched recently.
func (s *Supplier) pick(songs []Song, n int) []Song {
	if len(songs) == 0 || n <= 0 {
		return nil
	}
	shuffled := append([]Song(nil), songs...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	recent := make(map[string]struct{}, recentLimit)
	for _, m := range s.Recent() {
		recent[m.ContentID.String()] = struct{}{}
	}

	out := make([]Song, 0, n)
	var skipped []Song
	for _, song := range shuffled {
		if len(out) == n {
			break
		}
		if _, ok := recent[song.ID.String()]; ok {
			skipped = append(skipped, song)
			continue
		}
		out = append(out, song)
	}
	for _, song := range skipped {
		if len(out) == n {
			break
		}
		out = append(out, song)
	}
	return out
}

func (s *Supplier) dispatched(f *Fragment, source string) {
	s.metrics.IncFragmentsDispatched(source)
	if f.Priority == FillerPriority {
		return
	}
	s.recentMu.Lock()
	s.recent = append(s.recent, f.Metadata)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[len(s.recent)-recentLimit:]
	}
	s.recentMu.Unlock()
}

// Recent returns the metadata of the most recently dispatched fragments,
// oldest first.
func (s *Supplier) Recent() []Metadata {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	return append([]Metadata(nil), s.recent...)
}

// Depth returns the lengths of the prioritized and regular queues.
func (s *Supplier) Depth() (prioritized, regular int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prioritized.Len(), len(s.regular.items)
}

// State reports the supplier's current state.
func (s *Supplier) State() SupplierState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return StateStopped
	case s.fetching.Load():
		return StateFeeding
	case s.prioritized.Len() > 0 || len(s.regular.items) > 0:
		return StateSteady
	case s.starving:
		return StateStarving
	default:
		return StateEmpty
	}
}
