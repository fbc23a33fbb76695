package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hls-radio/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// whitelistParallelism bounds concurrent station starts at boot.
const whitelistParallelism = 4

// TickSource hands out subscriptions to a shared ticker.
type TickSource interface {
	Subscribe() (<-chan time.Time, func())
}

// Station is one running brand: a supplier feeding an engine.
type Station struct {
	Brand     string
	CreatedAt time.Time
	Supplier  *Supplier
	Engine    *Engine

	active atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Active reports whether the station is still registered and running.
func (st *Station) Active() bool { return st.active.Load() }

// Info returns a snapshot of the station's state.
func (st *Station) Info() StationInfo {
	prioritized, regular := st.Supplier.Depth()
	return StationInfo{
		Brand:        st.Brand,
		Active:       st.Active(),
		CreatedAt:    st.CreatedAt,
		SupplierMode: string(st.Supplier.State()),
		Window:       st.Engine.Window(),
		Pending:      st.Engine.Pending(),
		Prioritized:  prioritized,
		Regular:      regular,
		NowPlaying:   st.Supplier.Recent(),
	}
}

// stop releases the station without waiting for the supplier's in-flight
// fetch. The engine loop only blocks on ctx-bound work, so it is joined.
func (st *Station) stop() {
	if !st.active.CompareAndSwap(true, false) {
		return
	}
	st.Supplier.Stop()
	st.cancel()
	<-st.done
	st.Engine.Reset()
}

// RegistryConfig holds the settings applied to every station.
type RegistryConfig struct {
	Stream   StreamSettings
	Supplier SupplierSettings
}

// Registry owns the set of running stations, keyed by lower-cased brand.
type Registry struct {
	cfg     RegistryConfig
	deps    SupplierDeps
	feed    TickSource
	slide   TickSource
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	store Store

	creating singleflight.Group
}

// NewRegistry returns a Registry whose stations subscribe to feed and slide.
// Either tick source may be nil, in which case the caller drives the engines.
func NewRegistry(cfg RegistryConfig, deps SupplierDeps, feed, slide TickSource, log *slog.Logger, m *metrics.Metrics) *Registry {
	return NewRegistryWithStore(NewInMemoryStore(), cfg, deps, feed, slide, log, m)
}

// NewRegistryWithStore is NewRegistry with an explicit Store.
func NewRegistryWithStore(store Store, cfg RegistryConfig, deps SupplierDeps, feed, slide TickSource, log *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		cfg:     cfg,
		deps:    deps,
		feed:    feed,
		slide:   slide,
		log:     log.With(slog.String("component", "registry")),
		metrics: m,
		store:   store,
	}
}

// NormalizeBrand returns the registry key for brand.
func NormalizeBrand(brand string) string {
	return strings.ToLower(strings.TrimSpace(brand))
}

func validateBrand(brand string) error {
	if brand == "" {
		return fmt.Errorf("%w: empty brand", ErrConfig)
	}
	if strings.ContainsAny(brand, "_/ ") {
		return fmt.Errorf("%w: brand %q contains a reserved character", ErrConfig, brand)
	}
	return nil
}

// Initialize returns the running station for brand, creating and starting it
// if needed. Concurrent calls for the same brand create exactly one station.
func (r *Registry) Initialize(ctx context.Context, brand string) (*Station, error) {
	key := NormalizeBrand(brand)
	if err := validateBrand(key); err != nil {
		return nil, err
	}
	if st, ok := r.Get(key); ok {
		return st, nil
	}

	ch := r.creating.DoChan(key, func() (any, error) {
		if st, ok := r.Get(key); ok {
			return st, nil
		}
		st, err := r.create(key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.store.SetStation(st)
		r.mu.Unlock()
		r.metrics.IncStationsStarted()
		r.log.Info("station started", slog.String("brand", key))
		return st, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Station), nil
	}
}

func (r *Registry) create(brand string) (*Station, error) {
	if err := r.cfg.Stream.Validate(); err != nil {
		return nil, err
	}
	supplier, err := NewSupplier(brand, r.cfg.Supplier, r.cfg.Stream.Bitrates, r.deps, r.log, r.metrics)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(brand, r.cfg.Stream, supplier, r.log, r.metrics)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &Station{
		Brand:     brand,
		CreatedAt: time.Now().UTC(),
		Supplier:  supplier,
		Engine:    engine,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	st.active.Store(true)

	if cache, ok := r.deps.Source.(SongCache); ok {
		if err := cache.Invalidate(ctx, brand); err != nil {
			r.log.Warn("song cache not invalidated",
				slog.String("brand", brand),
				slog.String("error", err.Error()))
		}
	}

	r.deps.Filler.Prepare()
	supplier.Start(ctx)

	feedCh, unsubFeed := subscribe(r.feed)
	slideCh, unsubSlide := subscribe(r.slide)
	go func() {
		defer close(st.done)
		defer unsubFeed()
		defer unsubSlide()
		r.warm(ctx, engine)
		engine.Run(ctx, feedCh, slideCh)
	}()

	return st, nil
}

// warm queues one filler fragment on the engine's pending buffer so a new
// station has audio before its first song is encoded. The regular queue is
// left free for songs.
func (r *Registry) warm(ctx context.Context, engine *Engine) {
	filler := r.deps.Filler
	if !filler.IsAvailable() {
		return
	}
	f := filler.CreateFragment(ctx)
	if ctx.Err() != nil || f.Len() == 0 {
		return
	}
	engine.Warm(f)
	r.metrics.IncFragmentsDispatched("filler")
}

func subscribe(ts TickSource) (<-chan time.Time, func()) {
	if ts == nil {
		return nil, func() {}
	}
	return ts.Subscribe()
}

// Get returns the running station for brand. It never creates one.
func (r *Registry) Get(brand string) (*Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetStation(NormalizeBrand(brand))
}

// Stop removes brand's station and releases its resources. ok is false when
// no station was running.
func (r *Registry) Stop(brand string) (st *Station, ok bool) {
	key := NormalizeBrand(brand)

	r.mu.Lock()
	st, ok = r.store.GetStation(key)
	if ok {
		r.store.DeleteStation(key)
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	st.stop()
	r.metrics.IncStationsStopped()
	r.log.Info("station stopped", slog.String("brand", key))
	return st, true
}

// List returns the running stations sorted by brand.
func (r *Registry) List() []*Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.ListStations()
}

// Count returns the number of running stations.
func (r *Registry) Count() int {
	return len(r.List())
}

// StartWhitelist initializes every brand in brands. A brand that fails to
// start is logged and does not prevent the others from starting; the
// returned error joins all failures.
func (r *Registry) StartWhitelist(ctx context.Context, brands []string) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(whitelistParallelism)

	for _, brand := range brands {
		g.Go(func() error {
			if _, err := r.Initialize(ctx, brand); err != nil {
				r.log.Error("whitelisted station failed to start",
					slog.String("brand", brand),
					slog.String("error", err.Error()))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", brand, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Shutdown stops every running station and waits for their supplier
// workers to return.
func (r *Registry) Shutdown() {
	var stopped []*Station
	for _, st := range r.List() {
		if st, ok := r.Stop(st.Brand); ok {
			stopped = append(stopped, st)
		}
	}
	for _, st := range stopped {
		st.Supplier.Wait()
	}
}
