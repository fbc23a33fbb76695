package radio

import (
	"context"
	"fmt"
)

// Service is the brand-level API used by the HTTP and messaging layers.
// It resolves brands through the Registry and never creates stations on reads.
type Service struct {
	registry *Registry
}

// NewService returns a Service backed by registry.
func NewService(registry *Registry) *Service {
	return &Service{registry: registry}
}

// Registry returns the underlying registry.
func (s *Service) Registry() *Registry { return s.registry }

// MasterPlaylist returns the multi-variant playlist for brand.
func (s *Service) MasterPlaylist(brand string) (m3u8 string, ok bool) {
	st, ok := s.registry.Get(brand)
	if !ok {
		return "", false
	}
	return st.Engine.MasterPlaylist(), true
}

// Playlist returns brand's media playlist for bitrate. A zero bitrate selects
// the first bitrate of the ladder.
func (s *Service) Playlist(brand string, bitrate int64) (m3u8 string, ok bool) {
	st, ok := s.registry.Get(brand)
	if !ok {
		return "", false
	}
	if bitrate == 0 {
		bitrate = st.Engine.DefaultBitrate()
	}
	return st.Engine.Playlist(bitrate)
}

// Segment returns the segment named filename from brand's live window.
func (s *Service) Segment(brand, filename string) (Segment, bool) {
	st, ok := s.registry.Get(brand)
	if !ok {
		return Segment{}, false
	}
	return st.Engine.Segment(filename)
}

// NowPlaying returns the metadata of brand's most recently dispatched fragments.
func (s *Service) NowPlaying(brand string) ([]Metadata, bool) {
	st, ok := s.registry.Get(brand)
	if !ok {
		return nil, false
	}
	return st.Supplier.Recent(), true
}

// StartStation initializes brand and returns its state.
func (s *Service) StartStation(ctx context.Context, brand string) (StationInfo, error) {
	st, err := s.registry.Initialize(ctx, brand)
	if err != nil {
		return StationInfo{}, err
	}
	return st.Info(), nil
}

// StopStation stops brand. It reports whether a station was running.
func (s *Service) StopStation(brand string) bool {
	_, ok := s.registry.Stop(brand)
	return ok
}

// Stations returns the state of every running station.
func (s *Service) Stations() []StationInfo {
	list := s.registry.List()
	out := make([]StationInfo, 0, len(list))
	for _, st := range list {
		out = append(out, st.Info())
	}
	return out
}

// Submit queues song on brand's station with the given priority.
func (s *Service) Submit(brand string, song Song, priority int) error {
	st, ok := s.registry.Get(brand)
	if !ok {
		return fmt.Errorf("station %q: %w", brand, ErrNotFound)
	}
	if song.Brand == "" {
		song.Brand = st.Brand
	}
	if err := st.Supplier.Submit(song, priority); err != nil {
		return fmt.Errorf("station %q: %w", brand, err)
	}
	return nil
}
