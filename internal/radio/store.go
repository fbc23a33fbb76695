package radio

import "sort"

// Store is the lookup abstraction for running stations.
// Implementations are not required to be safe for concurrent use; the
// Registry serializes access to them.
type Store interface {
	GetStation(brand string) (*Station, bool)
	SetStation(st *Station)
	DeleteStation(brand string)
	ListStations() []*Station
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	stations map[string]*Station
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		stations: make(map[string]*Station),
	}
}

// GetStation implements Store.GetStation.
func (s *InMemoryStore) GetStation(brand string) (*Station, bool) {
	st, ok := s.stations[brand]
	return st, ok
}

// SetStation implements Store.SetStation.
func (s *InMemoryStore) SetStation(st *Station) {
	s.stations[st.Brand] = st
}

// DeleteStation implements Store.DeleteStation.
func (s *InMemoryStore) DeleteStation(brand string) {
	delete(s.stations, brand)
}

// ListStations implements Store.ListStations. Stations are sorted by brand.
func (s *InMemoryStore) ListStations() []*Station {
	out := make([]*Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Brand < out[j].Brand })
	return out
}
