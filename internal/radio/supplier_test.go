package radio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSupplier(t *testing.T, settings SupplierSettings, deps SupplierDeps) *Supplier {
	t.Helper()
	s, err := NewSupplier("alpha", settings, testBitrates, deps, testLog(), nil)
	if err != nil {
		t.Fatalf("NewSupplier: %v", err)
	}
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})
	return s
}

func TestSupplier_prioritized_before_regular(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{})

	urgent := newFragment("urgent", 1)
	normal := newFragment("normal", 1)
	if !s.AddFragment(urgent, 5) {
		t.Fatal("AddFragment(5) rejected")
	}
	if !s.AddFragment(normal, 50) {
		t.Fatal("AddFragment(50) rejected")
	}

	got, ok := s.Next(context.Background())
	if !ok || got != urgent {
		t.Fatalf("expected the priority-5 fragment first, got %v", got)
	}
	got, ok = s.Next(context.Background())
	if !ok || got != normal {
		t.Fatalf("expected the regular fragment second, got %v", got)
	}
}

func TestSupplier_prioritized_ties_are_fifo(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{})
	regular := newFragment("regular", 1)
	first := newFragment("first", 1)
	second := newFragment("second", 1)
	more := newFragment("more-urgent", 1)

	s.AddFragment(regular, SongPriority)
	s.AddFragment(first, 7)
	s.AddFragment(second, 7)
	s.AddFragment(more, 1)

	for _, want := range []*Fragment{more, first, second, regular} {
		got, ok := s.Next(context.Background())
		if !ok || got != want {
			t.Fatalf("got %q, want %q", got.Metadata.Title, want.Metadata.Title)
		}
	}
}

func TestSupplier_threshold_is_inclusive(t *testing.T) {
	settings := DefaultSupplierSettings()
	settings.RegularCapacity = 1
	s := newTestSupplier(t, settings, SupplierDeps{})

	s.AddFragment(newFragment("r", 1), 13)
	s.AddFragment(newFragment("p", 1), 12)
	prioritized, regular := s.Depth()
	if prioritized != 1 || regular != 1 {
		t.Errorf("depth = %d/%d, want 1/1", prioritized, regular)
	}
}

func TestSupplier_regular_capacity(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{})

	if !s.AddFragment(newFragment("a", 1), 50) || !s.AddFragment(newFragment("b", 1), 50) {
		t.Fatal("first two regular fragments should be accepted")
	}
	if s.AddFragment(newFragment("c", 1), 50) {
		t.Error("third regular fragment should be rejected at capacity 2")
	}
	for i := 0; i < 10; i++ {
		if !s.AddFragment(newFragment("urgent", 1), 1) {
			t.Fatal("prioritized queue must accept regardless of depth")
		}
	}
	prioritized, regular := s.Depth()
	if prioritized != 10 || regular != 2 {
		t.Errorf("depth = %d/%d, want 10/2", prioritized, regular)
	}
}

func TestSupplier_empty_returns_independent_filler(t *testing.T) {
	filler := NewStaticFiller(newFragment("filler", 2), testLog())
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{Filler: filler})

	a, ok := s.Next(context.Background())
	if !ok {
		t.Fatal("expected filler fragment")
	}
	b, ok := s.Next(context.Background())
	if !ok {
		t.Fatal("expected second filler fragment")
	}
	if a == b {
		t.Fatal("filler fragments must be distinct values")
	}
	if a.Priority != FillerPriority {
		t.Errorf("filler priority = %d, want %d", a.Priority, FillerPriority)
	}

	a.Segments[64000][0].Data[0] = 'X'
	if b.Segments[64000][0].Data[0] == 'X' {
		t.Error("filler fragments share segment data")
	}
	if s.State() != StateStarving {
		t.Errorf("state = %s, want %s", s.State(), StateStarving)
	}
}

func TestSupplier_empty_without_filler(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{})
	if f, ok := s.Next(context.Background()); ok || f != nil {
		t.Errorf("expected no fragment, got %v", f)
	}
}

func TestSupplier_starvation_cooldown(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{})

	s.Next(context.Background())
	if len(s.feeds) != 1 {
		t.Fatalf("first empty poll should request a feed, queued = %d", len(s.feeds))
	}
	<-s.feeds

	s.Next(context.Background())
	s.Next(context.Background())
	if len(s.feeds) != 0 {
		t.Errorf("polls within the cooldown must not request feeds, queued = %d", len(s.feeds))
	}
}

func TestSupplier_Stop(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{Filler: NewStaticFiller(newFragment("f", 1), testLog())})
	s.AddFragment(newFragment("a", 1), 1)
	s.AddFragment(newFragment("b", 1), 50)

	s.Stop()
	s.Stop()

	if p, r := s.Depth(); p != 0 || r != 0 {
		t.Errorf("queues should be cleared, depth = %d/%d", p, r)
	}
	if s.AddFragment(newFragment("c", 1), 1) {
		t.Error("AddFragment after stop should be rejected")
	}
	if _, ok := s.Next(context.Background()); ok {
		t.Error("Next after stop should return nothing")
	}
	if err := s.Submit(songs("late")[0], 1); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after stop: expected ErrStopped, got %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s", s.State())
	}
}

func TestSupplier_initial_fetch_fills_regular_queue(t *testing.T) {
	src := &fakeSongSource{songs: songs("one", "two", "three")}
	enc := &fakeEncoder{}
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{
		Source:       src,
		Materializer: fakeMaterializer{},
		Encoder:      enc,
	})
	s.Start(context.Background())

	eventually(t, "initial fetch", func() bool {
		_, regular := s.Depth()
		return regular >= 1
	})

	f, ok := s.Next(context.Background())
	if !ok {
		t.Fatal("expected fetched fragment")
	}
	if f.Priority != SongPriority || len(f.Segments) != len(testBitrates) {
		t.Errorf("unexpected fragment priority %d with %d bitrates", f.Priority, len(f.Segments))
	}
	if recent := s.Recent(); len(recent) != 1 || recent[0].ContentID != f.ID {
		t.Errorf("recent = %+v", recent)
	}
}

func TestSupplier_maintenance_tops_up(t *testing.T) {
	settings := DefaultSupplierSettings()
	settings.MaintenanceDelay = 5 * time.Millisecond
	settings.MaintenanceInterval = 5 * time.Millisecond
	src := &fakeSongSource{songs: songs("one", "two", "three", "four")}
	s := newTestSupplier(t, settings, SupplierDeps{
		Source:       src,
		Materializer: fakeMaterializer{},
		Encoder:      &fakeEncoder{},
	})
	s.Start(context.Background())

	eventually(t, "regular queue at capacity", func() bool {
		_, regular := s.Depth()
		return regular == settings.RegularCapacity
	})
	s.Next(context.Background())
	s.Next(context.Background())
	eventually(t, "refill after drain", func() bool {
		_, regular := s.Depth()
		return regular == settings.RegularCapacity
	})
}

func TestSupplier_supply_failure_drops_fragment(t *testing.T) {
	src := &fakeSongSource{songs: songs("one")}
	enc := &fakeEncoder{err: errors.New("encoder crashed")}
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{
		Source:       src,
		Materializer: fakeMaterializer{},
		Encoder:      enc,
	})
	s.Start(context.Background())

	eventually(t, "encode attempt", func() bool { return enc.calls.Load() >= 1 })
	eventually(t, "fetch finished", func() bool { return s.State() != StateFeeding })
	if _, regular := s.Depth(); regular != 0 {
		t.Errorf("failed fragment should not be queued, regular = %d", regular)
	}
}

func TestSupplier_source_failure_is_not_fatal(t *testing.T) {
	src := &fakeSongSource{err: errors.New("db down")}
	filler := NewStaticFiller(newFragment("filler", 1), testLog())
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{
		Source:       src,
		Materializer: fakeMaterializer{},
		Encoder:      &fakeEncoder{},
		Filler:       filler,
	})
	s.Start(context.Background())

	f, ok := s.Next(context.Background())
	if !ok || f.Priority != FillerPriority {
		t.Errorf("station should keep playing filler, got %v %v", f, ok)
	}
}

func TestSupplier_late_result_discarded_after_stop(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, err := NewSupplier("alpha", DefaultSupplierSettings(), testBitrates, SupplierDeps{
		Source:       &fakeSongSource{songs: songs("one")},
		Materializer: fakeMaterializer{},
		Encoder:      enc,
	}, testLog(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())

	select {
	case <-enc.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("encoder was never called")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		close(enc.block)
		t.Fatal("Stop waited for the fetch in flight")
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want %s", s.State(), StateStopped)
	}

	close(enc.block)
	s.Wait()

	if p, r := s.Depth(); p != 0 || r != 0 {
		t.Errorf("late result was queued after stop, depth = %d/%d", p, r)
	}
}

func TestSupplier_Submit(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{
		Materializer: fakeMaterializer{},
		Encoder:      &fakeEncoder{},
	})
	s.Start(context.Background())

	song := songs("breaking-news")[0]
	if err := s.Submit(song, 3); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	eventually(t, "submitted fragment", func() bool {
		p, _ := s.Depth()
		return p == 1
	})
	f, ok := s.Next(context.Background())
	if !ok || f.ID != song.ID || f.Priority != 3 {
		t.Errorf("unexpected fragment %+v", f)
	}
}

func TestSupplier_pick_avoids_recent(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{})
	all := songs("a", "b", "c")
	s.dispatched(&Fragment{Metadata: all[0].Metadata()}, "regular")
	s.dispatched(&Fragment{Metadata: all[1].Metadata()}, "regular")

	for i := 0; i < 20; i++ {
		got := s.pick(all, 1)
		if len(got) != 1 || got[0].ID != all[2].ID {
			t.Fatalf("pick should prefer the song not played recently, got %+v", got)
		}
	}

	got := s.pick(all, 3)
	if len(got) != 3 {
		t.Errorf("pick should fall back to recent songs when short, got %d", len(got))
	}
}

func TestSupplier_recent_is_bounded(t *testing.T) {
	s := newTestSupplier(t, DefaultSupplierSettings(), SupplierDeps{})
	for _, title := range []string{"a", "b", "c"} {
		s.dispatched(&Fragment{Metadata: Metadata{Title: title}}, "regular")
	}
	s.dispatched(&Fragment{Priority: FillerPriority, Metadata: Metadata{Title: "filler"}}, "filler")

	recent := s.Recent()
	if len(recent) != 2 || recent[0].Title != "b" || recent[1].Title != "c" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestNewSupplier_invalid_settings(t *testing.T) {
	settings := DefaultSupplierSettings()
	settings.RegularCapacity = 0
	if _, err := NewSupplier("alpha", settings, testBitrates, SupplierDeps{}, testLog(), nil); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}
