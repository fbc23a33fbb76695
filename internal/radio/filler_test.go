package radio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFiller_static(t *testing.T) {
	f := NewStaticFiller(newFragment("loop", 3), testLog())
	if !f.IsAvailable() {
		t.Fatal("static filler should be available")
	}
	a := f.CreateFragment(context.Background())
	b := f.CreateFragment(context.Background())
	if a.Priority != FillerPriority || a.Len() != 3 {
		t.Errorf("unexpected filler fragment: priority %d, %d segments", a.Priority, a.Len())
	}

	a.Segments[128000] = a.Segments[128000][:1]
	a.Segments[64000][1].Data[0] = '#'
	if len(b.Segments[128000]) != 3 {
		t.Error("truncating one copy changed another")
	}
	if b.Segments[64000][1].Data[0] == '#' {
		t.Error("copies share payload bytes")
	}
}

func TestFiller_empty_path_is_unavailable(t *testing.T) {
	f := NewFiller("", testBitrates, &fakeEncoder{}, time.Second, testLog())
	if f.IsAvailable() {
		t.Error("filler without a path should be unavailable")
	}
	var nilFiller *Filler
	if nilFiller.IsAvailable() {
		t.Error("nil filler should be unavailable")
	}
}

func TestFiller_segments_once(t *testing.T) {
	enc := &fakeEncoder{}
	f := NewFiller("/media/filler.mp3", testBitrates, enc, time.Second, testLog())

	var wg sync.WaitGroup
	frags := make([]*Fragment, 8)
	for i := range frags {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			frags[i] = f.CreateFragment(context.Background())
		}(i)
	}
	wg.Wait()

	if n := enc.calls.Load(); n != 1 {
		t.Errorf("encoder called %d times, want 1", n)
	}
	want := uuid.NewSHA1(uuid.NameSpaceURL, []byte("filler:/media/filler.mp3"))
	for i, fr := range frags {
		if fr.ID != want || len(fr.Segments) != len(testBitrates) {
			t.Errorf("fragment %d: id %s with %d segments", i, fr.ID, fr.Len())
		}
	}
	if frags[0] == frags[1] {
		t.Error("each call should return its own copy")
	}
}

func TestFiller_placeholder_while_preparing(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{})}
	f := NewFiller("/media/filler.mp3", testBitrates, enc, 10*time.Millisecond, testLog())
	defer close(enc.block)

	if !f.IsAvailable() {
		t.Fatal("filler should report available while preparing")
	}
	start := time.Now()
	fr := f.CreateFragment(context.Background())
	if fr.ID != uuid.Nil || fr.Len() != 0 {
		t.Errorf("expected placeholder, got %+v", fr)
	}
	if time.Since(start) > time.Second {
		t.Error("wait was not bounded")
	}
}

func TestFiller_placeholder_on_cancel(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{})}
	f := NewFiller("/media/filler.mp3", testBitrates, enc, time.Minute, testLog())
	defer close(enc.block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if fr := f.CreateFragment(ctx); fr.Len() != 0 {
		t.Errorf("expected placeholder on cancelled context, got %d segments", fr.Len())
	}
}

func TestFiller_encoder_failure(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("corrupt file")}
	f := NewFiller("/media/filler.mp3", testBitrates, enc, time.Second, testLog())

	fr := f.CreateFragment(context.Background())
	if fr.Len() != 0 {
		t.Errorf("failed filler should yield a placeholder, got %d segments", fr.Len())
	}
	if f.IsAvailable() {
		t.Error("failed filler should report unavailable")
	}
	if enc.calls.Load() != 1 {
		t.Error("failed segmentation must not be retried")
	}
}

func TestFiller_without_encoder(t *testing.T) {
	f := NewFiller("/media/filler.mp3", testBitrates, nil, time.Second, testLog())
	if f.IsAvailable() {
		t.Error("filler without encoder should be unavailable")
	}
	if fr := f.CreateFragment(context.Background()); fr.Len() != 0 {
		t.Error("expected placeholder")
	}
}
