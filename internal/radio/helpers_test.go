package radio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hls-radio/internal/platform/logger"

	"github.com/google/uuid"
)

var testBitrates = []int64{128000, 64000}

func testLog() *slog.Logger { return logger.Discard() }

func testStreamSettings() StreamSettings {
	s := DefaultStreamSettings()
	s.Bitrates = append([]int64(nil), testBitrates...)
	return s
}

// newFragment builds a fragment with n segments per bitrate. Each payload
// encodes title, bitrate and index so that lookups can be verified.
func newFragment(title string, n int, bitrates ...int64) *Fragment {
	if len(bitrates) == 0 {
		bitrates = testBitrates
	}
	meta := Metadata{ContentID: uuid.New(), Title: title, Artist: "Tester"}
	f := &Fragment{ID: meta.ContentID, Metadata: meta, Segments: make(map[int64][]Segment)}
	for _, br := range bitrates {
		for i := 0; i < n; i++ {
			f.Segments[br] = append(f.Segments[br], Segment{
				Bitrate:  br,
				Duration: 6,
				Data:     []byte(fmt.Sprintf("%s/%d/%d", title, br, i)),
			})
		}
	}
	return f
}

// sliceSource hands out queued fragments in order, then nothing.
type sliceSource struct {
	mu    sync.Mutex
	frags []*Fragment
	calls int
}

func (s *sliceSource) Next(ctx context.Context) (*Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.frags) == 0 {
		return nil, false
	}
	f := s.frags[0]
	s.frags = s.frags[1:]
	return f, true
}

func newTestEngine(t *testing.T, settings StreamSettings, frags ...*Fragment) (*Engine, *sliceSource) {
	t.Helper()
	src := &sliceSource{frags: frags}
	e, err := NewEngine("alpha", settings, src, testLog(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, src
}

type fakeSongSource struct {
	mu    sync.Mutex
	songs []Song
	err   error
	calls int
}

func (f *fakeSongSource) ListBrandSongs(ctx context.Context, brand string, itemType ItemType) ([]Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.songs, f.err
}

type fakeMaterializer struct {
	err error
}

func (f fakeMaterializer) Materialize(ctx context.Context, song Song) (string, func(), error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return "mem://" + song.Key, func() {}, nil
}

// fakeEncoder produces one segment per bitrate. If block is set it waits for
// it to be closed first, ignoring ctx.
type fakeEncoder struct {
	calls   atomic.Int32
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeEncoder) Segment(ctx context.Context, meta Metadata, sourceFile string, bitrates []int64) (map[int64][]Segment, error) {
	f.calls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64][]Segment, len(bitrates))
	for _, br := range bitrates {
		out[br] = []Segment{{Bitrate: br, Duration: 6, Data: []byte(meta.Title + "@" + sourceFile)}}
	}
	return out, nil
}

func songs(titles ...string) []Song {
	out := make([]Song, len(titles))
	for i, title := range titles {
		key := "alpha/songs/" + title + ".mp3"
		out[i] = Song{
			ID:    uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)),
			Brand: "alpha",
			Key:   key,
			Title: title,
			Type:  ItemSong,
		}
	}
	return out
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
