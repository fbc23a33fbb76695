package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hls-radio/internal/platform/logger"
	"hls-radio/internal/radio"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirSource_ListBrandSongs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha", "songs", "Nina Simone - Sinnerman.mp3"), "a")
	writeFile(t, filepath.Join(root, "alpha", "songs", "Interlude.flac"), "b")
	writeFile(t, filepath.Join(root, "alpha", "songs", "cover.jpg"), "c")
	writeFile(t, filepath.Join(root, "alpha", "jingles", "Station ID.wav"), "d")

	src := NewDirSource(root)

	songs, err := src.ListBrandSongs(context.Background(), "alpha", radio.ItemSong)
	if err != nil {
		t.Fatalf("ListBrandSongs: %v", err)
	}
	got := make([]string, len(songs))
	for i, s := range songs {
		got[i] = s.Artist + "|" + s.Title + "|" + s.Key
	}
	want := []string{
		"|Interlude|alpha/songs/Interlude.flac",
		"Nina Simone|Sinnerman|alpha/songs/Nina Simone - Sinnerman.mp3",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("songs (-want +got):\n%s", diff)
	}

	again, _ := src.ListBrandSongs(context.Background(), "alpha", radio.ItemSong)
	if again[0].ID != songs[0].ID {
		t.Error("song ids must be stable across listings")
	}

	t.Run("missing_brand_is_empty", func(t *testing.T) {
		songs, err := src.ListBrandSongs(context.Background(), "nobody", radio.ItemSong)
		if err != nil || len(songs) != 0 {
			t.Errorf("got %v, %v; want empty, nil", songs, err)
		}
	})

	t.Run("unknown_type", func(t *testing.T) {
		if _, err := src.ListBrandSongs(context.Background(), "alpha", radio.ItemType("podcast")); err == nil {
			t.Error("expected error for unknown item type")
		}
	})
}

type countingSource struct {
	calls atomic.Int32
	songs []radio.Song
	err   error
}

func (c *countingSource) ListBrandSongs(ctx context.Context, brand string, itemType radio.ItemType) ([]radio.Song, error) {
	c.calls.Add(1)
	return c.songs, c.err
}

func newCache(t *testing.T, next radio.SongSource) (*miniredis.Miniredis, *CachedSource) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewCachedSource(next, client, time.Minute, logger.Discard())
}

func TestCachedSource(t *testing.T) {
	songs := []radio.Song{{Brand: "alpha", Key: "alpha/songs/a.mp3", Title: "A", Type: radio.ItemSong}}

	t.Run("second_listing_served_from_redis", func(t *testing.T) {
		next := &countingSource{songs: songs}
		_, cache := newCache(t, next)

		for i := 0; i < 3; i++ {
			got, err := cache.ListBrandSongs(context.Background(), "alpha", radio.ItemSong)
			if err != nil {
				t.Fatalf("ListBrandSongs: %v", err)
			}
			if diff := cmp.Diff(songs, got); diff != "" {
				t.Fatalf("songs (-want +got):\n%s", diff)
			}
		}
		if n := next.calls.Load(); n != 1 {
			t.Errorf("underlying source called %d times, want 1", n)
		}
	})

	t.Run("expired_entry_refetched", func(t *testing.T) {
		next := &countingSource{songs: songs}
		mr, cache := newCache(t, next)

		_, _ = cache.ListBrandSongs(context.Background(), "alpha", radio.ItemSong)
		mr.FastForward(2 * time.Minute)
		_, _ = cache.ListBrandSongs(context.Background(), "alpha", radio.ItemSong)

		if n := next.calls.Load(); n != 2 {
			t.Errorf("underlying source called %d times, want 2", n)
		}
	})

	t.Run("redis_down_falls_back", func(t *testing.T) {
		next := &countingSource{songs: songs}
		mr, cache := newCache(t, next)
		mr.Close()

		got, err := cache.ListBrandSongs(context.Background(), "alpha", radio.ItemSong)
		if err != nil {
			t.Fatalf("expected fallback without error, got %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d songs, want 1", len(got))
		}
	})

	t.Run("invalidate_drops_brand_listings", func(t *testing.T) {
		next := &countingSource{songs: songs}
		mr, cache := newCache(t, next)
		ctx := context.Background()

		_, _ = cache.ListBrandSongs(ctx, "alpha", radio.ItemSong)
		_, _ = cache.ListBrandSongs(ctx, "alpha", radio.ItemJingle)
		_, _ = cache.ListBrandSongs(ctx, "beta", radio.ItemSong)

		if err := cache.Invalidate(ctx, "alpha"); err != nil {
			t.Fatalf("Invalidate: %v", err)
		}
		if mr.Exists(cacheKey("alpha", radio.ItemSong)) || mr.Exists(cacheKey("alpha", radio.ItemJingle)) {
			t.Error("alpha listings should be gone")
		}
		if !mr.Exists(cacheKey("beta", radio.ItemSong)) {
			t.Error("other brands must keep their listings")
		}

		_, _ = cache.ListBrandSongs(ctx, "alpha", radio.ItemSong)
		if n := next.calls.Load(); n != 4 {
			t.Errorf("underlying source called %d times, want 4", n)
		}
	})

	t.Run("source_error_not_cached", func(t *testing.T) {
		next := &countingSource{err: errors.New("db down")}
		mr, cache := newCache(t, next)

		if _, err := cache.ListBrandSongs(context.Background(), "alpha", radio.ItemSong); err == nil {
			t.Fatal("expected error")
		}
		if mr.Exists(cacheKey("alpha", radio.ItemSong)) {
			t.Error("failed listing must not be cached")
		}
	})
}

func TestLocalMaterializer(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha", "songs", "a.mp3"), "audio")
	m := NewLocalMaterializer(root)

	path, release, err := m.Materialize(context.Background(), radio.Song{Key: "alpha/songs/a.mp3"})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	release()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("local file must survive release: %v", err)
	}

	if _, _, err := m.Materialize(context.Background(), radio.Song{Key: "../etc/passwd"}); err == nil {
		t.Error("expected error for key escaping root")
	}
	if _, _, err := m.Materialize(context.Background(), radio.Song{Key: "alpha/songs/missing.mp3"}); err == nil {
		t.Error("expected error for missing file")
	}
}

type fakeGetter struct {
	body string
	err  error
	key  string
}

func (f *fakeGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Materializer(t *testing.T) {
	getter := &fakeGetter{body: "mpeg audio"}
	m := NewS3Materializer(getter, "radio", t.TempDir(), logger.Discard())

	path, release, err := m.Materialize(context.Background(), radio.Song{Key: "alpha/songs/a.mp3"})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if getter.key != "alpha/songs/a.mp3" {
		t.Errorf("requested key %q", getter.key)
	}
	if filepath.Ext(path) != ".mp3" {
		t.Errorf("temp file %q should keep the extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(data, []byte("mpeg audio")) {
		t.Errorf("downloaded content = %q, %v", data, err)
	}

	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("release should remove the temp file, stat err = %v", err)
	}

	t.Run("get_error", func(t *testing.T) {
		m := NewS3Materializer(&fakeGetter{err: errors.New("no such key")}, "radio", t.TempDir(), logger.Discard())
		if _, _, err := m.Materialize(context.Background(), radio.Song{Key: "x.mp3"}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestParseSegmentList(t *testing.T) {
	in := "00000.ts,0.000000,6.000000\n00001.ts,6.000000,12.000000\n00002.ts,12.000000,14.500000\n"
	entries, err := parseSegmentList(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parseSegmentList: %v", err)
	}
	want := []listEntry{{"00000.ts", 6}, {"00001.ts", 6}, {"00002.ts", 2.5}}
	if diff := cmp.Diff(want, entries, cmp.AllowUnexported(listEntry{})); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}

	if _, err := parseSegmentList(strings.NewReader("a.ts,zero,1\n")); err == nil {
		t.Error("expected error for bad start")
	}
}

func TestSegmentArgs(t *testing.T) {
	args := strings.Join(segmentArgs("/in/song.mp3", "/out", "/out/list.csv", 64000, 6*time.Second), " ")
	for _, want := range []string{
		"-i /in/song.mp3",
		"-b:a 64000",
		"-segment_time 6",
		"-segment_format mpegts",
		"-segment_list /out/list.csv",
		"/out/%05d.ts",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
}

func TestFFmpegEncoder_missing_source(t *testing.T) {
	enc := NewFFmpegEncoder("ffmpeg", t.TempDir(), 6*time.Second, logger.Discard())
	_, err := enc.Segment(context.Background(), radio.Metadata{}, filepath.Join(t.TempDir(), "nope.mp3"), []int64{64000})
	if err == nil {
		t.Error("expected error for missing source")
	}
}
