package radio

import "context"

// SongSource lists the content available to a brand.
type SongSource interface {
	ListBrandSongs(ctx context.Context, brand string, itemType ItemType) ([]Song, error)
}

// SongCache is implemented by song sources that cache listings. A station
// drops its brand's cached listing when it starts.
type SongCache interface {
	Invalidate(ctx context.Context, brand string) error
}

// Materializer makes a song's audio available as a local file.
// The returned release func removes any temporary copy and must always be called.
type Materializer interface {
	Materialize(ctx context.Context, song Song) (path string, release func(), err error)
}

// Encoder cuts a local audio file into transport-stream segments for each bitrate.
// Sequence numbers on the returned segments are ignored; the engine assigns them.
type Encoder interface {
	Segment(ctx context.Context, meta Metadata, sourceFile string, bitrates []int64) (map[int64][]Segment, error)
}

// FragmentSource is what an Engine pulls fragments from on each feed tick.
type FragmentSource interface {
	Next(ctx context.Context) (*Fragment, bool)
}
