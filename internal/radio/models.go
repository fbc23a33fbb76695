package radio

import (
	"time"

	"github.com/google/uuid"
)

// FillerPriority marks fragments that come from the filler provider.
const FillerPriority = 999

// Metadata is the display information attached to a fragment and each of its segments.
type Metadata struct {
	ContentID uuid.UUID `json:"content_id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
}

// Label returns the "Artist - Title" string used in #EXTINF lines.
func (m Metadata) Label() string {
	switch {
	case m.Artist == "":
		return m.Title
	case m.Title == "":
		return m.Artist
	default:
		return m.Artist + " - " + m.Title
	}
}

// Segment is a single transport-stream chunk at one bitrate.
type Segment struct {
	Sequence        int64
	Bitrate         int64
	Duration        float64
	Data            []byte
	Metadata        Metadata
	FirstOfFragment bool
}

// Fragment is one playable unit (song or filler) after segmentation.
// Segments holds one ordered segment list per bitrate.
type Fragment struct {
	ID       uuid.UUID
	Priority int
	Metadata Metadata
	Segments map[int64][]Segment
}

// Len returns the number of segment groups the fragment produces,
// i.e. the length of its longest bitrate list.
func (f *Fragment) Len() int {
	n := 0
	for _, segs := range f.Segments {
		if len(segs) > n {
			n = len(segs)
		}
	}
	return n
}

// Clone returns a deep copy; payload bytes are not shared with f.
func (f *Fragment) Clone() *Fragment {
	out := &Fragment{
		ID:       f.ID,
		Priority: f.Priority,
		Metadata: f.Metadata,
		Segments: make(map[int64][]Segment, len(f.Segments)),
	}
	for bitrate, segs := range f.Segments {
		cp := make([]Segment, len(segs))
		for i, s := range segs {
			s.Data = append([]byte(nil), s.Data...)
			cp[i] = s
		}
		out.Segments[bitrate] = cp
	}
	return out
}

// ItemType distinguishes the kinds of content a song source can list.
type ItemType string

const (
	ItemSong         ItemType = "song"
	ItemAnnouncement ItemType = "announcement"
	ItemJingle       ItemType = "jingle"
)

// Song is a library entry that still has to be materialized and encoded.
type Song struct {
	ID     uuid.UUID `json:"id"`
	Brand  string    `json:"brand"`
	Key    string    `json:"key"`
	Title  string    `json:"title"`
	Artist string    `json:"artist"`
	Type   ItemType  `json:"type"`
}

// Metadata returns the display metadata for s.
func (s Song) Metadata() Metadata {
	return Metadata{ContentID: s.ID, Title: s.Title, Artist: s.Artist}
}

// segmentGroup is the set of segments, one per bitrate, that share a sequence number.
type segmentGroup struct {
	seq      int64
	segments map[int64]Segment
}

// StationInfo is the externally visible summary of a running station.
type StationInfo struct {
	Brand        string     `json:"brand"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	SupplierMode string     `json:"supplier_state"`
	Window       []int64    `json:"window"`
	Pending      int        `json:"pending"`
	Prioritized  int        `json:"prioritized"`
	Regular      int        `json:"regular"`
	NowPlaying   []Metadata `json:"recent,omitempty"`
}
