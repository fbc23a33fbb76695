package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hls-radio/internal/radio"

	"github.com/google/uuid"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".aac":  true,
	".m4a":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
}

// typeDirs maps each item type to its directory inside a brand folder.
var typeDirs = map[radio.ItemType]string{
	radio.ItemSong:         "songs",
	radio.ItemAnnouncement: "announcements",
	radio.ItemJingle:       "jingles",
}

// DirSource lists songs from a directory tree laid out as
// <root>/<brand>/<songs|announcements|jingles>/<Artist - Title>.<ext>.
// Song keys are slash-separated paths relative to root, which is also how
// objects are named when the same tree is mirrored to a bucket.
type DirSource struct {
	Root string
}

// NewDirSource returns a DirSource rooted at root.
func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root}
}

// ListBrandSongs implements radio.SongSource. A brand without a folder has no songs.
func (d *DirSource) ListBrandSongs(ctx context.Context, brand string, itemType radio.ItemType) ([]radio.Song, error) {
	sub, ok := typeDirs[itemType]
	if !ok {
		return nil, fmt.Errorf("unknown item type %q", itemType)
	}
	dir := filepath.Join(d.Root, brand, sub)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var songs []radio.Song
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		key := brand + "/" + sub + "/" + entry.Name()
		artist, title := parseName(entry.Name())
		songs = append(songs, radio.Song{
			ID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte("song:"+key)),
			Brand:  brand,
			Key:    key,
			Title:  title,
			Artist: artist,
			Type:   itemType,
		})
	}
	sort.Slice(songs, func(i, j int) bool { return songs[i].Key < songs[j].Key })
	return songs, nil
}

// parseName splits "Artist - Title.ext" into its parts. Names without the
// separator are used as the title.
func parseName(name string) (artist, title string) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if a, t, ok := strings.Cut(base, " - "); ok {
		return strings.TrimSpace(a), strings.TrimSpace(t)
	}
	return "", strings.TrimSpace(base)
}
