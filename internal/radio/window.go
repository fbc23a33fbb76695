package radio

import "sort"

// window is an immutable snapshot of the live window. Groups are sorted by
// sequence ascending. A new snapshot is built for every change so that readers
// can use one without locking.
type window struct {
	groups []segmentGroup
}

var emptyWindow = &window{}

func (w *window) len() int { return len(w.groups) }

// find looks up the group for seq.
func (w *window) find(seq int64) (segmentGroup, bool) {
	i := sort.Search(len(w.groups), func(i int) bool { return w.groups[i].seq >= seq })
	if i < len(w.groups) && w.groups[i].seq == seq {
		return w.groups[i], true
	}
	return segmentGroup{}, false
}

// appended returns a new snapshot with gs added at the tail.
func (w *window) appended(gs []segmentGroup) *window {
	out := make([]segmentGroup, 0, len(w.groups)+len(gs))
	out = append(out, w.groups...)
	out = append(out, gs...)
	return &window{groups: out}
}

// trimmed returns a snapshot holding at most max of the newest groups, and
// the number of groups evicted.
func (w *window) trimmed(max int) (*window, int) {
	if len(w.groups) <= max {
		return w, 0
	}
	evicted := len(w.groups) - max
	out := make([]segmentGroup, max)
	copy(out, w.groups[evicted:])
	return &window{groups: out}, evicted
}

func (w *window) sequences() []int64 {
	seqs := make([]int64, len(w.groups))
	for i, g := range w.groups {
		seqs[i] = g.seq
	}
	return seqs
}

// pick returns the segment for bitrate, falling back to the lowest bitrate
// present in the group when the exact one is missing.
func (g segmentGroup) pick(bitrate int64) (Segment, bool) {
	if s, ok := g.segments[bitrate]; ok {
		return s, true
	}
	var (
		best   Segment
		bestBr int64
		found  bool
	)
	for br, s := range g.segments {
		if !found || br < bestBr {
			best, bestBr, found = s, br, true
		}
	}
	return best, found
}
