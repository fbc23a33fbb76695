package radio

import "testing"

func TestPriorityQueue_order(t *testing.T) {
	var q priorityQueue
	a := &Fragment{Metadata: Metadata{Title: "a"}}
	b := &Fragment{Metadata: Metadata{Title: "b"}}
	c := &Fragment{Metadata: Metadata{Title: "c"}}
	d := &Fragment{Metadata: Metadata{Title: "d"}}

	q.push(a, 10)
	q.push(b, 2)
	q.push(c, 10)
	q.push(d, 2)

	var got []string
	for {
		f, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, f.Metadata.Title)
	}
	want := []string{"b", "d", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFIFO_capacity(t *testing.T) {
	q := fifo{capacity: 2}
	if !q.push(&Fragment{}) || !q.push(&Fragment{}) {
		t.Fatal("first two pushes should succeed")
	}
	if q.push(&Fragment{}) {
		t.Error("push beyond capacity should fail")
	}
	if _, ok := q.pop(); !ok {
		t.Error("pop should succeed")
	}
	if !q.push(&Fragment{}) {
		t.Error("push after pop should succeed")
	}
	q.reset()
	if _, ok := q.pop(); ok {
		t.Error("pop after reset should fail")
	}
}
