// Package scheduler provides shared tickers that fan out to many subscribers.
//
// A single timer drives each cadence regardless of how many stations are
// running. Delivery never blocks: a subscriber that has not consumed its
// previous tick simply misses the next one.
package scheduler

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests replace it to control alignment.
type Clock func() time.Time

// Broadcaster delivers ticks at a fixed interval to every subscriber.
type Broadcaster struct {
	name     string
	interval time.Duration
	aligned  bool
	now      Clock

	// OnDrop, if set, is called for every tick a subscriber missed.
	OnDrop func(name string)

	mu      sync.Mutex
	subs    map[uint64]chan time.Time
	nextID  uint64
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewAligned returns a Broadcaster whose first tick lands on the next instant
// that is a whole multiple of interval since the Unix epoch.
func NewAligned(name string, interval time.Duration) *Broadcaster {
	return newBroadcaster(name, interval, true)
}

// NewFixed returns a Broadcaster that ticks every interval, starting one
// interval after the first subscription.
func NewFixed(name string, interval time.Duration) *Broadcaster {
	return newBroadcaster(name, interval, false)
}

func newBroadcaster(name string, interval time.Duration, aligned bool) *Broadcaster {
	if interval <= 0 {
		panic("scheduler: non-positive interval")
	}
	return &Broadcaster{
		name:     name,
		interval: interval,
		aligned:  aligned,
		now:      time.Now,
		subs:     make(map[uint64]chan time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithClock replaces the clock used to compute alignment. It must be called
// before the first Subscribe.
func (b *Broadcaster) WithClock(c Clock) *Broadcaster {
	b.now = c
	return b
}

// DelayToBoundary returns how long to wait from now until the next multiple
// of interval. A time exactly on a boundary waits a full interval.
func DelayToBoundary(now time.Time, interval time.Duration) time.Duration {
	d := int64(interval)
	return time.Duration(d - now.UnixNano()%d)
}

// Subscribe registers a new subscriber. The returned channel has room for one
// tick. cancel removes the subscription and may be called more than once.
func (b *Broadcaster) Subscribe() (<-chan time.Time, func()) {
	ch := make(chan time.Time, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if !b.started {
		b.started = true
		go b.run()
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stop halts the timer goroutine. Subscriptions stay registered but receive
// no further ticks.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	started := b.started
	select {
	case <-b.stop:
		b.mu.Unlock()
		return
	default:
		close(b.stop)
	}
	b.mu.Unlock()

	if started {
		<-b.done
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)

	first := b.interval
	if b.aligned {
		first = DelayToBoundary(b.now(), b.interval)
	}

	timer := time.NewTimer(first)
	defer timer.Stop()

	select {
	case <-b.stop:
		return
	case t := <-timer.C:
		b.publish(t)
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case t := <-ticker.C:
			b.publish(t)
		}
	}
}

// publish sends t to every subscriber without blocking.
func (b *Broadcaster) publish(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- t:
		default:
			if b.OnDrop != nil {
				b.OnDrop(b.name)
			}
		}
	}
}
