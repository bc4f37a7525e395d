// ABOUTME: Tests for the seen-key cache and the Matrix event filter
// ABOUTME: Uses a fake clock to check expiry without sleeping

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache[string], *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[string](ttl, size)
	c.now = clock.Now
	return c, clock
}

func TestCache_FirstSightIsNew(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)

	assert.False(t, c.Seen("a"))
	assert.True(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
	assert.Equal(t, 2, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Seen("a")
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("a"))

	clock.Advance(time.Second)
	assert.False(t, c.Seen("a"), "expired keys count as new")
}

func TestCache_RepeatDoesNotRefresh(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Seen("a")
	clock.Advance(40 * time.Second)
	c.Seen("a")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	c, clock := newTestCache(time.Hour, 3)

	for _, k := range []string{"a", "b", "c"} {
		c.Seen(k)
		clock.Advance(time.Second)
	}
	c.Seen("d")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("a"), "a was evicted")
	assert.True(t, c.Seen("d"))
}

func TestCache_Defaults(t *testing.T) {
	c := New[int](0, -1)
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, DefaultSize, c.maxSize)
}

func TestCache_ConcurrentSeenMarksOnce(t *testing.T) {
	c := New[string](time.Minute, 1000)

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("shared") {
				fresh.Add(1)
			}
			c.Seen(fmt.Sprintf("k-%d", i))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
	assert.Equal(t, 51, c.Len())
}

func TestEventFilter(t *testing.T) {
	started := time.Unix(1_700_000_000, 0)
	f := NewEventFilter("@limimin:example.org", started)

	msg := func(evtID id.EventID, sender id.UserID, at time.Time) *event.Event {
		return &event.Event{ID: evtID, Sender: sender, Timestamp: at.UnixMilli()}
	}
	later := started.Add(time.Second)

	assert.Equal(t, Admitted, f.Admit(msg("$1", "@alice:example.org", later)))
	assert.Equal(t, Duplicate, f.Admit(msg("$1", "@alice:example.org", later)))
	assert.Equal(t, FromSelf, f.Admit(msg("$2", "@limimin:example.org", later)))
	assert.Equal(t, Backlog, f.Admit(msg("$3", "@alice:example.org", started.Add(-time.Second))))
	assert.Equal(t, Admitted, f.Admit(msg("$4", "@bob:example.org", started)))
}
