package pump

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gigsync/internal/oplog"
)

func entry(path string, date int64) oplog.Entry {
	return oplog.Entry{Type: "counter", Path: path, Op: oplog.Op{Date: date, SHA: path}}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestListenTimesOutWithEmptyBatch(t *testing.T) {
	p := New(WithDelay(20 * time.Millisecond))
	start := time.Now()
	id, out, err := p.Listen(context.Background(), "7", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "7_"))
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPushWakesPendingListener(t *testing.T) {
	p := New(WithDelay(5 * time.Second))
	id := "7_r1"

	type result struct {
		out []oplog.Entry
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, out, err := p.Listen(context.Background(), "7", id)
		done <- result{out, err}
	}()
	require.Eventually(t, func() bool { return waiting(p, "7", id) }, time.Second, time.Millisecond)

	start := time.Now()
	p.Push("7", entry("/a", 1))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Len(t, r.out, 1)
		assert.Equal(t, "/a", r.out[0].Path)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("listener not woken")
	}
}

func waiting(p *Pump, user, id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	reg, ok := p.users[user][id]
	return ok && reg.waiter != nil
}

func TestBacklogDrainedSortedByDate(t *testing.T) {
	p := New(WithDelay(10 * time.Millisecond))
	id, _, err := p.Listen(context.Background(), "7", "")
	require.NoError(t, err)

	p.Push("7", entry("/c", 30))
	p.Push("7", entry("/a", 10))
	p.Push("7", entry("/b", 20))
	p.Push("8", entry("/other", 1))

	_, out, err := p.Listen(context.Background(), "7", id)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"/a", "/b", "/c"}, []string{out[0].Path, out[1].Path, out[2].Path})

	_, out, err = p.Listen(context.Background(), "7", id)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSecondListenerIsCallbackPending(t *testing.T) {
	p := New(WithDelay(time.Second))
	id := "r1"

	go func() { _, _, _ = p.Listen(context.Background(), "7", id) }()
	require.Eventually(t, func() bool { return waiting(p, "7", id) }, time.Second, time.Millisecond)

	_, _, err := p.Listen(context.Background(), "7", id)
	require.ErrorIs(t, err, ErrCallbackPending)
	p.Push("7", entry("/unblock", 1))
}

func TestCancelledListenKeepsDelivery(t *testing.T) {
	p := New(WithDelay(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := p.Listen(ctx, "7", "r1")
		errc <- err
	}()
	require.Eventually(t, func() bool { return waiting(p, "7", "r1") }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	p.Push("7", entry("/later", 5))
	_, out, err := p.Listen(context.Background(), "7", "r1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "/later", out[0].Path)
}

func TestIdleRegistrationsExpire(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	p := New(WithDelay(5*time.Millisecond), WithTimeout(time.Minute), WithClock(c.now))

	_, _, err := p.Listen(context.Background(), "7", "old")
	require.NoError(t, err)
	c.advance(2 * time.Minute)
	_, _, err = p.Listen(context.Background(), "7", "fresh")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Registrations("7"))

	p.Push("7", entry("/x", 1))
	assert.Equal(t, 1, p.Registrations("7"))

	_, out, err := p.Listen(context.Background(), "7", "fresh")
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestInvalidUser(t *testing.T) {
	_, _, err := New().Listen(context.Background(), "", "")
	require.ErrorIs(t, err, ErrInvalidUserID)
}
