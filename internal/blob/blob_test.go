package blob

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"a/b":          "/a/b",
		"/a//b/":       "/a/b",
		"../../etc/pw": "/etc/pw",
		"/x/../y":      "/y",
	}
	for in, want := range cases {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "/", "..", "/./"} {
		_, err := CleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestMemoryGetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Get(ctx, "1/root/counter/x")
	require.True(t, IsNotFound(err))

	require.NoError(t, m.Put(ctx, "1/root/counter/x", []byte(`[1]`)))
	b, err := m.Get(ctx, "/1/root/counter/x")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(b))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "nope"})
	require.Error(t, err)
	assert.Contains(t, ListAdapters(), "memory")
}

func TestLockerFIFO(t *testing.T) {
	var l Locker
	ctx := context.Background()

	first, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			rel, err := l.Lock(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			rel()
		}()
		require.Eventually(t, func() bool { return l.Pending("k") == i+1 }, time.Second, time.Millisecond)
	}

	first()
	first() // segunda llamada no libera a nadie más
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, l.Pending("k"))
}

func TestLockerIndependentKeys(t *testing.T) {
	var l Locker
	ctx := context.Background()
	a, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer a()

	done := make(chan struct{})
	go func() {
		b, err := l.Lock(ctx, "b")
		if err == nil {
			b()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestLockerCancelLeavesQueue(t *testing.T) {
	var l Locker
	held, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Pending("k"))

	held()
	rel, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	rel()
}

func TestLockerNormalizesKeys(t *testing.T) {
	var l Locker
	rel, err := l.Lock(context.Background(), "counter//x")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Pending("/counter/x"))
	rel()
	assert.Equal(t, 0, l.Pending("counter/x"))
}
