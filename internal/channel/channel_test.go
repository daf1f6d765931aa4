package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/reducer"
	"github.com/dropDatabas3/gigsync/internal/store"
)

// stubStore responde siempre lo mismo; gate (si no es nil) retrasa Get.
type stubStore struct {
	id      string
	value   any
	log     oplog.Oplog
	getErr  error
	pushErr error
	gate    chan struct{}
	pushes  int32
	killed  int32
}

func (s *stubStore) ID() string { return s.id }

func (s *stubStore) Get(ctx context.Context, typ, path string) (any, oplog.Oplog, error) {
	if s.gate != nil {
		<-s.gate
	}
	return s.value, s.log, s.getErr
}

func (s *stubStore) Push(ctx context.Context, typ, path string, op oplog.Op) (any, bool, error) {
	atomic.AddInt32(&s.pushes, 1)
	return s.value, true, s.pushErr
}

func (s *stubStore) Subscribe(func(store.Mutation)) func() { return func() {} }

func (s *stubStore) Kill(context.Context) error {
	atomic.AddInt32(&s.killed, 1)
	return nil
}

func delta(t *testing.T, date int64) oplog.Op {
	t.Helper()
	op, err := oplog.NewDelta(date, map[string]any{})
	require.NoError(t, err)
	return op
}

func kill(t *testing.T, c *Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Kill(ctx))
}

func TestGetFirstSuccessWins(t *testing.T) {
	c := New("main", map[string]store.Store{
		"down": &stubStore{id: "down", getErr: errors.New("connection refused")},
		"up":   &stubStore{id: "up", value: 42, log: oplog.Empty()},
	})
	defer kill(t, c)

	v, err := c.Get(context.Background(), "counter", "/x")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestAllStoresFailed(t *testing.T) {
	boom := errors.New("boom")
	c := New("main", map[string]store.Store{
		"a": &stubStore{id: "a", getErr: boom, pushErr: boom},
		"b": &stubStore{id: "b", getErr: boom, pushErr: boom},
	})
	defer kill(t, c)

	_, err := c.Get(context.Background(), "counter", "/x")
	require.ErrorIs(t, err, ErrAllStoresFailed)
	_, err = c.Push(context.Background(), "counter", "/x", delta(t, 1))
	require.ErrorIs(t, err, ErrAllStoresFailed)

	empty := New("empty", nil)
	defer kill(t, empty)
	_, err = empty.Get(context.Background(), "counter", "/x")
	require.ErrorIs(t, err, ErrAllStoresFailed)
}

func TestApplicationErrorIsTerminal(t *testing.T) {
	gate := make(chan struct{})
	slow := &stubStore{id: "slow", value: 1, log: oplog.Empty(), gate: gate}
	c := New("main", map[string]store.Store{
		"slow":  slow,
		"local": store.NewLocal("local", reducer.NewRegistry(), nil),
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "counter", "/x")
		done <- err
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, reducer.ErrTypeNotRegistered)
	case <-time.After(time.Second):
		t.Fatal("application error waited for slow store")
	}
	close(gate)
	kill(t, c)
}

func TestSecondStoreConvergesAndPrunes(t *testing.T) {
	ctx := context.Background()
	reg := reducer.Builtins()
	a := store.NewLocal("a", reg, nil)
	b := store.NewLocal("b", reg, nil)

	_, _, err := a.Push(ctx, "counter", "/x", delta(t, 1000))
	require.NoError(t, err)

	c := New("main", map[string]store.Store{"a": a, "b": b})
	defer kill(t, c)

	// puede ganar cualquiera de los dos; lo que importa es la convergencia
	_, err = c.Get(ctx, "counter", "/x")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, la, _ := a.Get(ctx, "counter", "/x")
		_, lb, _ := b.Get(ctx, "counter", "/x")
		return len(la) == 1 && len(lb) == 1 && c.Idle()
	}, 2*time.Second, 5*time.Millisecond)

	for _, s := range []store.Store{a, b} {
		v, l, err := s.Get(ctx, "counter", "/x")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v, s.ID())
		require.Len(t, l, 1)
		assert.True(t, l[0].IsSnapshot())
		assert.JSONEq(t, "1", string(l[0].Value))
	}
}

func TestSyncPruneOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := reducer.Builtins()
	a := store.NewLocal("a", reg, nil)
	b := store.NewLocal("b", reg, nil)
	_, _, err := a.Push(ctx, "counter", "/o", delta(t, 10))
	require.NoError(t, err)

	c := New("main", map[string]store.Store{"a": a, "b": b}, WithClock(func() time.Time { return time.UnixMilli(5000) }))
	defer kill(t, c)

	out, err := c.SyncPrune(ctx, "counter", "/o")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, out)

	// la mutación en b agenda corridas hasta compactar
	require.Eventually(t, func() bool {
		_, la, _ := a.Get(ctx, "counter", "/o")
		_, lb, _ := b.Get(ctx, "counter", "/o")
		return len(la) == 1 && len(lb) == 1 && c.Idle()
	}, 2*time.Second, 5*time.Millisecond)

	_, l, err := a.Get(ctx, "counter", "/o")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), l[0].Date)

	out, err = c.SyncPrune(ctx, "counter", "/o")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConverged, out)

	out, err = c.SyncPrune(ctx, "counter", "/never-touched")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConverged, out)
}

func TestSnapshotDateAfterNewestOp(t *testing.T) {
	ctx := context.Background()
	a := store.NewLocal("a", reducer.Builtins(), nil)
	_, _, err := a.Push(ctx, "counter", "/f", delta(t, 9000))
	require.NoError(t, err)

	c := New("main", map[string]store.Store{"a": a}, WithClock(func() time.Time { return time.UnixMilli(5000) }))
	defer kill(t, c)
	out, err := c.SyncPrune(ctx, "counter", "/f")
	require.NoError(t, err)
	require.Equal(t, OutcomePruned, out)

	v, l, err := a.Get(ctx, "counter", "/f")
	require.NoError(t, err)
	require.Len(t, l, 1)
	assert.Equal(t, int64(9001), l[0].Date)
	assert.Equal(t, int64(1), v)
}

func TestSyncPruneLengthMismatch(t *testing.T) {
	one := oplog.Empty()
	two := append(oplog.Empty(), oplog.Op{Date: 1, SHA: "x", Payload: json.RawMessage("1")})
	c := New("main", map[string]store.Store{
		"a": &stubStore{id: "a", value: 1, log: one},
		"b": &stubStore{id: "b", value: 1, log: two},
	})
	defer kill(t, c)
	_, err := c.SyncPrune(context.Background(), "counter", "/x")
	require.ErrorIs(t, err, ErrOplogLengthMismatch)
}

func TestSyncPruneValuesMismatch(t *testing.T) {
	l := append(oplog.Empty(), oplog.Op{Date: 1, SHA: "x", Payload: json.RawMessage("1")})
	c := New("main", map[string]store.Store{
		"a": &stubStore{id: "a", value: 1, log: l},
		"b": &stubStore{id: "b", value: 2, log: l},
	})
	defer kill(t, c)
	_, err := c.SyncPrune(context.Background(), "counter", "/x")
	require.ErrorIs(t, err, ErrValuesMismatch)
}

func TestUpdatesOnlyForExternalChanges(t *testing.T) {
	ctx := context.Background()
	a := store.NewLocal("a", reducer.Builtins(), nil)
	c := New("main", map[string]store.Store{"a": a})
	defer kill(t, c)

	var (
		mu      sync.Mutex
		updates []Update
	)
	c.Subscribe(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	v, err := c.Push(ctx, "counter", "/u", delta(t, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	require.Eventually(t, c.Idle, time.Second, time.Millisecond)
	mu.Lock()
	assert.Empty(t, updates)
	mu.Unlock()

	// como si llegara por el stream de un store remoto
	_, _, err = a.Push(ctx, "counter", "/u", delta(t, time.Now().Add(time.Hour).UnixMilli()))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, "main", updates[0].Channel)
	assert.Equal(t, int64(2), updates[0].Value)
	mu.Unlock()
}

func TestStoreAccessors(t *testing.T) {
	a := &stubStore{id: "a"}
	c := New("main", map[string]store.Store{"b": &stubStore{id: "b"}, "a": a})
	defer kill(t, c)

	assert.Equal(t, []string{"a", "b"}, c.Stores())
	s, err := c.Store("a")
	require.NoError(t, err)
	assert.Same(t, a, s)
	_, err = c.Store("zzz")
	assert.ErrorIs(t, err, ErrUnknownStore)
}

func TestKill(t *testing.T) {
	a := &stubStore{id: "a", value: 1, log: oplog.Empty()}
	c := New("main", map[string]store.Store{"a": a})
	kill(t, c)
	kill(t, c)
	assert.Equal(t, int32(1), atomic.LoadInt32(&a.killed))

	out, err := c.SyncPrune(context.Background(), "counter", "/x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
}

func TestKillFromUpdateSubscriber(t *testing.T) {
	ctx := context.Background()
	reg := reducer.Builtins()
	a := store.NewLocal("a", reg, nil)
	b := store.NewLocal("b", reg, nil)
	_, _, err := b.Push(ctx, "counter", "/k", delta(t, 1000))
	require.NoError(t, err)

	c := New("main", map[string]store.Store{"a": a, "b": b})
	killed := make(chan error, 1)
	var once sync.Once
	c.Subscribe(func(Update) {
		once.Do(func() {
			kctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			killed <- c.Kill(kctx)
		})
	})

	// llega por fuera del canal, como desde el stream de un remoto; dispara
	// un Update y un syncprune que vuelve a empujar en ambos stores
	_, _, err = b.Push(ctx, "counter", "/k", delta(t, 2000))
	require.NoError(t, err)

	select {
	case err := <-killed:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Kill called from a subscriber did not return")
	}
	out, err := c.SyncPrune(ctx, "counter", "/k")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
}

func TestKillReturnsAtDeadlineAndKillsStores(t *testing.T) {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	fast := &stubStore{id: "fast", value: 1, log: oplog.Empty()}
	slow := &stubStore{id: "slow", value: 1, log: oplog.Empty(), gate: gate}
	c := New("main", map[string]store.Store{"fast": fast, "slow": slow})

	c.sched.schedule("counter", "/x")
	require.False(t, c.Idle())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Kill(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fast.killed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&slow.killed))
}

func TestStaleMutationIsIgnored(t *testing.T) {
	c := New("main", map[string]store.Store{"a": &stubStore{id: "a"}})
	defer kill(t, c)

	var (
		mu      sync.Mutex
		updates []Update
	)
	c.Subscribe(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	c.onMutate(store.Mutation{StoreID: "a", Type: "counter", Path: "/s", Value: int64(2), Seq: 2})
	c.onMutate(store.Mutation{StoreID: "a", Type: "counter", Path: "/s", Value: int64(1), Seq: 1})
	require.Eventually(t, c.Idle, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 1)
	assert.Equal(t, int64(2), updates[0].Value)
	assert.False(t, c.record("counter", "/s", int64(2)), "state must keep the newest value")
}
