package oplogs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gigsync/internal/blob"
	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/pump"
)

func newTestService(t *testing.T) (*service, *blob.Memory) {
	t.Helper()
	mem := blob.NewMemory()
	p := pump.New(pump.WithDelay(50 * time.Millisecond))
	return NewService(Deps{Storage: mem, Pump: p}).(*service), mem
}

func delta(t *testing.T, date int64) oplog.Op {
	t.Helper()
	op, err := oplog.NewDelta(date, map[string]any{})
	require.NoError(t, err)
	return op
}

func TestGetMissingIsSentinel(t *testing.T) {
	s, _ := newTestService(t)
	l, err := s.Get(context.Background(), 7, "counter", "/x")
	require.NoError(t, err)
	assert.Equal(t, oplog.Empty(), l)
}

func TestPushPersistsAndNoops(t *testing.T) {
	s, mem := newTestService(t)
	ctx := context.Background()
	op := delta(t, 10)

	res, err := s.Push(ctx, 7, "counter", "/x", op)
	require.NoError(t, err)
	assert.False(t, res.Noop)

	raw, err := mem.Get(ctx, "7/root/counter/x")
	require.NoError(t, err)
	var stored oplog.Oplog
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Len(t, stored, 2)

	res, err = s.Push(ctx, 7, "counter", "/x", op)
	require.NoError(t, err)
	assert.True(t, res.Noop)

	l, err := s.Get(ctx, 7, "counter", "/x")
	require.NoError(t, err)
	assert.Len(t, l, 2)
}

func TestPushRejectsInvalidOp(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Push(context.Background(), 7, "counter", "/x", oplog.Op{SHA: "abc"})
	assert.ErrorIs(t, err, oplog.ErrInvalidOp)
}

func TestUsersAreIsolated(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	_, err := s.Push(ctx, 7, "counter", "/x", delta(t, 10))
	require.NoError(t, err)

	// ".." no escapa del árbol del usuario
	l, err := s.Get(ctx, 8, "counter", "/../../7/root/counter/x")
	require.NoError(t, err)
	assert.Len(t, l, 1)
}

func TestPushWakesListener(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	first, err := s.Listen(ctx, 7, "")
	require.NoError(t, err)
	require.NotEmpty(t, first.RegID)
	assert.Empty(t, first.Stream)

	op := delta(t, 10)
	_, err = s.Push(ctx, 7, "counter", "/x", op)
	require.NoError(t, err)

	b, err := s.Listen(ctx, 7, first.RegID)
	require.NoError(t, err)
	require.Len(t, b.Stream, 1)
	assert.Equal(t, oplog.Entry{Type: "counter", Path: "/x", Op: op}, b.Stream[0])

	// un noop no se reenvía
	_, err = s.Push(ctx, 7, "counter", "/x", op)
	require.NoError(t, err)
	b, err = s.Listen(ctx, 7, first.RegID)
	require.NoError(t, err)
	assert.Empty(t, b.Stream)
}
