package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gigsync/internal/reducer"
	"github.com/dropDatabas3/gigsync/internal/store"
	"github.com/dropDatabas3/gigsync/internal/table"
)

func TestClientInMemoryCounter(t *testing.T) {
	ctx := context.Background()
	c := New(table.InMemory("main", "other"), WithClock(func() time.Time { return time.UnixMilli(1000) }))
	c.Register("counter", reducer.Counter)
	defer c.Kill(ctx)

	names, err := c.Channels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "other"}, names)

	v, err := c.Get(ctx, "main", "counter", "/x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	v, err = c.Push(ctx, "main", "counter", "/x", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// mismo date y payload: mismo sha, NOOP
	v, err = c.Push(ctx, "main", "counter", "/x", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	ch, err := c.Channel(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"memory"}, ch.Stores())
}

func TestClientUnknownChannel(t *testing.T) {
	c := New(table.InMemory("main"))
	_, err := c.Get(context.Background(), "nope", "counter", "/x")
	require.ErrorIs(t, err, ErrUnknownChannel)
	_, err = c.On(context.Background(), "nope", nil)
	require.ErrorIs(t, err, ErrUnknownChannel)
}

func TestClientUnregisteredType(t *testing.T) {
	c := New(table.InMemory("main"))
	defer c.Kill(context.Background())
	_, err := c.Get(context.Background(), "main", "counter", "/x")
	require.ErrorIs(t, err, reducer.ErrTypeNotRegistered)
}

type failingDirectory struct{}

func (failingDirectory) Channels(context.Context) (table.Layout, error) {
	return nil, errors.New("table down")
}

func TestClientInitErrorIsSticky(t *testing.T) {
	c := New(failingDirectory{})
	require.Error(t, c.Init(context.Background()))
	_, err := c.Channels(context.Background())
	require.Error(t, err)
}

func TestClientBadDescriptor(t *testing.T) {
	c := New(table.Static{"main": {"r": store.Descriptor{Type: store.TypeRemote, URL: "ftp://nope/"}}})
	err := c.Init(context.Background())
	require.ErrorIs(t, err, store.ErrInvalidURL)
}
