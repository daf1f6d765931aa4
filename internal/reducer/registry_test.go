package reducer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gigsync/internal/oplog"
)

func TestReduceUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Reduce("nope", oplog.Empty())
	require.ErrorIs(t, err, ErrTypeNotRegistered)
	assert.True(t, IsApplication(err))
}

func TestReduceUndefined(t *testing.T) {
	r := NewRegistry()
	r.Register("u", Func(func(oplog.Oplog) (any, error) { return Undefined, nil }))
	_, err := r.Reduce("u", oplog.Empty())
	require.ErrorIs(t, err, ErrValueUndefined)
}

func TestReduceFailureIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry()
	r.Register("f", Func(func(oplog.Oplog) (any, error) { return nil, boom }))
	_, err := r.Reduce("f", oplog.Empty())
	require.ErrorIs(t, err, ErrReduceFailed)
	require.ErrorIs(t, err, boom)
	assert.True(t, IsApplication(err))
}

func TestNilValueIsNotUndefined(t *testing.T) {
	r := NewRegistry()
	r.Register("n", Func(func(oplog.Oplog) (any, error) { return nil, nil }))
	v, err := r.Reduce("n", oplog.Empty())
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCounter(t *testing.T) {
	v, err := Counter.Reduce(oplog.Empty())
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	l := oplog.Oplog{{Date: 5, SHA: "s", Value: json.RawMessage("4")}, {Date: 6, SHA: "d", Payload: json.RawMessage("{}")}}
	v, err = Counter.Reduce(l)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestLastWriteWins(t *testing.T) {
	l := oplog.Oplog{{Date: 1, SHA: "a", Payload: json.RawMessage(`"a"`)}, {Date: 2, SHA: "b", Payload: json.RawMessage(`"b"`)}}
	v, err := LastWriteWins.Reduce(l)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"b"`), v)
}

func TestBuiltins(t *testing.T) {
	r := Builtins()
	assert.Equal(t, []string{"counter", "lww"}, r.Types())
	_, ok := ByName("last_write_wins")
	assert.True(t, ok)
	_, ok = ByName("x")
	assert.False(t, ok)
}
