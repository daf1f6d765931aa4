package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httperrors "github.com/dropDatabas3/gigsync/internal/http/errors"
)

func TestParseUserID(t *testing.T) {
	id, err := ParseUserID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := ParseUserID(bad)
		assert.ErrorIs(t, err, ErrInvalidUserID, bad)
	}
}

func TestValidateTuple(t *testing.T) {
	assert.NoError(t, ValidateTuple("counter", "/x"))
	assert.ErrorIs(t, ValidateTuple("", "/x"), ErrInvalidType)
	assert.ErrorIs(t, ValidateTuple("a/b", "/x"), ErrInvalidType)
	assert.ErrorIs(t, ValidateTuple("..", "/x"), ErrInvalidType)
	assert.ErrorIs(t, ValidateTuple("counter", ""), ErrInvalidPath)
}

func TestReadJSON(t *testing.T) {
	var v map[string]any
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	require.NoError(t, ReadJSON(httptest.NewRecorder(), r, &v))
	assert.Equal(t, float64(1), v["a"])

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, ReadJSON(httptest.NewRecorder(), r, &v), httperrors.ErrInvalidJSON)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, ReadJSON(httptest.NewRecorder(), r, &v), httperrors.ErrInvalidJSON)

	big := `{"a":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	assert.ErrorIs(t, ReadJSON(httptest.NewRecorder(), r, &v), httperrors.ErrBodyTooLarge)
}
