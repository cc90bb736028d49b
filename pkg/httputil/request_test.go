package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"groceries"}`))
		var dest struct {
			Name string `json:"name"`
		}
		require.NoError(t, ParseJSON(r, &dest))
		assert.Equal(t, "groceries", dest.Name)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{broken`))
		var dest map[string]string
		err := ParseJSON(r, &dest)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}

func TestParsePathUUID(t *testing.T) {
	router := mux.NewRouter()
	var got uuid.UUID
	var gotErr error
	router.HandleFunc("/orgs/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathUUID(r, "id")
	})

	t.Run("valid", func(t *testing.T) {
		id := uuid.New()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/orgs/"+id.String(), nil))
		require.NoError(t, gotErr)
		assert.Equal(t, id, got)
	})

	t.Run("not a UUID", func(t *testing.T) {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/orgs/abc", nil))
		require.Error(t, gotErr)
		assert.Contains(t, gotErr.Error(), "invalid UUID")
	})
}

func TestParseQueryTime(t *testing.T) {
	t.Run("absent returns zero", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		ts, err := ParseQueryTime(r, "from")
		require.NoError(t, err)
		assert.True(t, ts.IsZero())
	})

	t.Run("RFC 3339", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/?from=2026-01-02T15:04:05Z", nil)
		ts, err := ParseQueryTime(r, "from")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), ts.UTC())
	})

	t.Run("malformed", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/?from=yesterday", nil)
		_, err := ParseQueryTime(r, "from")
		require.Error(t, err)
	})
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=25", nil)
	v, err := ParseQueryInt(r, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	v, err = ParseQueryInt(r, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
