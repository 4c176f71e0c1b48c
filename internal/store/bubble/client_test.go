package bubble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agfdash/internal/store"
	"agfdash/internal/store/memory"
)

const testKey = "secret"

func newClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: url, APIKey: testKey, RetryMax: retries})
	require.NoError(t, err)
	return c
}

func fixtureServer(t *testing.T, n int) (*memory.Store, *httptest.Server) {
	t.Helper()
	mem := memory.New()
	for i := 0; i < n; i++ {
		owner := "e1"
		if i%4 == 3 {
			owner = "e2"
		}
		mem.Put(store.CollectionLedger, store.Record{
			"_id":         fmt.Sprintf("lm%d", i),
			"Empresa Mãe": owner,
		})
	}
	srv := httptest.NewServer(mem.Handler(testKey))
	t.Cleanup(srv.Close)
	return mem, srv
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "http://x"})
	assert.Error(t, err)
}

func TestFetchAll_PaginationCompleteness(t *testing.T) {
	_, srv := fixtureServer(t, 25)
	c := newClient(t, srv.URL, 0)

	for _, pageSize := range []int{1, 4, 10, 25, 1000} {
		t.Run(fmt.Sprintf("page_%d", pageSize), func(t *testing.T) {
			recs, err := c.FetchAll(context.Background(), store.CollectionLedger, nil, pageSize)
			require.NoError(t, err)
			assert.Len(t, recs, 25)

			seen := map[string]bool{}
			for _, r := range recs {
				seen[r.ID()] = true
			}
			assert.Len(t, seen, 25, "no page may be fetched twice")
		})
	}
}

func TestFetchAll_Constraints(t *testing.T) {
	mem, srv := fixtureServer(t, 12)
	c := newClient(t, srv.URL, 0)

	recs, err := c.FetchAll(context.Background(), store.CollectionLedger,
		store.Filter{store.EqualsTo(store.FieldOwnerEntity, "e1")}, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 9)
	// 9 matches at 2 per page
	assert.Equal(t, 5, mem.Calls("fetchAll", store.CollectionLedger))
}

func TestFetchAll_WireFormat(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "/api/1.1/obj/Despesa (SubConta)", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		var filter store.Filter
		assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("constraints")), &filter))
		if assert.Len(t, filter, 1) {
			assert.Equal(t, store.In, filter[0].Type)
		}

		switch n {
		case 1:
			assert.Empty(t, r.URL.Query().Get("cursor"))
			fmt.Fprint(w, `{"response":{"cursor":0,"results":[{"_id":"a"},{"_id":"b"},{"_id":"c"}],"remaining":2}}`)
		case 2:
			assert.Equal(t, "3", r.URL.Query().Get("cursor"))
			fmt.Fprint(w, `{"response":{"cursor":3,"results":[{"_id":"d"},{"_id":"e"}],"remaining":0}}`)
		default:
			t.Errorf("unexpected request %d", n)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 0)
	recs, err := c.FetchAll(context.Background(), store.CollectionExpenseLines,
		store.Filter{store.InSet(store.FieldUnit, []string{"u1", "u2"})}, 3)
	require.NoError(t, err)
	assert.Len(t, recs, 5)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchAll_MissingResponseStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	recs, err := newClient(t, srv.URL, 0).FetchAll(context.Background(), "AGF", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFetchAll_StalledPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"cursor":0,"results":[],"remaining":5}}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, 0).FetchAll(context.Background(), "AGF", nil, 0)
	assert.ErrorIs(t, err, ErrPaginationStalled)
}

func TestFetchAll_RemoteFetchError(t *testing.T) {
	_, srv := fixtureServer(t, 1)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "wrong"})
	require.NoError(t, err)

	_, err = c.FetchAll(context.Background(), store.CollectionUnits, nil, 0)
	var rfe *store.RemoteFetchError
	require.True(t, errors.As(err, &rfe))
	assert.Equal(t, http.StatusUnauthorized, rfe.Status)
	assert.Equal(t, store.CollectionUnits, rfe.Collection)
	assert.Contains(t, rfe.Body, "UNAUTHORIZED")
}

func TestFetchAll_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"response":{"cursor":0,"results":[{"_id":"a"}],"remaining":0}}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: testKey, RetryMax: 2, RetryWaitMin: 1, RetryWaitMax: 1})
	require.NoError(t, err)
	recs, err := c.FetchAll(context.Background(), "AGF", nil, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchAll_ServerErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: testKey, RetryMax: 1, RetryWaitMin: 1, RetryWaitMax: 1})
	require.NoError(t, err)
	_, err = c.FetchAll(context.Background(), "Balancete", nil, 0)
	var rfe *store.RemoteFetchError
	require.ErrorAs(t, err, &rfe)
	assert.Equal(t, http.StatusInternalServerError, rfe.Status)
	assert.Equal(t, "down", rfe.Body)
}

func TestFetchOne(t *testing.T) {
	mem, srv := fixtureServer(t, 3)
	mem.Put(store.CollectionCategories, store.Record{"_id": "c1", "Categoria": "Aluguel"})
	c := newClient(t, srv.URL, 0)

	rec, found, err := c.FetchOne(context.Background(), store.CollectionCategories, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Aluguel", rec.Text(store.CategoryBackfillNameFields...))

	_, found, err = c.FetchOne(context.Background(), store.CollectionCategories, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetchOne_EmptyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	_, found, err := newClient(t, srv.URL, 0).FetchOne(context.Background(), "AGF", "u1")
	require.NoError(t, err)
	assert.False(t, found)
}
