package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f := NewFetcher(t.TempDir())
	f.Attempts = 2
	f.RetryDelay = time.Millisecond
	return f
}

func TestFetchOneUsesETagCache(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`[{"id":"a"}]`))
	}))
	defer srv.Close()

	f := testFetcher(t)
	src := Source{ID: "export", Kind: KindJSON, URL: srv.URL + "/events.json"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, `[{"id":"a"}]`, string(first.Body))

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())
}

func TestFetchOneFallsBackToCacheOnServerError(t *testing.T) {
	var failing atomic.Bool
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	f := testFetcher(t)
	src := Source{ID: "export", URL: srv.URL}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	failing.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, `{"events":[]}`, string(res.Body))
	assert.Equal(t, int32(3), hits.Load(), "one fresh fetch plus two attempts")
}

func TestFetchOneDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher(t).FetchOne(context.Background(), Source{ID: "gone", URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), hits.Load())
}

type stubRenderer struct {
	body []byte
	err  error
	urls []string
}

func (s *stubRenderer) Render(_ context.Context, url string) ([]byte, error) {
	s.urls = append(s.urls, url)
	return s.body, s.err
}

func TestFetchOneRendersWhenAsked(t *testing.T) {
	f := testFetcher(t)
	r := &stubRenderer{body: []byte("<html></html>")}
	f.Renderer = r

	src := Source{ID: "page", Kind: KindHTML, URL: "https://events.example.edu/today", Render: true}
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(res.Body))
	assert.Equal(t, []string{src.URL}, r.urls)

	r.err = errors.New("chrome crashed")
	res, err = f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
}

func TestFetchAllKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	f := testFetcher(t)
	sources := []Source{
		{ID: "a", URL: srv.URL + "/a"},
		{ID: "bad", URL: srv.URL + "/bad"},
		{ID: "c", URL: srv.URL + "/c"},
	}
	results, errs := f.FetchAll(context.Background(), sources)
	require.Len(t, results, 3)
	require.Len(t, errs, 3)

	assert.NoError(t, errs[0])
	assert.Equal(t, "/a", string(results[0].Body))
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
	assert.Equal(t, "/c", string(results[2].Body))
	assert.Equal(t, "c", results[2].Source.ID)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.edu/...(redacted)", redactURL("https://calendar.example.edu/private/abc.ics?token=1"))
	assert.Equal(t, "feed://...(redacted)", redactURL("not a url"))
}
