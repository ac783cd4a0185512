package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	appLog "campusmap/internal/log"
)

// Kind selects the decoder for a source body.
type Kind string

const (
	KindJSON Kind = "json"
	KindICS  Kind = "ics"
	KindHTML Kind = "html"
)

// Source represents a single event feed.
type Source struct {
	// ID is an internal identifier (config source id).
	ID   string
	Name string
	Kind Kind
	// URL is the feed endpoint.
	URL string
	// Render loads the page in a headless browser before decoding.
	Render bool
}

// FetchResult contains the outcome of fetching a single source.
type FetchResult struct {
	Source    Source
	Body      []byte // payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused the cached body
}

// Renderer produces the DOM of a script-driven page.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches feeds with HTTP caching (ETag / Last-Modified) and a
// disk-backed copy of the last good body.
type Fetcher struct {
	client   *http.Client
	cacheDir string

	// Renderer handles sources with Render set. Nil means those sources are
	// fetched as plain HTTP.
	Renderer Renderer
	// Concurrency bounds FetchAll. Zero means 4.
	Concurrency int
	// Attempts is the retry budget per request. Zero means 3.
	Attempts uint
	// RetryDelay is the base backoff between attempts.
	RetryDelay time.Duration
}

// NewFetcher creates a new Fetcher.
//
// cacheDir is the base directory where per-URL cache subdirectories and
// metadata will be stored. Example: "/var/lib/campusmap/feed-cache".
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/feed-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		cacheDir:   cacheDir,
		RetryDelay: time.Second,
	}
}

// FetchAll fetches sources concurrently. results[i] belongs to sources[i];
// failed sources leave a zero result and a non-nil errs[i].
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, len(sources))
	errs := make([]error, len(sources))

	limit := f.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, src := range sources {
		g.Go(func() error {
			res, err := f.FetchOne(gctx, src)
			if err != nil {
				appLog.Error("feed fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}

// FetchOne fetches a single source, honoring ETag and Last-Modified. It
// uses a disk cache under f.cacheDir keyed by a hash of the URL and falls
// back to the cached body when the network or the server fails.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	cachePath, err := f.cachePathForURL(src.URL)
	if err != nil {
		return FetchResult{}, err
	}
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	fallback := func(err error) (FetchResult, error) {
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch failed, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, err
	}

	appLog.Info("feed fetch start", "id", src.ID, "url", redactURL(src.URL), "render", src.Render)

	if src.Render && f.Renderer != nil {
		body, err := f.withRetry(ctx, func() ([]byte, error) {
			return f.Renderer.Render(ctx, src.URL)
		})
		if err != nil {
			return fallback(err)
		}
		f.storeFresh(src, cachePath, cacheEntry{URL: src.URL}, body)
		return FetchResult{Source: src, Body: body}, nil
	}

	var status int
	var newMeta cacheEntry
	body, err := f.withRetry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		switch {
		case resp.StatusCode == http.StatusOK:
			newMeta = cacheEntry{
				URL:          src.URL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			return io.ReadAll(resp.Body)
		case resp.StatusCode == http.StatusNotModified:
			return nil, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, errors.New(resp.Status)
		default:
			return nil, retry.Unrecoverable(errors.New(resp.Status))
		}
	})
	if err != nil {
		return fallback(err)
	}

	if status == http.StatusNotModified {
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("feed fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	}

	f.storeFresh(src, cachePath, newMeta, body)
	appLog.Info("feed fetch success", "id", src.ID, "url", redactURL(src.URL), "status", status, "bytes", len(body))
	return FetchResult{Source: src, Body: body}, nil
}

func (f *Fetcher) withRetry(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	attempts := f.Attempts
	if attempts == 0 {
		attempts = 3
	}
	return retry.DoWithData(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(f.RetryDelay),
		retry.LastErrorOnly(true),
	)
}

func (f *Fetcher) storeFresh(src Source, cachePath string, meta cacheEntry, body []byte) {
	if err := f.saveCache(cachePath, meta, body); err != nil {
		// Log but still return the freshly fetched body.
		appLog.Error("feed cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
	}
}

func (f *Fetcher) cachePathForURL(url string) (string, error) {
	if url == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8])), nil
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache meta: %w", err)
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host of a feed URL for logging; calendar
// URLs often embed private tokens.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "feed://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
