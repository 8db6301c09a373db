package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/peterbourgon/diskv/v3"

	appLog "calplan/internal/log"
)

// Source is one ICS subscription.
type Source struct {
	ID  string
	URL string
	// LayerID is the layer the feed's events are shown on.
	LayerID string
}

// FetchResult is the body obtained for one source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// cacheMeta is the HTTP validator state stored next to each cached body.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body of every URL in a diskv store, so a failing server still yields the
// previous copy.
type Fetcher struct {
	client *http.Client
	cache  *diskv.Diskv
	now    func() time.Time
}

// NewFetcher returns a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		cache: diskv.New(diskv.Options{
			BasePath:     cacheDir,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 4 << 20,
			PathPerm:     0o700,
			FilePerm:     0o600,
		}),
		now: time.Now,
	}
}

// FetchAll fetches every source. Failures are logged and collected; the
// results hold only sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	var errs []error
	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			appLog.Error("ics fetch failed", err, "source", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne fetches a single source, sending If-None-Match and
// If-Modified-Since from the cache. Network errors and non-OK statuses fall
// back to the cached body when there is one.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	bodyKey, metaKey := cacheKeys(src.URL)

	var meta cacheMeta
	if raw, err := f.cache.Read(metaKey); err == nil {
		if err := json.Unmarshal(raw, &meta); err != nil {
			appLog.Warn("ics cache meta unreadable", "source", src.ID, "err", err)
			meta = cacheMeta{}
		}
	}
	cached, _ := f.cache.Read(bodyKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	fromCache := func(reason error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, reason
		}
		appLog.Warn("ics fetch fell back to cache", "source", src.ID, "url", redactURL(src.URL), "err", reason)
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fromCache(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fromCache(err)
		}
		meta = cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    f.now().UTC(),
		}
		if err := f.store(bodyKey, metaKey, meta, body); err != nil {
			appLog.Error("ics cache save failed", err, "source", src.ID)
		}
		appLog.Info("ics fetched", "source", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("ics not modified", "source", src.ID)
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	default:
		return fromCache(errors.New(resp.Status))
	}
}

// store writes the body before the metadata so validators never point at a
// missing body.
func (f *Fetcher) store(bodyKey, metaKey string, meta cacheMeta, body []byte) error {
	if err := f.cache.Write(bodyKey, body); err != nil {
		return err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return f.cache.Write(metaKey, raw)
}

func cacheKeys(u string) (body, meta string) {
	sum := sha256.Sum256([]byte(u))
	base := hex.EncodeToString(sum[:8])
	return base + ".ics", base + ".json"
}

// redactURL keeps only scheme and host; subscription URLs often embed
// private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
