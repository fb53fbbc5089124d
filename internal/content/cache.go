package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/flight"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
)

// Backend performs credentialed raw calls; *apiclient.Client implements it.
type Backend interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
}

// Options tune a single Fetch.
type Options struct {
	// BypassCache forces a fresh, non-conditional download.
	BypassCache bool
}

type entry struct {
	etag string
	data models.LessonContent
}

// Cache holds lesson content keyed by lesson id with ETag revalidation.
// Concurrent fetches of the same id share one request. Entries are
// overwritten on every successful fetch and never evicted.
type Cache struct {
	backend Backend
	log     *logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	fresh       singleflight.Group
	conditional singleflight.Group
}

// New creates an empty cache over backend.
func New(backend Backend, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		backend: backend,
		log:     log.With("component", "content_cache"),
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func contentPath(id string) string {
	return "/api/lessons/" + url.PathEscape(id) + "/content"
}

// Fetch returns the content of a lesson. A blank id yields empty content
// without touching the network.
func (c *Cache) Fetch(ctx context.Context, lessonID string, opts Options) (models.LessonContent, error) {
	id := strings.TrimSpace(lessonID)
	if id == "" {
		return models.EmptyContent(), nil
	}
	if opts.BypassCache {
		return c.fetchFresh(ctx, id)
	}
	return c.fetchConditional(ctx, id)
}

func (c *Cache) fetchFresh(ctx context.Context, id string) (models.LessonContent, error) {
	return flight.Do(ctx, &c.fresh, id, flight.DefaultTimeout, func(ctx context.Context) (models.LessonContent, error) {
		q := url.Values{}
		q.Set("bust", strconv.FormatInt(c.now().UnixMilli(), 10))
		resp, err := c.backend.Do(ctx, apiclient.Request{
			Method: http.MethodGet,
			Path:   contentPath(id),
			Query:  q,
			Header: http.Header{"Cache-Control": []string{"no-store"}},
		})
		if err != nil {
			return models.LessonContent{}, err
		}
		if !resp.OK() {
			return models.LessonContent{}, apiclient.ErrorFromResponse(resp)
		}
		data, err := decode(resp.Body)
		if err != nil {
			return models.LessonContent{}, fmt.Errorf("lesson %s: %w", id, err)
		}
		c.store(id, resp.Header.Get("ETag"), data)
		return data, nil
	})
}

func (c *Cache) fetchConditional(ctx context.Context, id string) (models.LessonContent, error) {
	return flight.Do(ctx, &c.conditional, id, flight.DefaultTimeout, func(ctx context.Context) (models.LessonContent, error) {
		cached, hasEntry := c.lookup(id)
		header := http.Header{}
		if hasEntry && cached.etag != "" {
			header.Set("If-None-Match", cached.etag)
		}
		resp, err := c.backend.Do(ctx, apiclient.Request{
			Method: http.MethodGet,
			Path:   contentPath(id),
			Header: header,
		})
		if err != nil {
			return models.LessonContent{}, err
		}
		if resp.Status == http.StatusNotModified {
			if !hasEntry {
				c.log.Warn("304 without cached entry, refetching", "lesson_id", id)
				return c.fetchFresh(ctx, id)
			}
			if etag := resp.Header.Get("ETag"); etag != "" && etag != cached.etag {
				c.store(id, etag, cached.data)
			}
			return cached.data, nil
		}
		if !resp.OK() {
			return models.LessonContent{}, apiclient.ErrorFromResponse(resp)
		}
		data, err := decode(resp.Body)
		if err != nil {
			return models.LessonContent{}, fmt.Errorf("lesson %s: %w", id, err)
		}
		c.store(id, resp.Header.Get("ETag"), data)
		return data, nil
	})
}

func decode(body []byte) (models.LessonContent, error) {
	var data models.LessonContent
	if err := json.Unmarshal(body, &data); err != nil {
		return models.LessonContent{}, fmt.Errorf("decode content: %w", err)
	}
	if data.Blocks == nil {
		data.Blocks = []models.Block{}
	}
	if data.Settings == nil {
		data.Settings = map[string]any{}
	}
	return data, nil
}

func (c *Cache) lookup(id string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

func (c *Cache) store(id, etag string, data models.LessonContent) {
	c.mu.Lock()
	c.entries[id] = entry{etag: etag, data: data}
	c.mu.Unlock()
}

// ETag returns the stored entity tag for a lesson.
func (c *Cache) ETag(lessonID string) string {
	e, _ := c.lookup(strings.TrimSpace(lessonID))
	return e.etag
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(lessonID string) {
	c.mu.Lock()
	delete(c.entries, strings.TrimSpace(lessonID))
	c.mu.Unlock()
}

// Len reports the number of cached lessons.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
