package pagefile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dotcommander/pagekit/pkg/cache"
	"github.com/dotcommander/pagekit/pkg/page"
)

// Failure kinds raised by built providers and commands.
const (
	KindHTTPError  = "HTTPError"
	KindFetchError = "FetchError"
	KindFileError  = "FileError"
)

const maxResponseBytes = 4 << 20

func (b *builder) provider(name string, def ProviderDef) page.Provider {
	switch def.Kind {
	case ProviderFile:
		return b.fileProvider(def)
	case ProviderHTTP:
		return b.httpProvider(name, def)
	case ProviderTicker:
		return tickerProvider(def)
	default:
		v := def.Value
		return func(context.Context, *page.Results) (page.Outcome, error) {
			return page.Immediate(v), nil
		}
	}
}

// fileProvider reads a JSON document. Files ending in anything else are
// returned as a string.
func (b *builder) fileProvider(def ProviderDef) page.Provider {
	path := b.def.resolve(def.Path)
	return func(ctx context.Context, _ *page.Results) (page.Outcome, error) {
		return page.Async(ctx, func(context.Context) (any, error) {
			data, err := os.ReadFile(path) //nolint:gosec // G304: path declared by the page file
			if err != nil {
				return nil, &page.Failure{Name: KindFileError, Fields: map[string]any{"path": def.Path, "message": err.Error()}, Err: err}
			}
			return decodeBody(data), nil
		}), nil
	}
}

// httpProvider GETs a JSON document. Responses are cached per provider for
// the configured TTL; 5xx responses and transport errors are retried.
func (b *builder) httpProvider(name string, def ProviderDef) page.Provider {
	ttl := time.Duration(def.CacheTTL)
	if ttl == 0 {
		ttl = b.env.CacheTTL
	}
	fetch := func(ctx context.Context, _ *page.Results) (page.Outcome, error) {
		if entry, ok := b.env.Cache.Get(name, def.URL); ok {
			return page.Immediate(decodeBody(entry.Value)), nil
		}
		return page.Async(ctx, func(ctx context.Context) (any, error) {
			body, err := b.get(ctx, def.URL)
			if err != nil {
				return nil, err
			}
			if ttl > 0 {
				b.env.Cache.Put(name, def.URL, body, cache.WithTTL(ttl))
			}
			return decodeBody(body), nil
		}), nil
	}

	policy := page.DefaultRetryPolicy
	if def.Retries > 0 {
		policy.MaxRetries = uint64(def.Retries)
	}
	if b.env.Retry != nil {
		policy = *b.env.Retry
	}
	return page.Retrying(fetch, policy)
}

func (b *builder) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.env.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, page.Permanent(&page.Failure{Name: KindFetchError, Fields: map[string]any{"url": url, "message": err.Error()}, Err: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.env.HTTPClient.Do(req)
	if err != nil {
		return nil, &page.Failure{Name: KindFetchError, Fields: map[string]any{"url": url, "message": err.Error()}, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &page.Failure{Name: KindFetchError, Fields: map[string]any{"url": url, "message": err.Error()}, Err: err}
	}

	if resp.StatusCode >= 300 {
		f := &page.Failure{
			Name:   KindHTTPError,
			Fields: map[string]any{"url": url, "status": resp.StatusCode},
			Err:    fmt.Errorf("GET %s: %s", url, resp.Status),
		}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, page.Permanent(f)
		}
		return nil, f
	}
	return body, nil
}

// tickerProvider pushes 1, 2, ... every interval until count pushes were
// made (forever when count is zero) or the page closes.
func tickerProvider(def ProviderDef) page.Provider {
	interval := time.Duration(def.Interval)
	count := def.Count
	return func(context.Context, *page.Results) (page.Outcome, error) {
		return page.Stream(func(ctx context.Context, push func(any)) {
			go func() {
				t := time.NewTicker(interval)
				defer t.Stop()
				for n := 1; count == 0 || n <= count; n++ {
					select {
					case <-ctx.Done():
						return
					case <-t.C:
						push(n)
					}
				}
			}()
		}), nil
	}
}

func decodeBody(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}
