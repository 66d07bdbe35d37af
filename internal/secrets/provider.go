// Package secrets resolves credentials such as the model API key by name.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when no provider holds the requested secret.
var ErrNotFound = errors.New("secret not found")

// Provider looks up a secret value by name.
type Provider interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, name string) (string, error)

// Fetch calls f.
func (f ProviderFunc) Fetch(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// EnvProvider reads secrets from the process environment. Names such as
// "/other-side/api-key" are mapped to OTHER_SIDE_API_KEY.
type EnvProvider struct{}

// Fetch implements Provider.
func (EnvProvider) Fetch(_ context.Context, name string) (string, error) {
	for _, key := range []string{name, EnvKey(name)} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// EnvKey converts a hierarchical secret name into an environment variable name.
func EnvKey(name string) string {
	trimmed := strings.Trim(name, "/")
	return strings.ToUpper(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(trimmed))
}

// FileProvider reads secrets from a dotenv-format file. The file is parsed on
// every Fetch; wrap it in a Cache to read it once.
type FileProvider struct {
	Path string
}

// Fetch implements Provider.
func (p FileProvider) Fetch(_ context.Context, name string) (string, error) {
	values, err := godotenv.Read(p.Path)
	if err != nil {
		return "", fmt.Errorf("read secrets file %s: %w", p.Path, err)
	}
	for _, key := range []string{name, EnvKey(name)} {
		if value := strings.TrimSpace(values[key]); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Chain tries each provider in order and returns the first hit. Errors other
// than ErrNotFound stop the search.
type Chain []Provider

// Fetch implements Provider.
func (c Chain) Fetch(ctx context.Context, name string) (string, error) {
	for _, p := range c {
		value, err := p.Fetch(ctx, name)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Cache memoizes successful lookups for the life of the process. Concurrent
// lookups of the same name share one upstream call; failures are not cached.
type Cache struct {
	next Provider

	group  singleflight.Group
	mu     sync.RWMutex
	values map[string]string
}

// NewCache wraps next.
func NewCache(next Provider) *Cache {
	return &Cache{next: next, values: make(map[string]string)}
}

// Fetch implements Provider.
func (c *Cache) Fetch(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	value, ok := c.values[name]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.values[name]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		fetched, err := c.next.Fetch(ctx, name)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.values[name] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
