package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "OTHER_SIDE_API_KEY", EnvKey("/other-side/api-key"))
	assert.Equal(t, "ARK_API_KEY", EnvKey("ARK_API_KEY"))
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("OTHER_SIDE_API_KEY", "  sk-env  ")

	value, err := EnvProvider{}.Fetch(context.Background(), "/other-side/api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", value)

	_, err = EnvProvider{}.Fetch(context.Background(), "/missing/key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(path, []byte("OTHER_SIDE_API_KEY=sk-file\n"), 0o600))

	value, err := FileProvider{Path: path}.Fetch(context.Background(), "/other-side/api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-file", value)

	_, err = FileProvider{Path: path}.Fetch(context.Background(), "OTHER")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = FileProvider{Path: filepath.Join(t.TempDir(), "absent.env")}.Fetch(context.Background(), "X")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestChainFallsThroughNotFound(t *testing.T) {
	miss := ProviderFunc(func(context.Context, string) (string, error) { return "", ErrNotFound })
	hit := ProviderFunc(func(context.Context, string) (string, error) { return "found", nil })

	value, err := Chain{miss, hit}.Fetch(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "found", value)

	_, err = Chain{miss}.Fetch(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainStopsOnHardError(t *testing.T) {
	boom := errors.New("boom")
	failing := ProviderFunc(func(context.Context, string) (string, error) { return "", boom })
	hit := ProviderFunc(func(context.Context, string) (string, error) { return "found", nil })

	_, err := Chain{failing, hit}.Fetch(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
}

func TestCacheFetchesOnce(t *testing.T) {
	var calls atomic.Int32
	upstream := ProviderFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "sk-cached", nil
	})
	cache := NewCache(upstream)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := cache.Fetch(context.Background(), "key")
			assert.NoError(t, err)
			assert.Equal(t, "sk-cached", value)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	upstream := ProviderFunc(func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("transient")
		}
		return "sk-retry", nil
	})
	cache := NewCache(upstream)

	_, err := cache.Fetch(context.Background(), "key")
	require.Error(t, err)

	value, err := cache.Fetch(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, "sk-retry", value)
	assert.Equal(t, int32(2), calls.Load())
}
