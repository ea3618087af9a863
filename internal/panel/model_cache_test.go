package panel_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"manga-server/internal/mocks"
	"manga-server/internal/models"
	"manga-server/internal/panel"
)

func TestModelCache_EnsureDownloadsOnce(t *testing.T) {
	dir := t.TempDir()
	fetcher := mocks.NewMockModelFetcher(t)
	fetcher.On("Fetch", mock.Anything, "sd-manga-v1", mock.Anything).
		Run(func(args mock.Arguments) {
			_, err := args.Get(2).(io.Writer).Write([]byte("weights"))
			require.NoError(t, err)
		}).
		Return(nil).Once()

	cache := panel.NewModelCache(dir, fetcher, zap.NewNop())

	path, err := cache.Ensure(context.Background(), "sd-manga-v1")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))

	// Повторный Ensure не трогает фетчер
	path2, err := cache.Ensure(context.Background(), "sd-manga-v1")
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestModelCache_ConcurrentFirstUseSingleDownload(t *testing.T) {
	dir := t.TempDir()
	var fetchCalls atomic.Int32

	fetcher := mocks.NewMockModelFetcher(t)
	fetcher.On("Fetch", mock.Anything, "sd-manga-v1", mock.Anything).
		Run(func(args mock.Arguments) {
			fetchCalls.Add(1)
			// Имитация долгого скачивания, чтобы горутины успели столпиться
			time.Sleep(50 * time.Millisecond)
			_, _ = args.Get(2).(io.Writer).Write([]byte("weights"))
		}).
		Return(nil)

	cache := panel.NewModelCache(dir, fetcher, zap.NewNop())

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	paths := make([]string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			paths[n], errs[n] = cache.Ensure(context.Background(), "sd-manga-v1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	assert.Equal(t, int32(1), fetchCalls.Load(), "concurrent first use must trigger exactly one download")
}

func TestModelCache_FetchErrorLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	fetcher := mocks.NewMockModelFetcher(t)
	fetcher.On("Fetch", mock.Anything, "broken-model", mock.Anything).
		Run(func(args mock.Arguments) {
			_, _ = args.Get(2).(io.Writer).Write([]byte("partial"))
		}).
		Return(fmt.Errorf("%w: connection reset", models.ErrResource))

	cache := panel.NewModelCache(dir, fetcher, zap.NewNop())

	_, err := cache.Ensure(context.Background(), "broken-model")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrResource)

	// Частично скачанный файл не должен попасть в кэш
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestModelCache_Evict(t *testing.T) {
	dir := t.TempDir()
	fetcher := mocks.NewMockModelFetcher(t)
	fetcher.On("Fetch", mock.Anything, "sd-manga-v1", mock.Anything).
		Run(func(args mock.Arguments) {
			_, _ = args.Get(2).(io.Writer).Write([]byte("weights"))
		}).
		Return(nil)

	cache := panel.NewModelCache(dir, fetcher, zap.NewNop())

	path, err := cache.Ensure(context.Background(), "sd-manga-v1")
	require.NoError(t, err)
	require.NoError(t, cache.Evict("sd-manga-v1"))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Evict отсутствующей модели не считается ошибкой
	assert.NoError(t, cache.Evict("sd-manga-v1"))
}
