package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFiles(t *testing.T) {
	t.Parallel()

	t.Run("RebuildsOnChange", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		text := filepath.Join(dir, "novel.txt")
		other := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(text, []byte("Jane smiled."), 0o644))

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		batches := make(chan []string, 4)
		done := make(chan error, 1)
		go func() {
			done <- WatchFiles(ctx, []string{text}, 50*time.Millisecond, func(ctx context.Context, changed []string) error {
				batches <- changed
				return nil
			})
		}()

		// Give the watcher time to register before writing.
		time.Sleep(200 * time.Millisecond)
		require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
		require.NoError(t, os.WriteFile(text, []byte("Jane laughed."), 0o644))

		select {
		case changed := <-batches:
			abs, err := filepath.Abs(text)
			require.NoError(t, err)
			assert.Equal(t, []string{abs}, changed)
		case <-time.After(5 * time.Second):
			t.Fatal("no rebuild after change")
		}

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	})

	t.Run("NothingToWatch", func(t *testing.T) {
		t.Parallel()
		err := WatchFiles(t.Context(), []string{""}, 0, nil)
		assert.Error(t, err)
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		t.Parallel()
		missing := filepath.Join(t.TempDir(), "gone", "novel.txt")
		err := WatchFiles(t.Context(), []string{missing}, 0, nil)
		assert.Error(t, err)
	})
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(map[string]bool{"c": true, "a": true, "b": true}))
}
