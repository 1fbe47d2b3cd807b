package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/essaycoach/internal/llm"
)

func TestWatchImportsNewFiles(t *testing.T) {
	fx := newFixture(t, llm.RawRubricStructure{
		IsRubric:   true,
		RubricName: "Watched",
		Dimensions: []llm.RawDimension{{
			Name:   "Content",
			Weight: fp(100),
			Levels: []llm.RawLevel{{Name: "Good", ScoreMin: fp(0), ScoreMax: fp(10)}},
		}},
	})
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.txt"), []byte(rubricText), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan FileResult, 8)
	done := make(chan error, 1)
	go func() {
		done <- fx.importer.Watch(ctx, "owner-1", root, WatchOptions{
			InitialScan: true,
			SkipHidden:  true,
			Debounce:    20 * time.Millisecond,
		}, func(fr FileResult) { results <- fr })
	}()

	next := func() FileResult {
		select {
		case fr := <-results:
			return fr
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watch result")
			return FileResult{}
		}
	}

	first := next()
	assert.Equal(t, filepath.Join(root, "existing.txt"), first.Path)
	require.NotNil(t, first.Result)
	assert.True(t, first.Result.Success)

	// give the watcher a moment to drain its initial events
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".draft.txt"), []byte(rubricText), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.png"), []byte("img"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte(rubricText), 0o600))

	second := next()
	assert.Equal(t, filepath.Join(root, "new.txt"), second.Path)
	assert.Empty(t, second.Err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	n, err := fx.repo.CountRubrics(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWatchRequiresRoot(t *testing.T) {
	fx := newFixture(t, llm.RawRubricStructure{})
	err := fx.importer.Watch(context.Background(), "owner-1", "", WatchOptions{}, nil)
	assert.Error(t, err)
}
