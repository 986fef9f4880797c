package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/ntrack/internal/tracker"
)

func hitIDs(res []*Result) []string {
	ids := make([]string, 0, len(res))
	for _, r := range res {
		ids = append(ids, r.Tracker.ID)
	}
	return ids
}

func TestBleveEngine_IndexesAndSearches(t *testing.T) {
	src := newFakeSource(sampleTrackers()...)
	eng, err := NewBleveEngine(src, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	n, err := eng.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := eng.Search("golang", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "go", res[0].Tracker.ID)

	res, err = eng.Search("bitc", 10)
	require.NoError(t, err)
	assert.Contains(t, hitIDs(res), "btc", "prefix match")

	res, err = eng.Search("x", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBleveEngine_Listeners(t *testing.T) {
	src := newFakeSource(sampleTrackers()...)
	eng, err := NewBleveEngine(src, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	added := &tracker.Tracker{ID: "rust", Type: tracker.TypeGitHubReleases, Title: "rust-lang/rust", Source: "github.com/rust-lang/rust/releases"}
	src.put(added)
	eng.OnTrackerUpdated(added)

	res, err := eng.Search("rust", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rust"}, hitIDs(res))

	src.remove("rust")
	eng.OnTrackerDeleted("rust")

	res, err = eng.Search("rust", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBleveEngine_SkipsHitsWithoutTracker(t *testing.T) {
	src := newFakeSource(sampleTrackers()...)
	eng, err := NewBleveEngine(src, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	src.remove("go")

	res, err := eng.Search("golang", 10)
	require.NoError(t, err)
	assert.NotContains(t, hitIDs(res), "go")
}

func TestBleveEngine_OnDiskReopenDropsStale(t *testing.T) {
	dir := t.TempDir()
	idxPath := filepath.Join(dir, "nested", "index.bleve")

	src := newFakeSource(sampleTrackers()...)
	eng, err := NewBleveEngine(src, idxPath)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	fi, err := os.Stat(idxPath)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	// the tracker went away while the index was closed
	src.remove("weather")
	eng, err = NewBleveEngine(src, idxPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	n, err := eng.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
