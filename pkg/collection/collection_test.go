package collection

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/slotkv/pkg/codec"
	"github.com/ssargent/slotkv/pkg/config"
	"github.com/ssargent/slotkv/pkg/pipeline"
)

func testOptions(t *testing.T) config.CollectionOptions {
	t.Helper()
	base := config.DatabaseOptions{BaseDirectory: t.TempDir(), DatabaseName: "shop"}
	return config.Default(base, "widgets")
}

func TestCollectionAddGetRemove(t *testing.T) {
	opts := testOptions(t)
	c, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.Add("a", "alpha")
	require.NoError(t, err)
	assert.True(t, ok)

	value, found := c.TryGet("a")
	assert.True(t, found)
	assert.Equal(t, "alpha", value)
	assert.True(t, c.Contains("a"))
	assert.Equal(t, 1, c.Count())

	removed, value, err := c.Remove("a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, "alpha", value)
	assert.False(t, c.Contains("a"))
}

func TestCollectionAddDuplicateBehaviors(t *testing.T) {
	opts := testOptions(t)

	failing := opts
	failing.AddDuplicateKeyBehavior = config.FailWithError
	c, err := Open[string, string](failing, "widgets", nil)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Add("a", "one")
	require.NoError(t, err)
	_, err = c.Add("a", "two")
	assert.ErrorIs(t, err, ErrDuplicateKey)

	returning := opts
	returning.AddDuplicateKeyBehavior = config.ReturnFalse
	c2, err := Open[string, string](returning, "gadgets", nil)
	require.NoError(t, err)
	defer c2.Close()
	_, err = c2.Add("a", "one")
	require.NoError(t, err)
	ok, err := c2.Add("a", "two")
	require.NoError(t, err)
	assert.False(t, ok)
	value, _ := c2.TryGet("a")
	assert.Equal(t, "one", value, "ReturnFalse must not overwrite")

	upserting := opts
	upserting.AddDuplicateKeyBehavior = config.Upsert
	c3, err := Open[string, string](upserting, "sprockets", nil)
	require.NoError(t, err)
	defer c3.Close()
	_, err = c3.Add("a", "one")
	require.NoError(t, err)
	ok, err = c3.Add("a", "two")
	require.NoError(t, err)
	assert.True(t, ok)
	value, _ = c3.TryGet("a")
	assert.Equal(t, "two", value)
}

func TestCollectionUpdateMissingKey(t *testing.T) {
	opts := testOptions(t)
	opts.UpdateKeyNotFoundBehavior = config.MissingFailWithError
	c, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer c.Close()

	err = c.Update("missing", "value")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	opts.UpdateKeyNotFoundBehavior = config.MissingReturnFalse
	c2, err := Open[string, string](opts, "gadgets", nil)
	require.NoError(t, err)
	defer c2.Close()
	assert.NoError(t, c2.Update("missing", "value"))
}

func TestCollectionBulkAdd(t *testing.T) {
	opts := testOptions(t)
	opts.BulkAddDuplicateKeyBehavior = config.Upsert
	c, err := Open[string, int](opts, "widgets", nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Add("a", 1)
	require.NoError(t, err)

	ok, err := c.BulkAdd(map[string]int{"a": 100, "b": 2, "c": 3})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, c.Count())
	v, _ := c.TryGet("a")
	assert.Equal(t, 100, v)
}

func TestCollectionBulkAddFailsOnDuplicateByDefault(t *testing.T) {
	opts := testOptions(t)
	c, err := Open[string, int](opts, "widgets", nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Add("a", 1)
	require.NoError(t, err)

	ok, err := c.BulkAdd(map[string]int{"a": 100, "b": 2})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, 1, c.Count(), "bulk add must not partially apply")
}

func TestCollectionReopenAfterCloseReloadsValues(t *testing.T) {
	opts := testOptions(t)
	path := opts.FileName("widgets")

	c, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	_, err = c.Add("a", "alpha")
	require.NoError(t, err)
	_, err = c.Add("b", "beta")
	require.NoError(t, err)
	_, _, err = c.Remove("a")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c2, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer c2.Close()

	assert.False(t, c2.Contains("a"))
	v, found := c2.TryGet("b")
	assert.True(t, found)
	assert.Equal(t, "beta", v)
	assert.FileExists(t, path)
}

func TestCollectionLoadTwiceReturnsAlreadyOpen(t *testing.T) {
	opts := testOptions(t)

	c, err := New[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, c.Load())
	defer c.Close()

	err = c.Load()
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestCollectionClosedRejectsOperations(t *testing.T) {
	opts := testOptions(t)
	c, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Add("a", "alpha")
	assert.ErrorIs(t, err, ErrCollectionClosed)
}

func TestCollectionReadOnlyRejectsWrites(t *testing.T) {
	opts := testOptions(t)
	c, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	_, err = c.Add("a", "alpha")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	opts.IsReadOnlyEnabled = true
	ro, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.Add("b", "beta")
	assert.ErrorIs(t, err, ErrCollectionReadOnly)
}

func TestCollectionEncryptedRoundTripAndWrongPassword(t *testing.T) {
	opts := testOptions(t)
	opts.IsEncryptionEnabled = true
	opts.EncryptionPassword = "correct-horse"
	opts.Serializer = codec.BinaryContractless

	c, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	_, err = c.Add("a", "alpha")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	opts.EncryptionPassword = "wrong-password"
	_, err = Open[string, string](opts, "widgets", nil)
	assert.ErrorIs(t, err, ErrDecryptionFailure)

	opts.EncryptionPassword = "correct-horse"
	c2, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer c2.Close()
	v, found := c2.TryGet("a")
	assert.True(t, found)
	assert.Equal(t, "alpha", v)
}

func TestCollectionMemoryOnlyNeverTouchesDisk(t *testing.T) {
	opts := testOptions(t)
	opts.IsMemoryOnlyEnabled = true

	c, err := Open[string, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Add("a", "alpha")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), c.SizeBytes())
	assert.NoFileExists(t, filepath.Join(opts.BaseDirectory, opts.DatabaseName, "widgets.slotkv"))
}

func TestCollectionParallelPipelineAndFlush(t *testing.T) {
	opts := testOptions(t)
	opts.BufferMode = pipeline.ParallelBuffered
	opts.MaxDegreeOfParallelism = 4

	c, err := Open[int, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 100; i++ {
		_, err := c.Add(i, "v")
		require.NoError(t, err)
	}
	require.NoError(t, c.Flush())
	assert.Equal(t, 100, c.Count())

	require.NoError(t, c.Close())

	reopened, err := Open[int, string](opts, "widgets", nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 100, reopened.Count())
}
