package version

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrsl/tailor/pkg/utils"
)

func TestSaveNumbersFromOne(t *testing.T) {
	s := NewStore(t.TempDir())

	for i, content := range []string{"draft", "shorter", "short"} {
		v, err := s.Save("acme-resume", content, Metadata{Iteration: i})
		require.NoError(t, err)
		assert.Equal(t, i+1, v.Number)
		assert.Equal(t, len(content), v.Length)
	}

	latest, err := s.Latest("acme-resume")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Number)
	assert.Equal(t, "short", latest.Content)

	all, err := s.List("acme-resume")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, v := range all {
		assert.Equal(t, i+1, v.Number)
	}
}

func TestVersionsAreImmutable(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Save("doc", "first", Metadata{})
	require.NoError(t, err)

	err = utils.WriteJSONOnce(s.path("doc", 1), Version{Content: "overwrite"})
	assert.ErrorIs(t, err, utils.ErrRecordExists)

	v, err := s.Load("doc", 1)
	require.NoError(t, err)
	assert.Equal(t, "first", v.Content)
}

func TestStoreResumesNumbering(t *testing.T) {
	dir := t.TempDir()
	first := NewStore(dir)
	_, err := first.Save("doc", "a", Metadata{})
	require.NoError(t, err)
	_, err = first.Save("doc", "b", Metadata{})
	require.NoError(t, err)

	second := NewStore(dir)
	v, err := second.Save("doc", "c", Metadata{Parent: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Number)
	assert.Equal(t, 1, v.Metadata.Parent)
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("doc", 4)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Latest("doc")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidDocumentID(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, id := range []string{"", "..", "a/b"} {
		_, err := s.Save(id, "x", Metadata{})
		assert.Error(t, err, "id %q", id)
	}
}

func TestConcurrentDocuments(t *testing.T) {
	s := NewStore(t.TempDir())
	docs := []string{"p1-resume", "p1-cover_letter", "p2-resume", "p2-cover_letter"}

	var wg sync.WaitGroup
	for _, id := range docs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := s.Save(id, id, Metadata{Iteration: i})
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	ids, err := s.Documents()
	require.NoError(t, err)
	assert.Len(t, ids, len(docs))
	for _, id := range docs {
		latest, err := s.Latest(id)
		require.NoError(t, err)
		assert.Equal(t, 5, latest.Number)
	}
}
