package openingbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firstPicker struct{ calls int }

func (p *firstPicker) Intn(int) int { p.calls++; return 0 }

type lastPicker struct{}

func (lastPicker) Intn(n int) int { return n - 1 }

func sampleBook() *Book {
	return New([]string{"e4 e5 Nf3", "e4 e5 Nc3", "d4 d5"})
}

func TestCandidatesForHistory(t *testing.T) {
	b := sampleBook()
	assert.Equal(t, []string{"Nf3", "Nc3"}, b.Candidates("e4 e5"))
	assert.Equal(t, []string{"e5"}, b.Candidates("e4"))
	assert.Equal(t, []string{"e4", "d4"}, b.Candidates(""))
	assert.Empty(t, b.Candidates("e4 e5 Nf3"))
	assert.Empty(t, b.Candidates("c4"))
}

func TestLookupDeterministicWithFixedPicker(t *testing.T) {
	b := sampleBook()
	p := &firstPicker{}
	for i := 0; i < 5; i++ {
		res, ok := b.Lookup("e4 e5", p)
		require.True(t, ok)
		assert.Equal(t, "Nf3", res.Move)
		assert.Equal(t, []string{"Nc3"}, res.Alternatives)
	}

	res, ok := b.Lookup("e4 e5", lastPicker{})
	require.True(t, ok)
	assert.Equal(t, "Nc3", res.Move)
	assert.Equal(t, []string{"Nf3"}, res.Alternatives)
}

func TestLookupSingleCandidateSkipsPicker(t *testing.T) {
	p := &firstPicker{}
	res, ok := sampleBook().Lookup("d4", p)
	require.True(t, ok)
	assert.Equal(t, "d5", res.Move)
	assert.Empty(t, res.Alternatives)
	assert.Zero(t, p.calls)
}

func TestLookupMiss(t *testing.T) {
	_, ok := sampleBook().Lookup("e4 c5", &firstPicker{})
	assert.False(t, ok)
	_, ok = Empty().Lookup("", &firstPicker{})
	assert.False(t, ok)
}

func TestCandidatesDeduplicateAndSkipShortOrMisalignedLines(t *testing.T) {
	b := New([]string{
		"e2e4 e7e5 g1f3",
		"e2e4 e7e5 g1f3 b8c6",
		"e2e4 e7e5",
		"e2e4 e7e55 x",
		"  e2e4   e7e5   f1c4  ",
	})
	assert.Equal(t, []string{"g1f3", "f1c4"}, b.Candidates("e2e4 e7e5"))
}

func TestLoadJSONAndText(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "book.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`["e2e4 e7e5", "d2d4 d7d5", ""]`), 0o644))
	b, err := Load(jsonPath, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2e4 e7e5", "d2d4 d7d5"}, b.Lines())

	txtPath := filepath.Join(dir, "book.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("# comment\ne2e4 c7c5\n\nc2c4\n"), 0o644))
	b, err = Load(txtPath, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2e4 c7c5", "c2c4"}, b.Lines())
}

func TestLoadIllegalJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "a list"}`), 0o644))
	_, err := Load(path, LoadOptions{})
	require.Error(t, err)
}

func TestSANToUCI(t *testing.T) {
	got, err := SANToUCI("e4 e5 Nf3 Nc6 Bb5")
	require.NoError(t, err)
	assert.Equal(t, "e2e4 e7e5 g1f3 b8c6 f1b5", got)

	got, err = SANToUCI("d4 d5 Zz9 c4")
	require.NoError(t, err)
	assert.Equal(t, "d2d4 d7d5", got)

	_, err = SANToUCI("Qxh7")
	require.Error(t, err)
}

func TestLoadSANBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(path, []byte("e4 e5 Nf3\ne4 c5\n"), 0o644))
	b, err := Load(path, LoadOptions{Notation: NotationSAN})
	require.NoError(t, err)
	assert.Equal(t, []string{"g1f3"}, b.Candidates("e2e4 e7e5"))
	assert.Equal(t, []string{"e7e5", "c7c5"}, b.Candidates("e2e4"))
}

func TestStoreReloadFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.json")
	require.NoError(t, os.WriteFile(path, []byte(`["e2e4 e7e5"]`), 0o644))

	s := NewStore(nil)
	assert.Zero(t, s.Current().Len())

	old := s.Reload(path, LoadOptions{})
	assert.Equal(t, 1, old.Len())

	s.Reload(filepath.Join(dir, "missing.json"), LoadOptions{})
	assert.Zero(t, s.Current().Len())
	assert.Equal(t, 1, old.Len(), "published snapshots are never mutated")
}
