package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []Entry {
	return []Entry{
		{ID: 3, Name: "u", Data: []float64{1, 2, 3}},
		{ID: 7, Name: "kappa", Data: []float64{0.25}},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Write(4, sampleEntries()))

	got, err := s.Read(4)
	require.NoError(t, err)
	assert.Equal(t, sampleEntries(), got)
	assert.Equal(t, []int{4}, s.Blocks())
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	in := sampleEntries()
	require.NoError(t, s.Write(0, in))

	// Neither the written slice nor a read result aliases the store.
	in[0].Data[0] = -99
	got, err := s.Read(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got[0].Data[0])

	got[1].Data[0] = -99
	again, err := s.Read(0)
	require.NoError(t, err)
	assert.Equal(t, 0.25, again[1].Data[0])
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Write(1, sampleEntries()))
	require.NoError(t, s.Delete(1))

	_, err := s.Read(1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(1), ErrNotFound)
}

func TestDiskStoreRoundTrip(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(2, sampleEntries()))
	got, err := s.Read(2)
	require.NoError(t, err)
	assert.Equal(t, sampleEntries(), got)

	require.NoError(t, s.Delete(2))
	_, err = s.Read(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStoreDetectsCorruption(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Write(0, sampleEntries()))

	path := filepath.Join(s.Dir(), "block_000000.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var f map[string]any
	require.NoError(t, json.Unmarshal(raw, &f))
	entries := f["entries"].([]any)
	entries[0].(map[string]any)["data"] = []float64{9, 9, 9}
	raw, err = json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = s.Read(0)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDiskStoreRejectsUnknownVersion(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Write(0, sampleEntries()))

	path := filepath.Join(s.Dir(), "block_000000.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var f map[string]any
	require.NoError(t, json.Unmarshal(raw, &f))
	f["version"] = 99
	raw, err = json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = s.Read(0)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestDiskStoreCloseRemovesSessionDir(t *testing.T) {
	base := t.TempDir()
	s, err := NewDiskStore(base, nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(0, sampleEntries()))

	dir := s.Dir()
	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestTieredRouting(t *testing.T) {
	fast := NewMemoryStore()
	slow := NewMemoryStore()
	ts := Tiered{Fast: fast, Slow: slow}

	require.NoError(t, ts.Write(0, false, sampleEntries()[:1]))
	require.NoError(t, ts.Write(5, true, sampleEntries()[1:]))

	got, err := ts.Read(0, false)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	_, err = ts.Read(0, true)
	assert.ErrorIs(t, err, ErrNotFound)

	// Delete finds the block regardless of tier and tolerates absence.
	require.NoError(t, ts.Delete(5))
	require.NoError(t, ts.Delete(5))
	_, err = slow.Read(5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTieredMissingTier(t *testing.T) {
	ts := Tiered{Fast: NewMemoryStore()}
	err := ts.Write(0, true, sampleEntries())
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, ts.Close())
}
