package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"imagesearch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIndex builds a small index with distinct shapes of content.
func testIndex() types.Index {
	return types.Index{
		"photos/cat.png": {
			Meta:    types.Meta{Name: "cat.png", ContentType: "image/png"},
			Feature: types.Feature{Width: 8, Height: 8, Pix: seqPix(64, 0)},
		},
		"photos/dog.jpg": {
			Meta:    types.Meta{Name: "dog.jpg", ContentType: "image/jpeg"},
			Feature: types.Feature{Width: 8, Height: 8, Pix: seqPix(64, 100)},
		},
		"empty-meta": {
			Feature: types.Feature{Width: 4, Height: 4, Pix: seqPix(16, 7)},
		},
	}
}

func seqPix(n int, offset uint8) []uint8 {
	pix := make([]uint8, n)
	for i := range pix {
		pix[i] = uint8(i) + offset
	}
	return pix
}

// testStoreRoundTrip is the shared contract suite every backend must
// pass: empty load, exact round-trip, and overwrite semantics.
func testStoreRoundTrip(t *testing.T, open func(t *testing.T) Store) {
	t.Run("empty load", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		idx, err := s.Load()
		require.NoError(t, err)
		assert.Empty(t, idx)
	})

	t.Run("round trip", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		original := testIndex()
		require.NoError(t, s.Save(original))

		loaded, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, original, loaded)
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		require.NoError(t, s.Save(testIndex()))

		smaller := types.Index{
			"only": {
				Meta:    types.Meta{Name: "only", ContentType: "image/png"},
				Feature: types.Feature{Width: 2, Height: 2, Pix: []uint8{1, 2, 3, 4}},
			},
		}
		require.NoError(t, s.Save(smaller))

		loaded, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, smaller, loaded)
	})

	t.Run("rejects inconsistent entry", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		bad := types.Index{
			"broken": {Feature: types.Feature{Width: 8, Height: 8, Pix: []uint8{1, 2, 3}}},
		}
		assert.Error(t, s.Save(bad))
	})
}

func TestSnapshotStore(t *testing.T) {
	testStoreRoundTrip(t, func(t *testing.T) Store {
		return NewSnapshot(filepath.Join(t.TempDir(), "index.snap"))
	})
}

func TestSQLiteStore(t *testing.T) {
	testStoreRoundTrip(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
		require.NoError(t, err)
		return s
	})
}

func TestBoltStore(t *testing.T) {
	testStoreRoundTrip(t, func(t *testing.T) Store {
		s, err := OpenBolt(filepath.Join(t.TempDir(), "index.bolt"))
		require.NoError(t, err)
		return s
	})
}

// Saving a loaded snapshot reproduces it byte for byte: entries are
// written in sorted order, so the file is a canonical form.
func TestSnapshotSaveIsCanonical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snap")
	s := NewSnapshot(path)

	require.NoError(t, s.Save(testIndex()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.Save(loaded))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSnapshotRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snap")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot at all"), 0644))

	_, err := NewSnapshot(path).Load()
	require.Error(t, err)
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr), "expected *PersistenceError, got %T", err)
}

func TestSnapshotRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snap")
	// Valid magic, bogus version byte, empty body.
	require.NoError(t, os.WriteFile(path, append([]byte(snapshotMagic), 0x63, 0, 0, 0, 0), 0644))

	_, err := NewSnapshot(path).Load()
	require.Error(t, err)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Err.Error(), "version")
}

func TestSnapshotRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snap")
	s := NewSnapshot(path)
	require.NoError(t, s.Save(testIndex()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-10], 0644))

	_, err = s.Load()
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr), "expected *PersistenceError, got %v", err)
}

func TestSQLiteRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenSQLite(path)
	require.Error(t, err)
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr))
}
