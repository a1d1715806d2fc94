package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"imagesearch/types"
)

// Snapshot file layout, all integers big-endian:
//
//	magic "IMGIDX" | version uint8 | count uint32
//	per entry: id, name, content type (each uint16 length + bytes),
//	           width uint16, height uint16, width*height feature bytes
//
// Entries are written in ascending identifier order so saving a loaded
// snapshot reproduces it byte for byte. The version byte makes schema
// changes detectable: an unknown version is rejected instead of being
// misparsed.
const (
	snapshotMagic   = "IMGIDX"
	snapshotVersion = 1
)

// SnapshotStore persists the index as a single versioned snapshot file.
type SnapshotStore struct {
	path string
}

// NewSnapshot creates a snapshot store backed by the given file path.
// The file does not need to exist yet.
func NewSnapshot(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load reads the snapshot file. A missing file is an empty index.
func (s *SnapshotStore) Load() (types.Index, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Index{}, nil
		}
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	defer f.Close()

	idx, err := readSnapshot(bufio.NewReader(f))
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return idx, nil
}

// Save writes the full index to a temporary file and renames it into
// place, so a crash mid-write never leaves a truncated snapshot behind.
func (s *SnapshotStore) Save(idx types.Index) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeSnapshot(w, idx); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func (s *SnapshotStore) Close() error { return nil }

func writeSnapshot(w io.Writer, idx types.Index) error {
	if _, err := w.Write([]byte(snapshotMagic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(idx))); err != nil {
		return err
	}

	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entry := idx[id]
		if err := validateEntry(id, entry); err != nil {
			return err
		}
		for _, s := range []string{id, entry.Meta.Name, entry.Meta.ContentType} {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.BigEndian, uint16(entry.Feature.Width)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint16(entry.Feature.Height)); err != nil {
			return err
		}
		if _, err := w.Write(entry.Feature.Pix); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshot(r io.Reader) (types.Index, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("cannot read snapshot header: %v", err)
	}
	if string(magic) != snapshotMagic {
		return nil, fmt.Errorf("not an index snapshot (bad magic %q)", magic)
	}

	var version uint8
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("cannot read snapshot version: %v", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (expected %d)", version, snapshotVersion)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("cannot read entry count: %v", err)
	}

	idx := make(types.Index, count)
	for i := uint32(0); i < count; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d: cannot read id: %v", i, err)
		}
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("entry %s: cannot read name: %v", id, err)
		}
		contentType, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("entry %s: cannot read content type: %v", id, err)
		}

		var width, height uint16
		if err := binary.Read(r, binary.BigEndian, &width); err != nil {
			return nil, fmt.Errorf("entry %s: cannot read dimensions: %v", id, err)
		}
		if err := binary.Read(r, binary.BigEndian, &height); err != nil {
			return nil, fmt.Errorf("entry %s: cannot read dimensions: %v", id, err)
		}

		pix := make([]uint8, int(width)*int(height))
		if _, err := io.ReadFull(r, pix); err != nil {
			return nil, fmt.Errorf("entry %s: cannot read feature pixels: %v", id, err)
		}

		idx[id] = types.IndexEntry{
			Meta: types.Meta{Name: name, ContentType: contentType},
			Feature: types.Feature{
				Width:  int(width),
				Height: int(height),
				Pix:    pix,
			},
		}
	}
	return idx, nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string too long for snapshot record: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
