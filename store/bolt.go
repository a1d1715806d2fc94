package store

import (
	"encoding/json"
	"fmt"
	"time"

	"imagesearch/types"

	"go.etcd.io/bbolt"
)

const (
	featuresBucket = "features"
	metadataBucket = "metadata"
)

// boltMeta is the per-entry record kept in the metadata bucket; the raw
// feature pixels live under the same key in the features bucket.
type boltMeta struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// BoltStore persists the index in a bbolt database file.
type BoltStore struct {
	db   *bbolt.DB
	path string
}

// OpenBolt opens (creating if necessary) a bbolt-backed index store.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{featuresBucket, metadataBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}

	return &BoltStore{db: db, path: path}, nil
}

// Load reads every stored entry. An empty database yields an empty index.
func (b *BoltStore) Load() (types.Index, error) {
	idx := types.Index{}

	err := b.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metadataBucket))
		features := tx.Bucket([]byte(featuresBucket))
		if meta == nil || features == nil {
			return fmt.Errorf("index buckets missing")
		}

		return meta.ForEach(func(k, v []byte) error {
			var m boltMeta
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to unmarshal metadata for %s: %w", string(k), err)
			}
			pix := features.Get(k)
			if len(pix) != m.Width*m.Height {
				return fmt.Errorf("entry %s has a %dx%d feature with %d pixel bytes",
					string(k), m.Width, m.Height, len(pix))
			}
			// Copy the pixels since bucket data is only valid during
			// the transaction.
			cp := make([]uint8, len(pix))
			copy(cp, pix)
			idx[string(k)] = types.IndexEntry{
				Meta:    types.Meta{Name: m.Name, ContentType: m.ContentType},
				Feature: types.Feature{Width: m.Width, Height: m.Height, Pix: cp},
			}
			return nil
		})
	})
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: b.path, Err: err}
	}
	return idx, nil
}

// Save replaces the stored index in a single transaction.
func (b *BoltStore) Save(idx types.Index) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{featuresBucket, metadataBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bbolt.ErrBucketNotFound {
				return fmt.Errorf("failed to reset %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(metadataBucket))
		features := tx.Bucket([]byte(featuresBucket))

		for id, entry := range idx {
			if err := validateEntry(id, entry); err != nil {
				return err
			}
			data, err := json.Marshal(boltMeta{
				Name:        entry.Meta.Name,
				ContentType: entry.Meta.ContentType,
				Width:       entry.Feature.Width,
				Height:      entry.Feature.Height,
			})
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for %s: %w", id, err)
			}
			if err := meta.Put([]byte(id), data); err != nil {
				return err
			}
			if err := features.Put([]byte(id), entry.Feature.Pix); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Op: "save", Path: b.path, Err: err}
	}
	return nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
