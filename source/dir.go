package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imagesearch/feature"
	"imagesearch/logging"
	"imagesearch/types"
)

// DirSource serves reference images from a local directory tree.
// Identifiers are slash-separated paths relative to the root, so an
// index built on one machine stays valid when the root moves.
type DirSource struct {
	root string
}

// NewDir validates the path and returns a directory-backed source.
func NewDir(root string) (*DirSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("folder path does not exist: %s", root)
		}
		return nil, fmt.Errorf("cannot access folder path: %s (%v)", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}
	return &DirSource{root: root}, nil
}

// List walks the tree and returns every decodable image file, sorted by
// identifier. Unreadable subtrees are logged and skipped rather than
// failing the whole listing.
func (d *DirSource) List(ctx context.Context) ([]types.ImageRef, error) {
	var refs []types.ImageRef

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logging.LogWarning("Error accessing path %s: %v", path, err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !feature.IsSupported(ext) {
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			logging.LogWarning("Error resolving path %s: %v", path, err)
			return nil
		}

		refs = append(refs, types.ImageRef{
			ID:          filepath.ToSlash(rel),
			Name:        filepath.Base(path),
			ContentType: contentTypeFor(ext),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// Fetch reads the bytes for one listed identifier.
func (d *DirSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{ID: id, Err: err}
	}
	// Identifiers come from List; anything escaping the root is bogus.
	if filepath.IsAbs(id) || id == ".." || strings.HasPrefix(id, "../") {
		return nil, &FetchError{ID: id, Err: fmt.Errorf("identifier escapes source root")}
	}

	raw, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(id)))
	if err != nil {
		return nil, &FetchError{ID: id, Err: err}
	}
	return raw, nil
}
