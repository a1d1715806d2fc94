package types

// FeatureWidth and FeatureHeight are the canonical feature dimensions.
// Every feature stored in an index has exactly this shape; features of
// different shapes are not comparable.
const (
	FeatureWidth  = 256
	FeatureHeight = 256
)

// Feature is the comparable representation of an image: a grayscale
// intensity grid stored row-major in Pix, len(Pix) == Width*Height.
type Feature struct {
	Width  int
	Height int
	Pix    []uint8
}

// Valid reports whether the feature has a consistent shape and buffer.
func (f Feature) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height
}

// ImageRef is one row of a source listing: a stable identifier plus
// descriptive metadata.
type ImageRef struct {
	ID          string
	Name        string
	ContentType string
}

// Meta holds the descriptive metadata persisted alongside a feature.
type Meta struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// IndexEntry pairs an image's metadata with its feature representation.
// Entries are immutable once inserted; a forced rebuild replaces them.
type IndexEntry struct {
	Meta    Meta
	Feature Feature
}

// Index maps image identifiers to their indexed entries.
type Index map[string]IndexEntry

// Match is a single search hit.
type Match struct {
	ID    string
	Score float64
}

// BuildReport summarizes an indexing run.
type BuildReport struct {
	Added int
	Total int
}

// Status describes the engine's index state.
type Status struct {
	Indexed bool
	Total   int
}
