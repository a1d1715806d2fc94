// Package feature turns raw image bytes into the fixed-size grayscale
// representation the similarity ranker compares. Extraction is a pure
// function of the input bytes: the same bytes always produce the same
// feature, which is what keeps persisted features valid across restarts.
package feature

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"strings"

	"imagesearch/types"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeError reports input bytes that could not be decoded as an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// supportedExts lists the file extensions the registered decoders accept.
var supportedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsSupported reports whether files with the given extension (including
// the leading dot, any case) can be decoded.
func IsSupported(ext string) bool {
	return supportedExts[strings.ToLower(ext)]
}

// Extract decodes an image and reduces it to the canonical grayscale
// grid. The source is scaled to 256x256 regardless of aspect ratio;
// non-uniform scaling is fine because every extraction applies the same
// transform, so features stay mutually comparable.
func Extract(r io.Reader) (types.Feature, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return types.Feature{}, &DecodeError{Err: err}
	}

	dst := image.NewGray(image.Rect(0, 0, types.FeatureWidth, types.FeatureHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	// image.NewGray allocates Stride == Width, so Pix is already the
	// row-major buffer the feature contract requires.
	return types.Feature{
		Width:  types.FeatureWidth,
		Height: types.FeatureHeight,
		Pix:    dst.Pix,
	}, nil
}

// ExtractBytes is Extract for an in-memory buffer.
func ExtractBytes(raw []byte) (types.Feature, error) {
	return Extract(bytes.NewReader(raw))
}
