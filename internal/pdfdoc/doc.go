// Package pdfdoc abstracts the external PDF rendering library behind a small
// document handle so the viewer can be driven by go-fitz in production and by
// in-memory fakes in tests.
package pdfdoc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"

	"golang.org/x/crypto/blake2b"
)

// ErrPageRange is returned when a page number is outside [1, NumPage].
var ErrPageRange = errors.New("page out of range")

// Doc is an opened source document. Page numbers are 1-based.
type Doc interface {
	// ID identifies the document content; equal bytes yield equal IDs.
	ID() string
	NumPage() int
	// RenderPage rasterizes one page at the given scale (1.0 = 72 DPI).
	RenderPage(ctx context.Context, page int, scale float64) (image.Image, error)
	Close() error
}

// Opener opens raw document bytes into a Doc.
type Opener interface {
	OpenBytes(ctx context.Context, b []byte) (Doc, error)
}

// Digest returns the content identifier used for Doc.ID.
func Digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CheckPage validates page against a document of total pages.
func CheckPage(page, total int) error {
	if page < 1 || page > total {
		return fmt.Errorf("page %d (document has %d pages): %w", page, total, ErrPageRange)
	}
	return nil
}
