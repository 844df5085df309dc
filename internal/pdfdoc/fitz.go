package pdfdoc

import (
	"context"
	"fmt"
	"image"
	"sync"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// FitzOpener implements Opener using github.com/gen2brain/go-fitz (MuPDF).
type FitzOpener struct{}

// NewFitzOpener returns the default MuPDF-backed opener.
func NewFitzOpener() FitzOpener { return FitzOpener{} }

func (FitzOpener) OpenBytes(ctx context.Context, b []byte) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(b)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	d := &fitzDoc{doc: doc, id: Digest(b), pages: doc.NumPage()}
	log.Debug().Str("doc", d.id[:12]).Int("pages", d.pages).Msg("opened document with go-fitz")
	return d, nil
}

// fitzDoc serializes access to the MuPDF context, which is not safe for
// concurrent rendering.
type fitzDoc struct {
	mu    sync.Mutex
	doc   *fitz.Document
	id    string
	pages int
}

func (d *fitzDoc) ID() string   { return d.id }
func (d *fitzDoc) NumPage() int { return d.pages }

func (d *fitzDoc) RenderPage(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := CheckPage(page, d.pages); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.doc == nil {
		return nil, fmt.Errorf("render page %d: document closed", page)
	}
	// go-fitz uses 0-based indexing
	img, err := d.doc.ImageDPI(page-1, scale*72)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

func (d *fitzDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}
