package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"

	"github.com/local/flipbook/internal/pagecache"
)

// Image is one rendered page, JPEG-encoded.
type Image struct {
	Page   int
	Scale  pagecache.ScaleClass
	Width  int
	Height int
	JPEG   []byte
}

// DataURL returns the image as an inline data URL.
func (i *Image) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(i.JPEG)
}

// decodeImage rebuilds an Image from JPEG bytes fetched from a shared store.
func decodeImage(key pagecache.Key, b []byte) (*Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG: %w", err)
	}
	return &Image{Page: key.Page, Scale: key.Scale, Width: cfg.Width, Height: cfg.Height, JPEG: b}, nil
}

// RenderError reports a page that could not be rasterized. The viewer shows a
// blank placeholder for it and carries on.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
