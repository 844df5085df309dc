// Package render rasterizes document pages into cached JPEG images.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"

	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/pagecache"
	"github.com/local/flipbook/internal/pdfdoc"
)

// Store is a shared second-tier cache of encoded pages, keyed by document
// digest. Errors are treated as misses.
type Store interface {
	Load(ctx context.Context, docID string, key pagecache.Key) ([]byte, bool, error)
	Save(ctx context.Context, docID string, key pagecache.Key, jpeg []byte) error
}

// Options configures a Renderer.
type Options struct {
	Quality     int
	MaxInflight int
	ThumbScale  float64
	ThumbWidth  int
	Store       Store
}

// Renderer turns (page, scale) into an Image, writing through the page cache.
type Renderer struct {
	cache      *pagecache.Cache[*Image]
	sem        *semaphore.Weighted
	quality    int
	thumbScale float64
	thumbWidth int
	store      Store
}

// New creates a Renderer over cache.
func New(cache *pagecache.Cache[*Image], opts Options) *Renderer {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 92
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.ThumbScale <= 0 {
		opts.ThumbScale = 0.7
	}
	return &Renderer{
		cache:      cache,
		sem:        semaphore.NewWeighted(int64(opts.MaxInflight)),
		quality:    opts.Quality,
		thumbScale: opts.ThumbScale,
		thumbWidth: opts.ThumbWidth,
		store:      opts.Store,
	}
}

// Cache exposes the page cache the renderer writes through.
func (r *Renderer) Cache() *pagecache.Cache[*Image] { return r.cache }

// Cached returns an already rendered page of the document docID without
// rasterizing.
func (r *Renderer) Cached(docID string, page int, scale float64) (*Image, bool) {
	return r.cache.Get(pagecache.Key{Doc: docID, Page: page, Scale: pagecache.ClassOf(scale)})
}

// Render returns page at scale, from cache when possible.
func (r *Renderer) Render(ctx context.Context, doc pdfdoc.Doc, page int, scale float64) (*Image, error) {
	key := pagecache.Key{Doc: docID(doc), Page: page, Scale: pagecache.ClassOf(scale)}
	return r.render(ctx, doc, key, scale, 0)
}

// Thumbnail returns page rendered at the thumbnail scale and, when a
// thumbnail width is configured, downsized to it.
func (r *Renderer) Thumbnail(ctx context.Context, doc pdfdoc.Doc, page int) (*Image, error) {
	key := pagecache.Key{Doc: docID(doc), Page: page, Scale: pagecache.ThumbClass}
	return r.render(ctx, doc, key, r.thumbScale, r.thumbWidth)
}

func docID(doc pdfdoc.Doc) string {
	if doc == nil {
		return ""
	}
	return doc.ID()
}

func (r *Renderer) render(ctx context.Context, doc pdfdoc.Doc, key pagecache.Key, scale float64, maxWidth int) (*Image, error) {
	if img, ok := r.cache.Get(key); ok {
		metrics.CacheHit("memory")
		return img, nil
	}
	metrics.CacheMiss("memory")
	if doc == nil {
		return nil, &RenderError{Page: key.Page, Err: fmt.Errorf("no document loaded")}
	}
	epoch := r.cache.Epoch()

	if img := r.loadShared(ctx, doc.ID(), key); img != nil {
		r.cache.PutIfEpoch(epoch, key, img)
		return img, nil
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, &RenderError{Page: key.Page, Err: err}
	}
	start := time.Now()
	img, err := r.rasterize(ctx, doc, key, scale, maxWidth)
	r.sem.Release(1)

	kind := "page"
	if key.Scale == pagecache.ThumbClass {
		kind = "thumb"
	}
	metrics.ObserveRender(kind, err, time.Since(start))
	if err != nil {
		log.Warn().Err(err).Int("page", key.Page).Float64("scale", scale).Msg("page render failed")
		return nil, &RenderError{Page: key.Page, Err: err}
	}

	if !r.cache.PutIfEpoch(epoch, key, img) {
		// cleared mid-render or raced by another caller; prefer the cached one
		if cached, ok := r.cache.Get(key); ok {
			return cached, nil
		}
	}
	r.saveShared(doc.ID(), key, img)
	return img, nil
}

func (r *Renderer) rasterize(ctx context.Context, doc pdfdoc.Doc, key pagecache.Key, scale float64, maxWidth int) (*Image, error) {
	src, err := doc.RenderPage(ctx, key.Page, scale)
	if err != nil {
		return nil, err
	}

	// Paint over white: transparent regions would otherwise encode black.
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		if h < 1 {
			h = 1
		}
		w = maxWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		xdraw.Draw(dst, dst.Bounds(), src, bounds.Min, xdraw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", key.Page).
		Int("width", w).
		Int("height", h).
		Int("jpeg_size", buf.Len()).
		Float64("scale", scale).
		Msg("rendered page")

	return &Image{Page: key.Page, Scale: key.Scale, Width: w, Height: h, JPEG: buf.Bytes()}, nil
}

func (r *Renderer) loadShared(ctx context.Context, docID string, key pagecache.Key) *Image {
	if r.store == nil {
		return nil
	}
	b, ok, err := r.store.Load(ctx, docID, key)
	if err != nil {
		log.Warn().Err(err).Int("page", key.Page).Msg("shared render store load failed")
		return nil
	}
	if !ok {
		metrics.CacheMiss("shared")
		return nil
	}
	img, err := decodeImage(key, b)
	if err != nil {
		log.Warn().Err(err).Int("page", key.Page).Msg("discarding unreadable shared render")
		return nil
	}
	metrics.CacheHit("shared")
	return img
}

func (r *Renderer) saveShared(docID string, key pagecache.Key, img *Image) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, docID, key, img.JPEG); err != nil {
		log.Warn().Err(err).Int("page", key.Page).Msg("shared render store save failed")
	}
}
