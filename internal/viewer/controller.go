// Package viewer holds the current position in a document and keeps the
// display in step with it, in single-page or two-page spread mode.
package viewer

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/flipbook/internal/pagemap"
	"github.com/local/flipbook/internal/pdfdoc"
	"github.com/local/flipbook/internal/render"
)

var (
	// ErrNoDocument is returned by navigation before any document is loaded.
	ErrNoDocument = errors.New("no document loaded")
	// ErrSuperseded is returned by a ShowInstant whose result was discarded
	// because a newer request reached the display first.
	ErrSuperseded = errors.New("view superseded by a newer request")
)

// Options configures a Controller.
type Options struct {
	Mode             Mode
	Scaler           render.Scaler
	MaxThumbs        int
	ThumbConcurrency int
	ClearOnResize    bool
}

// Controller owns the document handle, the page map and the current position.
type Controller struct {
	r       *render.Renderer
	display Display
	opts    Options

	mu       sync.Mutex
	doc      pdfdoc.Doc
	pages    pagemap.Map
	current  int
	scale    float64
	gen      uint64
	thumbs   []Thumb
	thumbGen uint64
}

// New returns a Controller with no document.
func New(r *render.Renderer, display Display, opts Options) *Controller {
	if opts.Mode == "" {
		opts.Mode = Spread
	}
	if opts.ThumbConcurrency <= 0 {
		opts.ThumbConcurrency = 4
	}
	return &Controller{
		r:       r,
		display: display,
		opts:    opts,
		scale:   opts.Scaler.For(0),
	}
}

func (c *Controller) Mode() Mode { return c.opts.Mode }

// Step is the logical distance of one page turn.
func (c *Controller) Step() int { return c.opts.Mode.Step() }

// Renderer returns the renderer the controller draws with.
func (c *Controller) Renderer() *render.Renderer { return c.r }

// Reset swaps in a new document and page map and rewinds to the first page.
// The page cache is cleared together with the swap, in-flight renders for the
// previous document are discarded and its handle is closed.
func (c *Controller) Reset(doc pdfdoc.Doc, pages pagemap.Map) {
	c.mu.Lock()
	c.r.Cache().Clear()
	prev := c.doc
	c.doc = doc
	c.pages = pages
	c.current = 0
	c.gen++
	c.thumbs = nil
	c.thumbGen++
	c.mu.Unlock()

	if prev != nil && prev != doc {
		if err := prev.Close(); err != nil {
			log.Warn().Err(err).Str("doc", prev.ID()).Msg("closing previous document")
		}
	}
}

// Document returns the current handle and map; doc is nil before any load.
func (c *Controller) Document() (pdfdoc.Doc, pagemap.Map) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc, c.pages
}

func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Len is the number of displayed pages.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages.Len()
}

// Scale is the render scale for full-size pages.
func (c *Controller) Scale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// Clamp pins idx to the displayed range.
func (c *Controller) Clamp(idx int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages.Clamp(idx)
}

// ShowInstant moves to idx (clamped) and paints it without animation. When
// several requests overlap, only the most recent one reaches the display;
// older ones return ErrSuperseded.
func (c *Controller) ShowInstant(ctx context.Context, idx int) (View, error) {
	c.mu.Lock()
	if c.doc == nil {
		c.mu.Unlock()
		return View{}, ErrNoDocument
	}
	idx = c.pages.Clamp(idx)
	c.current = idx
	c.gen++
	gen, doc, pages, scale := c.gen, c.doc, c.pages, c.scale
	c.mu.Unlock()

	left := c.slot(ctx, doc, pages, idx, scale)
	right := noPage
	if c.opts.Mode == Spread && idx+1 < pages.Len() {
		right = c.slot(ctx, doc, pages, idx+1, scale)
	}
	v := View{
		Mode:    c.opts.Mode,
		Current: idx,
		Count:   pages.Len(),
		Left:    left,
		Right:   right,
	}
	v.Label, v.Total = label(c.opts.Mode, left, right, pages.Len())

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		log.Debug().Int("index", idx).Msg("dropping superseded view")
		return v, ErrSuperseded
	}
	if c.display != nil {
		c.display.Show(v)
	}
	return v, nil
}

// JumpTo navigates directly, as a thumbnail click does. In spread mode the
// target is aligned to the left page of its spread.
func (c *Controller) JumpTo(ctx context.Context, idx int) (View, error) {
	if c.opts.Mode == Spread {
		idx = c.Clamp(idx)
		idx -= idx % 2
	}
	return c.ShowInstant(ctx, idx)
}

// Refresh repaints the current position.
func (c *Controller) Refresh(ctx context.Context) (View, error) {
	return c.ShowInstant(ctx, c.Current())
}

// Page renders one logical page at the current scale. Out-of-range indexes
// yield an empty slot; render failures yield a blank one.
func (c *Controller) Page(ctx context.Context, logical int) Slot {
	c.mu.Lock()
	doc, pages, scale := c.doc, c.pages, c.scale
	c.mu.Unlock()
	if doc == nil {
		return noPage
	}
	return c.slot(ctx, doc, pages, logical, scale)
}

func (c *Controller) slot(ctx context.Context, doc pdfdoc.Doc, pages pagemap.Map, logical int, scale float64) Slot {
	src, ok := pages.Source(logical)
	if !ok {
		return noPage
	}
	s := Slot{Logical: logical, Source: src}
	img, err := c.r.Render(ctx, doc, src, scale)
	if err != nil {
		// the renderer already logged it; the slot falls back to the placeholder
		return s
	}
	s.Image = img
	return s
}

// Resize recomputes the render scale for a new container width, optionally
// clears the cache so pages re-render sharply, rebuilds the thumbnail strip
// and repaints.
func (c *Controller) Resize(ctx context.Context, containerWidth int) (View, error) {
	scale := c.opts.Scaler.For(containerWidth)
	c.mu.Lock()
	c.scale = scale
	hasDoc := c.doc != nil
	c.mu.Unlock()
	if c.opts.ClearOnResize {
		c.r.Cache().Clear()
	}
	if !hasDoc {
		return View{}, ErrNoDocument
	}
	c.BuildThumbnails(ctx)
	return c.Refresh(ctx)
}

// BuildThumbnails renders the thumbnail strip in parallel. Pages that fail
// to render get a blank thumbnail.
func (c *Controller) BuildThumbnails(ctx context.Context) []Thumb {
	c.mu.Lock()
	doc, pages := c.doc, c.pages
	c.thumbGen++
	gen := c.thumbGen
	c.mu.Unlock()
	if doc == nil {
		return nil
	}

	positions := thumbPositions(pages.Len(), c.opts.MaxThumbs)
	thumbs := make([]Thumb, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ThumbConcurrency)
	for i, p := range positions {
		src, _ := pages.Source(p)
		thumbs[i] = Thumb{Logical: p, Source: src}
		g.Go(func() error {
			img, err := c.r.Thumbnail(gctx, doc, src)
			if err == nil {
				thumbs[i].Image = img
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.thumbGen {
		c.thumbs = thumbs
	}
	return thumbs
}

// Thumbnails returns the strip with the entries of the current view marked active.
func (c *Controller) Thumbnails() []Thumb {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Thumb, len(c.thumbs))
	for i, t := range c.thumbs {
		t.Active = t.Logical == c.current || (c.opts.Mode == Spread && t.Logical == c.current+1)
		out[i] = t
	}
	return out
}
