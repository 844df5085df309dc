// Package session wires one complete viewer per browser session and keeps
// sessions alive while they are in use.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/flipbook/internal/config"
	"github.com/local/flipbook/internal/flip"
	"github.com/local/flipbook/internal/input"
	"github.com/local/flipbook/internal/loader"
	"github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/pagecache"
	"github.com/local/flipbook/internal/pagemap"
	"github.com/local/flipbook/internal/pdfdoc"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/source"
	"github.com/local/flipbook/internal/viewer"
)

// Source fetches and probes document references.
type Source interface {
	loader.Fetcher
	Probe(ctx context.Context, ref string) (*source.Info, error)
}

// Deps are shared by every session.
type Deps struct {
	Config config.Config
	Opener pdfdoc.Opener
	Source Source
	// Store is the optional shared render store.
	Store render.Store
}

// Outcome reports what an input event did.
type Outcome struct {
	Command input.Command `json:"command"`
	Dropped bool          `json:"dropped"`
}

// Session is one viewer: its cache, renderer, controller, flip sequencer,
// loader and input state.
type Session struct {
	ID string

	log      zerolog.Logger
	renderer *render.Renderer
	ctrl     *viewer.Controller
	seq      *flip.Sequencer
	loader   *loader.Loader
	input    *input.Adapter
	resize   *input.Debouncer
	display  *remoteDisplay
	overlay  *remoteOverlay

	mu       sync.Mutex
	flight   *flip.Flight
	document string
	loading  bool
	lastErr  string
	lastSeen time.Time
}

func newSession(id string, d Deps, now time.Time) *Session {
	cfg := d.Config
	r := render.New(pagecache.New[*render.Image](), render.Options{
		Quality:     cfg.Viewer.JPEGQuality,
		MaxInflight: cfg.Viewer.RenderMaxInflight,
		ThumbScale:  cfg.Viewer.ThumbScale,
		ThumbWidth:  cfg.Viewer.ThumbWidth,
		Store:       d.Store,
	})
	display := &remoteDisplay{}
	overlay := &remoteOverlay{hideBelow: cfg.Flip.HideOverlayBelow}
	ctrl := viewer.New(r, display, viewer.Options{
		Mode: viewer.ParseMode(cfg.Viewer.Mode),
		Scaler: render.Scaler{
			Base:           cfg.Viewer.BaseScale,
			ReferenceWidth: cfg.Viewer.ReferenceWidth,
			Min:            cfg.Viewer.MinScale,
			Max:            cfg.Viewer.MaxScale,
		},
		MaxThumbs:        cfg.Viewer.MaxThumbs,
		ThumbConcurrency: cfg.Viewer.ThumbConcurrency,
		ClearOnResize:    cfg.Viewer.ClearOnResize,
	})
	var fetcher loader.Fetcher
	if d.Source != nil {
		fetcher = d.Source
	}
	return &Session{
		ID:       id,
		log:      logger.ForSession(id),
		renderer: r,
		ctrl:     ctrl,
		seq: flip.New(ctrl, overlay, flip.Timing{
			Duration:    cfg.Flip.Duration,
			Narrow:      cfg.Flip.NarrowDuration,
			NarrowBelow: cfg.Flip.NarrowBelow,
		}),
		loader: loader.New(d.Opener, fetcher, ctrl, loader.Options{
			SkipPage:   cfg.Viewer.SkipPage,
			Thumbnails: cfg.Viewer.MaxThumbs > 0,
		}),
		input: input.NewAdapter(input.Options{
			WheelThreshold: cfg.Input.WheelThreshold,
			WheelInterval:  cfg.Input.WheelDebounce,
			SwipeThreshold: cfg.Input.SwipeThreshold,
		}),
		resize:   input.NewDebouncer(cfg.Input.ResizeDebounce),
		display:  display,
		overlay:  overlay,
		lastSeen: now,
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// LoadBytes loads an uploaded document. A failure is also recorded in the
// session state for display.
func (s *Session) LoadBytes(ctx context.Context, name string, b []byte) (*loader.Result, error) {
	s.beginLoad()
	res, err := s.loader.LoadFromBytes(ctx, name, b)
	s.endLoad(res, err)
	return res, err
}

// LoadURL fetches and loads a document reference.
func (s *Session) LoadURL(ctx context.Context, ref string) (*loader.Result, error) {
	s.beginLoad()
	res, err := s.loader.LoadFromURL(ctx, ref)
	s.endLoad(res, err)
	return res, err
}

func (s *Session) beginLoad() {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
}

func (s *Session) endLoad(res *loader.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		var lerr *loader.LoadError
		if errors.As(err, &lerr) {
			s.lastErr = lerr.Message()
		} else {
			s.lastErr = err.Error()
		}
		return
	}
	s.lastErr = ""
	s.document = res.Name
}

// Dispatch interprets a raw input event and navigates accordingly. Requests
// that arrive while a flip is running are dropped.
func (s *Session) Dispatch(ctx context.Context, ev input.Event) (Outcome, error) {
	cmd := s.input.Handle(ev)
	out := Outcome{Command: cmd}

	var fl *flip.Flight
	var err error
	switch cmd.Action {
	case input.Advance:
		fl, err = s.seq.Advance(ctx)
	case input.Retreat:
		fl, err = s.seq.Retreat(ctx)
	case input.Jump:
		_, err = s.seq.Jump(ctx, cmd.Index)
	default:
		return out, nil
	}

	switch {
	case errors.Is(err, flip.ErrBusy), errors.Is(err, viewer.ErrNoDocument):
		out.Dropped = true
		return out, nil
	case errors.Is(err, viewer.ErrSuperseded):
		return out, nil
	case err != nil:
		return out, err
	}
	if fl != nil && fl.Animation != nil {
		s.mu.Lock()
		s.flight = fl
		s.mu.Unlock()
	}
	return out, nil
}

// CompleteFlip delivers the browser's transition-end signal and waits for
// the flip to settle. It reports whether a running animation was resolved.
func (s *Session) CompleteFlip(ctx context.Context) (bool, error) {
	resolved := s.overlay.complete()
	s.mu.Lock()
	fl := s.flight
	s.mu.Unlock()
	if fl == nil {
		return resolved, nil
	}
	select {
	case <-fl.Done():
	case <-ctx.Done():
		return resolved, ctx.Err()
	}
	s.mu.Lock()
	if s.flight == fl {
		s.flight = nil
	}
	s.mu.Unlock()
	return resolved, nil
}

// Viewport records the browser's viewport width at once and schedules a
// debounced re-render for the new container width.
func (s *Session) Viewport(viewportWidth, containerWidth int) {
	s.overlay.setViewport(viewportWidth)
	s.resize.Trigger(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, err := s.ctrl.Resize(ctx, containerWidth)
		if err != nil && !errors.Is(err, viewer.ErrNoDocument) && !errors.Is(err, viewer.ErrSuperseded) {
			s.log.Warn().Err(err).Int("container_width", containerWidth).Msg("resize failed")
		}
	})
}

// ErrNoImage is returned for image requests that do not name a displayed
// page at the current scale or the thumbnail size.
var ErrNoImage = errors.New("no such page image")

// Image returns a rendered page, rendering it again if the cache was
// cleared since the state that referenced it. Only pages of the page map are
// served, at the controller's current scale or as thumbnails.
func (s *Session) Image(ctx context.Context, page int, class pagecache.ScaleClass) (*render.Image, error) {
	doc, pages := s.ctrl.Document()
	if doc == nil {
		return nil, viewer.ErrNoDocument
	}
	if _, ok := pages.Logical(page); !ok {
		return nil, fmt.Errorf("page %d: %w", page, ErrNoImage)
	}
	if class == pagecache.ThumbClass {
		return s.renderer.Thumbnail(ctx, doc, page)
	}
	scale := s.ctrl.Scale()
	if class != pagecache.ClassOf(scale) {
		return nil, fmt.Errorf("scale class %d: %w", class, ErrNoImage)
	}
	return s.renderer.Render(ctx, doc, page, scale)
}

// Snapshot returns the state the browser paints from.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	st := State{
		ID:       s.ID,
		Document: s.document,
		Loading:  s.loading,
		Error:    s.lastErr,
	}
	s.mu.Unlock()

	st.Mode = string(s.ctrl.Mode())
	st.Count = s.ctrl.Len()
	v, shown, version := s.display.latest()
	st.Version = version
	if shown {
		st.Current = v.Current
		st.Label, st.Total = v.Label, v.Total
		st.Left = s.page(v.Left)
		st.Right = s.page(v.Right)
	}
	st.Thumbs = []Thumb{}
	for _, t := range s.ctrl.Thumbnails() {
		th := Thumb{Logical: t.Logical, Source: t.Source, Active: t.Active}
		if t.Image != nil {
			th.Image = ImagePath(s.ID, t.Image)
		}
		st.Thumbs = append(st.Thumbs, th)
	}
	anim, seq := s.overlay.animation()
	st.Flip = FlipState{
		State:     s.seq.State().String(),
		Overlay:   s.overlay.Presented(),
		Seq:       seq,
		Animation: s.animation(anim),
	}
	return st
}

// Close stops background work and releases the document.
func (s *Session) Close() {
	s.resize.Stop()
	s.overlay.complete()
	s.ctrl.Reset(nil, pagemap.Build(0, 0))
}
