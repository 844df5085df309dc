// Package loader replaces the viewer's document: open, remap pages, reset the
// view and paint the first page.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/filetype"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/pagemap"
	"github.com/local/flipbook/internal/pdfdoc"
	"github.com/local/flipbook/internal/source"
	"github.com/local/flipbook/internal/viewer"
)

// ErrNotPDF is returned for content that does not sniff as a PDF.
var ErrNotPDF = errors.New("not a PDF document")

// LoadError reports a failed load. The viewer keeps its previous document.
type LoadError struct {
	Ref string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Ref, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *LoadError) Message() string {
	switch {
	case errors.Is(e.Err, ErrNotPDF):
		return fmt.Sprintf("Could not load %s: the file is not a PDF.", e.Ref)
	case errors.Is(e.Err, source.ErrNotFound):
		return fmt.Sprintf("Could not load %s: the document was not found.", e.Ref)
	case errors.Is(e.Err, source.ErrForbidden):
		return fmt.Sprintf("Could not load %s: that location is not allowed.", e.Ref)
	case errors.Is(e.Err, source.ErrTooLarge):
		return fmt.Sprintf("Could not load %s: the document is too large.", e.Ref)
	}
	return fmt.Sprintf("Could not load %s. The file may be damaged.", e.Ref)
}

// Fetcher reads a document reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*source.Document, error)
}

// Result describes a successful load.
type Result struct {
	Name      string
	Digest    string
	Pages     int
	Displayed int
	Fallback  bool
	View      viewer.View
}

type Options struct {
	SkipPage   int
	Thumbnails bool
}

// Loader serializes loads into one view controller.
type Loader struct {
	opener   pdfdoc.Opener
	fetcher  Fetcher
	ctrl     *viewer.Controller
	detector *filetype.Detector
	opts     Options

	mu sync.Mutex
}

func New(opener pdfdoc.Opener, fetcher Fetcher, ctrl *viewer.Controller, opts Options) *Loader {
	return &Loader{
		opener:   opener,
		fetcher:  fetcher,
		ctrl:     ctrl,
		detector: filetype.New(),
		opts:     opts,
	}
}

// LoadFromURL fetches ref and loads it.
func (l *Loader) LoadFromURL(ctx context.Context, ref string) (*Result, error) {
	kind := "unknown"
	if r, err := source.Parse(ref, ""); err == nil {
		kind = string(r.Kind)
	}
	if l.fetcher == nil {
		err := &LoadError{Ref: ref, Err: errors.New("remote documents are not enabled")}
		metrics.IncLoad(kind, err)
		return nil, err
	}
	doc, err := l.fetcher.Fetch(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Str("ref", ref).Msg("document fetch failed")
		metrics.IncLoad(kind, err)
		return nil, &LoadError{Ref: ref, Err: err}
	}
	return l.load(ctx, kind, doc.Ref.Name(), doc.Bytes)
}

// LoadFromBytes loads an uploaded document.
func (l *Loader) LoadFromBytes(ctx context.Context, name string, b []byte) (*Result, error) {
	return l.load(ctx, "upload", name, b)
}

func (l *Loader) load(ctx context.Context, kind, name string, b []byte) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.replace(ctx, name, b)
	metrics.IncLoad(kind, err)
	if err != nil {
		log.Warn().Err(err).Str("name", name).Str("source", kind).Msg("document load failed")
		return nil, err
	}
	log.Info().
		Str("name", name).
		Str("doc", res.Digest).
		Int("pages", res.Pages).
		Int("displayed", res.Displayed).
		Bool("fallback", res.Fallback).
		Msg("document loaded")
	return res, nil
}

func (l *Loader) replace(ctx context.Context, name string, b []byte) (*Result, error) {
	l.ctrl.Renderer().Cache().Clear()

	if info := l.detector.DetectBytes(name, b); !info.PDF {
		return nil, &LoadError{Ref: name, Err: fmt.Errorf("%w: %s", ErrNotPDF, info.Description)}
	}
	doc, err := l.opener.OpenBytes(ctx, b)
	if err != nil {
		return nil, &LoadError{Ref: name, Err: err}
	}

	pages := pagemap.Build(doc.NumPage(), l.opts.SkipPage)
	l.ctrl.Reset(doc, pages)
	if l.opts.Thumbnails {
		l.ctrl.BuildThumbnails(ctx)
	}
	v, err := l.ctrl.ShowInstant(ctx, 0)
	if err != nil && !errors.Is(err, viewer.ErrSuperseded) {
		return nil, &LoadError{Ref: name, Err: err}
	}
	return &Result{
		Name:      name,
		Digest:    doc.ID(),
		Pages:     doc.NumPage(),
		Displayed: pages.Len(),
		Fallback:  pages.Fallback(),
		View:      v,
	}, nil
}
