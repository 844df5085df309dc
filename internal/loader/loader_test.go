package loader

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/flipbook/internal/pagecache"
	"github.com/local/flipbook/internal/pdfdoc/pdfdoctest"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/source"
	"github.com/local/flipbook/internal/viewer"
)

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, ref string) (*source.Document, error) {
	b, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", ref, source.ErrNotFound)
	}
	r, err := source.Parse(ref, "")
	if err != nil {
		return nil, err
	}
	return &source.Document{Ref: r, Bytes: b}, nil
}

type fixture struct {
	opener *pdfdoctest.Opener
	ctrl   *viewer.Controller
	loader *Loader
}

func newFixture(mode viewer.Mode, fetcher Fetcher) *fixture {
	f := &fixture{opener: &pdfdoctest.Opener{}}
	r := render.New(pagecache.New[*render.Image](), render.Options{})
	f.ctrl = viewer.New(r, nil, viewer.Options{Mode: mode, Scaler: render.Scaler{Base: 1}, MaxThumbs: 40})
	f.loader = New(f.opener, fetcher, f.ctrl, Options{SkipPage: 2, Thumbnails: true})
	return f
}

func TestLoadAppliesSkipPage(t *testing.T) {
	f := newFixture(viewer.Spread, nil)
	res, err := f.loader.LoadFromBytes(context.Background(), "book.pdf", pdfdoctest.PDF(5))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, 4, res.Displayed)
	assert.False(t, res.Fallback)
	assert.Equal(t, 0, res.View.Current)
	assert.Equal(t, 1, res.View.Left.Source)
	assert.Equal(t, 3, res.View.Right.Source)
	assert.Len(t, f.ctrl.Thumbnails(), 4)
	assert.Len(t, res.Digest, 64)
}

func TestLoadSinglePageFallsBack(t *testing.T) {
	f := newFixture(viewer.Single, nil)
	res, err := f.loader.LoadFromBytes(context.Background(), "one.pdf", pdfdoctest.PDF(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Displayed)
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, res.View.Left.Source)
}

func TestReloadResetsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(viewer.Single, nil)
	_, err := f.loader.LoadFromBytes(ctx, "a.pdf", pdfdoctest.PDF(6))
	require.NoError(t, err)
	_, err = f.ctrl.ShowInstant(ctx, 3)
	require.NoError(t, err)
	epoch := f.ctrl.Renderer().Cache().Epoch()

	res, err := f.loader.LoadFromBytes(ctx, "b.pdf", pdfdoctest.PDF(8))
	require.NoError(t, err)
	assert.Equal(t, 0, f.ctrl.Current())
	assert.Equal(t, 7, res.Displayed)
	assert.Greater(t, f.ctrl.Renderer().Cache().Epoch(), epoch)

	opened := f.opener.Opened()
	require.Len(t, opened, 2)
	assert.True(t, opened[0].Closed())
	assert.False(t, opened[1].Closed())
}

func TestNavigationDuringReloadDoesNotLeakOldPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(viewer.Single, nil)
	f.loader = New(f.opener, nil, f.ctrl, Options{SkipPage: 2})
	_, err := f.loader.LoadFromBytes(ctx, "a.pdf", pdfdoctest.PDF(5))
	require.NoError(t, err)
	docA := f.opener.Opened()[0]
	require.Equal(t, 1, docA.Calls(1))

	opening := make(chan struct{})
	release := make(chan struct{})
	f.opener.Configure = func(*pdfdoctest.Doc) {
		close(opening)
		<-release
	}
	done := make(chan error, 1)
	go func() {
		_, err := f.loader.LoadFromBytes(ctx, "b.pdf", pdfdoctest.PDF(6))
		done <- err
	}()

	<-opening
	// still showing a.pdf while b.pdf opens
	v, err := f.ctrl.ShowInstant(ctx, 0)
	require.NoError(t, err)
	require.False(t, v.Left.Blank())
	assert.Equal(t, 2, docA.Calls(1))
	close(release)
	require.NoError(t, <-done)

	docB := f.opener.Opened()[1]
	assert.Equal(t, 1, docB.Calls(1), "b.pdf renders its own first page")
	img, ok := f.ctrl.Renderer().Cached(docB.ID(), 1, 1)
	require.True(t, ok)
	v, err = f.ctrl.ShowInstant(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, img, v.Left.Image)
	assert.Equal(t, 1, f.ctrl.Renderer().Cache().Len())
}

func TestFailedLoadKeepsPreviousDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(viewer.Single, nil)
	_, err := f.loader.LoadFromBytes(ctx, "good.pdf", pdfdoctest.PDF(4))
	require.NoError(t, err)
	_, err = f.ctrl.ShowInstant(ctx, 2)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"notes.txt", []byte("shopping list"), ErrNotPDF},
		{"broken.pdf", pdfdoctest.Corrupt(), pdfdoctest.ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.loader.LoadFromBytes(ctx, tt.name, tt.data)
			assert.Nil(t, res)
			var lerr *LoadError
			require.ErrorAs(t, err, &lerr)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, lerr.Message(), tt.name)

			assert.Equal(t, 2, f.ctrl.Current())
			assert.Equal(t, 3, f.ctrl.Len())
			assert.False(t, f.opener.Opened()[0].Closed())
			v, err := f.ctrl.ShowInstant(ctx, 1)
			require.NoError(t, err)
			assert.False(t, v.Left.Blank())
		})
	}
}

func TestLoadFromURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(viewer.Spread, mapFetcher{
		"https://example.com/catalog.pdf": pdfdoctest.PDF(10),
	})

	res, err := f.loader.LoadFromURL(ctx, "https://example.com/catalog.pdf")
	require.NoError(t, err)
	assert.Equal(t, "catalog.pdf", res.Name)
	assert.Equal(t, 9, res.Displayed)

	_, err = f.loader.LoadFromURL(ctx, "https://example.com/missing.pdf")
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.Contains(t, lerr.Message(), "not found")
	assert.Equal(t, 9, f.ctrl.Len())
}

func TestLoadFromURLWithoutFetcher(t *testing.T) {
	f := newFixture(viewer.Single, nil)
	_, err := f.loader.LoadFromURL(context.Background(), "https://example.com/a.pdf")
	var lerr *LoadError
	assert.ErrorAs(t, err, &lerr)
}

func TestLoadFromURLRefusesInternalTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(viewer.Single, source.NewFetcher(source.Options{}))
	_, err := f.loader.LoadFromBytes(ctx, "a.pdf", pdfdoctest.PDF(4))
	require.NoError(t, err)

	for _, ref := range []string{
		"http://169.254.169.254/latest/meta-data/iam/",
		"s3://any-bucket/secret.pdf",
	} {
		_, err := f.loader.LoadFromURL(ctx, ref)
		var lerr *LoadError
		require.ErrorAs(t, err, &lerr, ref)
		assert.ErrorIs(t, err, source.ErrForbidden, ref)
		assert.Contains(t, lerr.Message(), "not allowed")
	}
	assert.Equal(t, 3, f.ctrl.Len())
}
