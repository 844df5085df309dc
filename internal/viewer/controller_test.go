package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/flipbook/internal/pagecache"
	"github.com/local/flipbook/internal/pagemap"
	"github.com/local/flipbook/internal/pdfdoc/pdfdoctest"
	"github.com/local/flipbook/internal/render"
)

type recorder struct {
	mu    sync.Mutex
	views []View
}

func (r *recorder) Show(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) shown() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

func newController(t *testing.T, mode Mode, doc *pdfdoctest.Doc, skip int) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	r := render.New(pagecache.New[*render.Image](), render.Options{MaxInflight: 4})
	c := New(r, rec, Options{
		Mode:      mode,
		Scaler:    render.Scaler{Base: 1},
		MaxThumbs: 40,
	})
	c.Reset(doc, pagemap.Build(doc.NumPage(), skip))
	return c, rec
}

func TestShowInstantBeforeLoad(t *testing.T) {
	c := New(render.New(pagecache.New[*render.Image](), render.Options{}), nil, Options{})
	_, err := c.ShowInstant(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestShowInstantClamps(t *testing.T) {
	ctx := context.Background()
	c, rec := newController(t, Single, pdfdoctest.NewDoc(4), 0)

	v, err := c.ShowInstant(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Current)
	assert.Equal(t, 3, c.Current())

	v, err = c.ShowInstant(ctx, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Current)
	assert.Equal(t, "Page 1", v.Label)
	assert.Equal(t, "of 4", v.Total)
	assert.Len(t, rec.shown(), 2)
}

func TestSpreadShowsPairAndBlankEnd(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, Spread, pdfdoctest.NewDoc(5), 0)

	v, err := c.ShowInstant(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Left.Source)
	assert.Equal(t, 4, v.Right.Source)
	assert.False(t, v.Left.Blank())
	assert.False(t, v.Right.Blank())
	assert.Equal(t, "Pages 3 - 4", v.Label)

	v, err = c.ShowInstant(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Left.Source)
	assert.True(t, v.Right.Empty())
	assert.True(t, v.Right.Blank())
	assert.Equal(t, "Page 5", v.Label)
}

func TestSkipPageMapping(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, Single, pdfdoctest.NewDoc(5), 2)
	require.Equal(t, 4, c.Len())

	v, err := c.ShowInstant(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Left.Source)
	assert.Equal(t, "of 4", v.Total)
}

func TestFailedPageShowsPlaceholder(t *testing.T) {
	ctx := context.Background()
	doc := pdfdoctest.NewDoc(4)
	doc.Fail(3, errors.New("bad xref"))
	c, _ := newController(t, Spread, doc, 0)

	v, err := c.ShowInstant(ctx, 2)
	require.NoError(t, err)
	assert.True(t, v.Left.Blank())
	assert.False(t, v.Left.Empty())
	assert.False(t, v.Right.Blank())

	v, err = c.ShowInstant(ctx, 0)
	require.NoError(t, err)
	assert.False(t, v.Left.Blank())
	assert.False(t, v.Right.Blank())
}

func TestLastRequestWins(t *testing.T) {
	ctx := context.Background()
	doc := pdfdoctest.NewDoc(6)
	release := doc.Block(3)
	c, rec := newController(t, Single, doc, 0)

	errc := make(chan error, 1)
	go func() {
		_, err := c.ShowInstant(ctx, 2)
		errc <- err
	}()
	require.Eventually(t, func() bool { return doc.Calls(3) > 0 }, time.Second, time.Millisecond)

	v, err := c.ShowInstant(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Current)

	release()
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	shown := rec.shown()
	require.Len(t, shown, 1)
	assert.Equal(t, 4, shown[0].Current)
	assert.Equal(t, 4, c.Current())
}

func TestJumpToAlignsSpread(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, Spread, pdfdoctest.NewDoc(8), 0)

	v, err := c.JumpTo(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Current)

	single, _ := newController(t, Single, pdfdoctest.NewDoc(8), 0)
	v, err = single.JumpTo(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Current)
}

func TestPageOutOfRangeIsEmpty(t *testing.T) {
	c, _ := newController(t, Single, pdfdoctest.NewDoc(3), 0)
	assert.True(t, c.Page(context.Background(), 3).Empty())
	assert.True(t, c.Page(context.Background(), -1).Empty())
	assert.False(t, c.Page(context.Background(), 2).Blank())
}

func TestThumbnailsAreCappedAndMarked(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, Spread, pdfdoctest.NewDoc(100), 0)

	thumbs := c.BuildThumbnails(ctx)
	require.Len(t, thumbs, 34)
	assert.Equal(t, 0, thumbs[0].Logical)
	assert.Equal(t, 3, thumbs[1].Logical)
	for _, th := range thumbs {
		assert.NotNil(t, th.Image)
	}

	_, err := c.ShowInstant(ctx, 3)
	require.NoError(t, err)
	var active []int
	for _, th := range c.Thumbnails() {
		if th.Active {
			active = append(active, th.Logical)
		}
	}
	assert.Equal(t, []int{3}, active)
}

func TestThumbPositions(t *testing.T) {
	assert.Nil(t, thumbPositions(0, 40))
	assert.Len(t, thumbPositions(10, 40), 10)
	assert.Len(t, thumbPositions(40, 40), 40)
	assert.Len(t, thumbPositions(41, 40), 21)
	for n := 1; n < 300; n++ {
		assert.LessOrEqual(t, len(thumbPositions(n, 40)), 40)
	}
}

func TestResizeClearsCacheAndRepaints(t *testing.T) {
	ctx := context.Background()
	doc := pdfdoctest.NewDoc(4)
	rec := &recorder{}
	r := render.New(pagecache.New[*render.Image](), render.Options{})
	c := New(r, rec, Options{
		Mode:          Single,
		Scaler:        render.Scaler{Base: 1, ReferenceWidth: 1000},
		ClearOnResize: true,
	})
	c.Reset(doc, pagemap.Build(4, 0))
	_, err := c.ShowInstant(ctx, 1)
	require.NoError(t, err)
	epoch := r.Cache().Epoch()

	v, err := c.Resize(ctx, 500)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, c.Scale(), 1e-9)
	assert.Greater(t, r.Cache().Epoch(), epoch)
	assert.Equal(t, 1, v.Current)
	assert.Equal(t, pagecache.ClassOf(0.5), v.Left.Image.Scale)
}

func TestResetClosesPrevious(t *testing.T) {
	first := pdfdoctest.NewDoc(3)
	c, _ := newController(t, Single, first, 0)
	_, err := c.ShowInstant(context.Background(), 2)
	require.NoError(t, err)

	c.Reset(pdfdoctest.NewDoc(6), pagemap.Build(6, 0))
	assert.True(t, first.Closed())
	assert.Equal(t, 0, c.Current())
	assert.Equal(t, 6, c.Len())
}
