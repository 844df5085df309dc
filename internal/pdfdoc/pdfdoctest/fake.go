// Package pdfdoctest provides an in-memory pdfdoc backend for tests.
package pdfdoctest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"regexp"
	"strconv"
	"sync"

	"github.com/local/flipbook/internal/pdfdoc"
)

// ErrCorrupt is returned by Opener for bytes that carry no page count.
var ErrCorrupt = errors.New("pdfdoctest: corrupt document")

var pagesRe = regexp.MustCompile(`pages=(\d+)`)

// PDF returns bytes that sniff as a PDF and open as a document of n pages.
func PDF(n int) []byte {
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% pages=%d\n%%%%EOF\n", n))
}

// Corrupt returns bytes that sniff as a PDF but fail to open.
func Corrupt() []byte {
	return []byte("%PDF-1.4\n% truncated\n")
}

// Opener opens bytes produced by PDF. Configure hooks a freshly opened Doc
// before it is returned.
type Opener struct {
	Configure func(d *Doc)

	mu     sync.Mutex
	opened []*Doc
}

func (o *Opener) OpenBytes(ctx context.Context, b []byte) (pdfdoc.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := pagesRe.FindSubmatch(b)
	if m == nil {
		return nil, ErrCorrupt
	}
	n, _ := strconv.Atoi(string(m[1]))
	d := NewDoc(n)
	d.id = pdfdoc.Digest(b)
	if o.Configure != nil {
		o.Configure(d)
	}
	o.mu.Lock()
	o.opened = append(o.opened, d)
	o.mu.Unlock()
	return d, nil
}

// Opened returns every document opened so far.
func (o *Opener) Opened() []*Doc {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Doc(nil), o.opened...)
}

// Doc is a fake document whose pages render as small solid images.
// Individual pages can be made to fail or to block until released.
type Doc struct {
	id    string
	pages int

	mu     sync.Mutex
	fail   map[int]error
	gates  map[int]chan struct{}
	calls  map[int]int
	closed bool
}

// NewDoc returns a document of n pages.
func NewDoc(n int) *Doc {
	return &Doc{
		id:    fmt.Sprintf("fake-%d", n),
		pages: n,
		fail:  map[int]error{},
		gates: map[int]chan struct{}{},
		calls: map[int]int{},
	}
}

func (d *Doc) ID() string   { return d.id }
func (d *Doc) NumPage() int { return d.pages }

// Fail makes every render of page return err.
func (d *Doc) Fail(page int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[page] = err
}

// Block makes renders of page wait until the returned release func is called.
func (d *Doc) Block(page int) (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.gates[page] = ch
	d.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls reports how many times page was rasterized.
func (d *Doc) Calls(page int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[page]
}

// TotalCalls reports all rasterizations.
func (d *Doc) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

// Closed reports whether Close was called.
func (d *Doc) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Doc) RenderPage(ctx context.Context, page int, scale float64) (image.Image, error) {
	d.mu.Lock()
	d.calls[page]++
	gate := d.gates[page]
	err := d.fail[page]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if err := pdfdoc.CheckPage(page, d.pages); err != nil {
		return nil, err
	}
	w, h := int(40*scale), int(56*scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shade := uint8(page * 17 % 255)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 255 - shade, B: 128, A: 255})
		}
	}
	return img, nil
}

func (d *Doc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
