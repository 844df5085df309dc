package session

import (
	"sync"

	"github.com/local/flipbook/internal/flip"
	"github.com/local/flipbook/internal/viewer"
)

// remoteDisplay keeps the latest view for the browser to fetch.
type remoteDisplay struct {
	mu      sync.Mutex
	view    viewer.View
	shown   bool
	version uint64
}

func (d *remoteDisplay) Show(v viewer.View) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = v
	d.shown = true
	d.version++
}

func (d *remoteDisplay) latest() (viewer.View, bool, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view, d.shown, d.version
}

// remoteOverlay publishes page-turn animations to the browser. The browser
// plays the pending animation and reports its transition end, which resolves
// the completion.
type remoteOverlay struct {
	hideBelow int

	mu       sync.Mutex
	viewport int
	pending  *flip.Animation
	comp     *flip.Completion
	seq      uint64
}

// Presented is false only when the viewport is known to be narrower than the
// configured cutoff.
func (o *remoteOverlay) Presented() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hideBelow <= 0 || o.viewport <= 0 || o.viewport >= o.hideBelow
}

func (o *remoteOverlay) ViewportWidth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewport
}

func (o *remoteOverlay) setViewport(w int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.viewport = w
}

func (o *remoteOverlay) Start(a flip.Animation) *flip.Completion {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = &a
	o.comp = flip.NewCompletion()
	o.seq++
	return o.comp
}

func (o *remoteOverlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = nil
}

// complete resolves the running animation, if any.
func (o *remoteOverlay) complete() bool {
	o.mu.Lock()
	comp := o.comp
	o.mu.Unlock()
	if comp == nil {
		return false
	}
	return comp.Resolve()
}

func (o *remoteOverlay) animation() (*flip.Animation, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending, o.seq
}
