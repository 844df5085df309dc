package flip

import (
	"errors"
	"sync"
	"time"

	"github.com/local/flipbook/internal/viewer"
)

// ErrBusy is returned when a flip is requested while another is in progress.
// The request is dropped, not queued.
var ErrBusy = errors.New("flip in progress")

// State is the sequencer's position in a page turn.
type State int

const (
	Idle State = iota
	Preparing
	Animating
	Settling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Animating:
		return "animating"
	case Settling:
		return "settling"
	}
	return "unknown"
}

// Completion resolves once when the overlay's transition has ended.
type Completion struct {
	once sync.Once
	done chan struct{}
}

func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve marks the transition as ended. Only the first call has any effect
// and reports true.
func (c *Completion) Resolve() bool {
	resolved := false
	c.once.Do(func() {
		close(c.done)
		resolved = true
	})
	return resolved
}

func (c *Completion) Done() <-chan struct{} { return c.done }

func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Animation describes one page turn for the overlay to play.
type Animation struct {
	Forward    bool
	From       int
	To         int
	Front      viewer.Slot
	Back       viewer.Slot
	StartAngle float64
	EndAngle   float64
	Origin     string
	Left       string
	Duration   time.Duration
}

// Overlay plays page-turn animations on top of the static view.
type Overlay interface {
	// Presented reports whether the overlay is visible at the current
	// viewport size. When it is not, flips happen without animation.
	Presented() bool
	ViewportWidth() int
	Start(a Animation) *Completion
	Clear()
}

// Timing selects the animation duration for a viewport width.
type Timing struct {
	Duration    time.Duration
	Narrow      time.Duration
	NarrowBelow int
}

func DefaultTiming() Timing {
	return Timing{Duration: 700 * time.Millisecond, Narrow: 420 * time.Millisecond, NarrowBelow: 900}
}

func (t Timing) For(viewportWidth int) time.Duration {
	if viewportWidth > 0 && viewportWidth < t.NarrowBelow && t.Narrow > 0 {
		return t.Narrow
	}
	return t.Duration
}
