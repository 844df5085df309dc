// Package input turns raw browser events into navigation commands.
package input

import (
	"math"
	"sync"
	"time"
)

// Action is what an event asks the viewer to do.
type Action string

const (
	None    Action = ""
	Advance Action = "advance"
	Retreat Action = "retreat"
	Jump    Action = "jump"
)

// Command is the outcome of handling one event. Index is set for Jump.
type Command struct {
	Action Action `json:"action"`
	Index  int    `json:"index,omitempty"`
}

// Event is a raw input event as forwarded by the browser.
type Event struct {
	Type    string  `json:"type"`
	Key     string  `json:"key,omitempty"`
	DeltaY  float64 `json:"delta_y,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Touches int     `json:"touches,omitempty"`
	Target  string  `json:"target,omitempty"`
	Index   int     `json:"index,omitempty"`
}

// Options tunes gesture thresholds.
type Options struct {
	WheelThreshold float64
	WheelInterval  time.Duration
	SwipeThreshold float64
	MoveSlop       float64
	Now            func() time.Time
}

func (o *Options) defaults() {
	if o.WheelThreshold <= 0 {
		o.WheelThreshold = 20
	}
	if o.WheelInterval <= 0 {
		o.WheelInterval = 300 * time.Millisecond
	}
	if o.SwipeThreshold <= 0 {
		o.SwipeThreshold = 40
	}
	if o.MoveSlop <= 0 {
		o.MoveSlop = 10
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Adapter holds the gesture state of one viewer.
type Adapter struct {
	opts Options

	mu        sync.Mutex
	lastWheel time.Time
	touching  bool
	moved     bool
	startX    float64
	startY    float64
	dx        float64
}

func NewAdapter(opts Options) *Adapter {
	opts.defaults()
	return &Adapter{opts: opts}
}

// Handle interprets ev. Events that mean nothing yield a None command.
func (a *Adapter) Handle(ev Event) Command {
	switch ev.Type {
	case "keydown":
		return a.key(ev.Key)
	case "wheel":
		return a.wheel(ev.DeltaY)
	case "touchstart":
		a.touchStart(ev)
	case "touchmove":
		a.touchMove(ev)
	case "touchend", "touchcancel":
		return a.touchEnd(ev.Type == "touchend")
	case "click":
		return click(ev)
	}
	return Command{}
}

func (a *Adapter) key(k string) Command {
	switch k {
	case "ArrowRight":
		return Command{Action: Advance}
	case "ArrowLeft":
		return Command{Action: Retreat}
	}
	return Command{}
}

// wheel accepts at most one scroll per interval, counted from the last
// accepted one.
func (a *Adapter) wheel(dy float64) Command {
	if math.Abs(dy) < a.opts.WheelThreshold {
		return Command{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.opts.Now()
	if !a.lastWheel.IsZero() && now.Sub(a.lastWheel) < a.opts.WheelInterval {
		return Command{}
	}
	a.lastWheel = now
	if dy > 0 {
		return Command{Action: Advance}
	}
	return Command{Action: Retreat}
}

func (a *Adapter) touchStart(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ev.Touches != 1 {
		a.touching = false
		return
	}
	a.touching = true
	a.moved = false
	a.startX, a.startY = ev.X, ev.Y
	a.dx = 0
}

func (a *Adapter) touchMove(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.touching || ev.Touches > 1 {
		return
	}
	dx, dy := ev.X-a.startX, ev.Y-a.startY
	if math.Abs(dx) > a.opts.MoveSlop && math.Abs(dx) > math.Abs(dy) {
		a.moved = true
		a.dx = dx
	}
}

func (a *Adapter) touchEnd(completed bool) Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	moved, dx := a.moved, a.dx
	a.touching, a.moved, a.dx = false, false, 0
	if !completed || !moved {
		return Command{}
	}
	switch {
	case dx < -a.opts.SwipeThreshold:
		return Command{Action: Advance}
	case dx > a.opts.SwipeThreshold:
		return Command{Action: Retreat}
	}
	return Command{}
}

func click(ev Event) Command {
	switch ev.Target {
	case "next":
		return Command{Action: Advance}
	case "prev":
		return Command{Action: Retreat}
	case "thumb":
		return Command{Action: Jump, Index: ev.Index}
	}
	return Command{}
}
