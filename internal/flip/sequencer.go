// Package flip sequences animated page turns: render both faces of the
// turning leaf, let the overlay animate it, then settle on the target view.
package flip

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/viewer"
)

// Navigator is the part of the view controller the sequencer drives.
type Navigator interface {
	Mode() viewer.Mode
	Step() int
	Len() int
	Current() int
	Clamp(idx int) int
	Page(ctx context.Context, logical int) viewer.Slot
	ShowInstant(ctx context.Context, idx int) (viewer.View, error)
	JumpTo(ctx context.Context, idx int) (viewer.View, error)
}

// Flight is one accepted flip request.
type Flight struct {
	Target    int
	Animation *Animation

	done chan struct{}
	view viewer.View
	err  error
}

// Done is closed once the flip has settled on its target.
func (f *Flight) Done() <-chan struct{} { return f.done }

// Wait blocks until the flight settles or ctx ends.
func (f *Flight) Wait(ctx context.Context) (viewer.View, error) {
	select {
	case <-f.done:
		return f.view, f.err
	case <-ctx.Done():
		return viewer.View{}, ctx.Err()
	}
}

func settled(target int, v viewer.View, err error) *Flight {
	f := &Flight{Target: target, done: make(chan struct{}), view: v, err: err}
	close(f.done)
	return f
}

// Sequencer runs at most one page turn at a time.
type Sequencer struct {
	nav     Navigator
	overlay Overlay
	timing  Timing

	mu    sync.Mutex
	state State
}

func New(nav Navigator, overlay Overlay, timing Timing) *Sequencer {
	if timing.Duration <= 0 {
		timing = DefaultTiming()
	}
	return &Sequencer{nav: nav, overlay: overlay, timing: timing}
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Advance flips forward by one step (one page, or one spread).
func (s *Sequencer) Advance(ctx context.Context) (*Flight, error) {
	return s.Begin(ctx, s.nav.Current()+s.nav.Step())
}

// Retreat flips backward by one step.
func (s *Sequencer) Retreat(ctx context.Context) (*Flight, error) {
	return s.Begin(ctx, s.nav.Current()-s.nav.Step())
}

// Jump navigates straight to idx without animation. Like every navigation
// request it is dropped with ErrBusy while a flip is running.
func (s *Sequencer) Jump(ctx context.Context, idx int) (viewer.View, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		metrics.IncFlip("dropped")
		return viewer.View{}, ErrBusy
	}
	s.mu.Unlock()
	return s.nav.JumpTo(ctx, idx)
}

// Begin starts a flip towards target. It returns ErrBusy if a flip is
// already running and a nil Flight if target clamps to the current
// position. The returned Flight settles after the overlay's completion
// resolves; there is no timeout.
func (s *Sequencer) Begin(ctx context.Context, target int) (*Flight, error) {
	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		metrics.IncFlip("dropped")
		log.Debug().Int("target", target).Str("state", st.String()).Msg("flip dropped")
		return nil, ErrBusy
	}
	if s.nav.Len() == 0 {
		s.mu.Unlock()
		return nil, viewer.ErrNoDocument
	}
	target = s.nav.Clamp(target)
	current := s.nav.Current()
	if target == current {
		s.mu.Unlock()
		metrics.IncFlip("noop")
		return nil, nil
	}
	if !s.overlay.Presented() {
		s.mu.Unlock()
		metrics.IncFlip("instant")
		v, err := s.nav.ShowInstant(ctx, target)
		return settled(target, v, err), nil
	}
	s.state = Preparing
	s.mu.Unlock()

	anim := s.prepare(ctx, current, target)

	s.setState(Animating)
	metrics.IncFlip("started")
	comp := s.overlay.Start(anim)
	f := &Flight{Target: target, Animation: &anim, done: make(chan struct{})}
	go s.settle(context.WithoutCancel(ctx), f, comp)
	return f, nil
}

func (s *Sequencer) prepare(ctx context.Context, current, target int) Animation {
	forward := target > current
	var front, back int
	switch {
	case s.nav.Mode() == viewer.Spread && forward:
		front, back = current+1, target+1
	case forward:
		front, back = current, target
	default:
		front, back = target, current
	}
	a := Animation{
		Forward:  forward,
		From:     current,
		To:       target,
		Front:    s.nav.Page(ctx, front),
		Back:     s.nav.Page(ctx, back),
		Duration: s.timing.For(s.overlay.ViewportWidth()),
	}
	if forward {
		a.StartAngle, a.EndAngle = 0, -180
		a.Origin, a.Left = "left center", "50%"
	} else {
		a.StartAngle, a.EndAngle = 180, 0
		a.Origin, a.Left = "right center", "0%"
	}
	return a
}

func (s *Sequencer) settle(ctx context.Context, f *Flight, comp *Completion) {
	<-comp.Done()
	s.setState(Settling)
	s.overlay.Clear()
	f.view, f.err = s.nav.ShowInstant(ctx, f.Target)
	if f.err != nil {
		metrics.IncFlip("failed")
		log.Warn().Err(f.err).Int("target", f.Target).Msg("settling flip")
	}
	s.setState(Idle)
	close(f.done)
}
