package session

import (
	"fmt"

	"github.com/local/flipbook/internal/flip"
	"github.com/local/flipbook/internal/render"
	"github.com/local/flipbook/internal/viewer"
)

// State is the JSON snapshot the browser paints from.
type State struct {
	ID       string    `json:"id"`
	Document string    `json:"document,omitempty"`
	Loading  bool      `json:"loading"`
	Error    string    `json:"error,omitempty"`
	Mode     string    `json:"mode"`
	Current  int       `json:"current"`
	Count    int       `json:"count"`
	Label    string    `json:"label"`
	Total    string    `json:"total"`
	Left     *Page     `json:"left,omitempty"`
	Right    *Page     `json:"right,omitempty"`
	Thumbs   []Thumb   `json:"thumbs"`
	Flip     FlipState `json:"flip"`
	Version  uint64    `json:"version"`
}

// Page is one painted surface. A blank page is drawn as the placeholder.
type Page struct {
	Logical int    `json:"logical"`
	Source  int    `json:"source"`
	Image   string `json:"image,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Blank   bool   `json:"blank"`
}

type Thumb struct {
	Logical int    `json:"logical"`
	Source  int    `json:"source"`
	Image   string `json:"image,omitempty"`
	Active  bool   `json:"active"`
}

type FlipState struct {
	State     string     `json:"state"`
	Overlay   bool       `json:"overlay"`
	Seq       uint64     `json:"seq"`
	Animation *Animation `json:"animation,omitempty"`
}

type Animation struct {
	Forward    bool    `json:"forward"`
	Front      *Page   `json:"front,omitempty"`
	Back       *Page   `json:"back,omitempty"`
	StartAngle float64 `json:"start_angle"`
	EndAngle   float64 `json:"end_angle"`
	Origin     string  `json:"origin"`
	Left       string  `json:"left"`
	DurationMS int64   `json:"duration_ms"`
}

// ImagePath is where the browser fetches a rendered page.
func ImagePath(id string, img *render.Image) string {
	return fmt.Sprintf("/api/sessions/%s/images/%d/%d", id, img.Page, int(img.Scale))
}

func (s *Session) page(slot viewer.Slot) *Page {
	if slot.Empty() {
		return nil
	}
	p := &Page{Logical: slot.Logical, Source: slot.Source, Blank: slot.Blank()}
	if img := slot.Image; img != nil {
		p.Image = ImagePath(s.ID, img)
		p.Width, p.Height = img.Width, img.Height
	}
	return p
}

func (s *Session) animation(a *flip.Animation) *Animation {
	if a == nil {
		return nil
	}
	return &Animation{
		Forward:    a.Forward,
		Front:      s.page(a.Front),
		Back:       s.page(a.Back),
		StartAngle: a.StartAngle,
		EndAngle:   a.EndAngle,
		Origin:     a.Origin,
		Left:       a.Left,
		DurationMS: a.Duration.Milliseconds(),
	}
}
