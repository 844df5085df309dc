package viewer

import (
	"fmt"
	"strings"

	"github.com/local/flipbook/internal/render"
)

// Mode selects how many pages are shown at once.
type Mode string

const (
	Single Mode = "single"
	Spread Mode = "spread"
)

// ParseMode maps a config value to a Mode, defaulting to Spread.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(Single)) {
		return Single
	}
	return Spread
}

// Step is the logical distance of one page turn.
func (m Mode) Step() int {
	if m == Single {
		return 1
	}
	return 2
}

// Slot is one displayed page surface. Logical is -1 for a surface with no
// page behind it (the right half of a spread at the end of the document).
// A nil Image is drawn as the blank placeholder.
type Slot struct {
	Logical int
	Source  int
	Image   *render.Image
}

// Empty reports whether no page belongs in the slot.
func (s Slot) Empty() bool { return s.Logical < 0 }

// Blank reports whether the slot shows the placeholder.
func (s Slot) Blank() bool { return s.Image == nil }

var noPage = Slot{Logical: -1}

// View is what the display shows after a navigation.
type View struct {
	Mode    Mode
	Current int
	Count   int
	Left    Slot
	Right   Slot
	Label   string
	Total   string
}

func label(mode Mode, left, right Slot, count int) (string, string) {
	total := fmt.Sprintf("of %d", count)
	if mode == Spread && !right.Empty() {
		return fmt.Sprintf("Pages %d - %d", left.Logical+1, right.Logical+1), total
	}
	return fmt.Sprintf("Page %d", left.Logical+1), total
}

// Display receives every view that wins the race to the screen.
type Display interface {
	Show(v View)
}

// Thumb is one entry of the thumbnail strip.
type Thumb struct {
	Logical int
	Source  int
	Image   *render.Image
	Active  bool
}

// thumbPositions picks at most max logical indexes, evenly stepped.
func thumbPositions(count, max int) []int {
	if count <= 0 || max <= 0 {
		return nil
	}
	step := 1
	if count > max {
		step = (count + max - 1) / max
	}
	out := make([]int, 0, max)
	for p := 0; p < count; p += step {
		out = append(out, p)
	}
	return out
}
