package render

// Scaler derives a render scale from the width of the page container so that
// output stays sharp across viewport sizes.
type Scaler struct {
	Base           float64
	ReferenceWidth int
	Min            float64
	Max            float64
}

// For returns Base*containerWidth/ReferenceWidth clamped to [Min, Max].
// A non-positive width or reference yields Base.
func (s Scaler) For(containerWidth int) float64 {
	if containerWidth <= 0 || s.ReferenceWidth <= 0 {
		return s.Base
	}
	v := s.Base * float64(containerWidth) / float64(s.ReferenceWidth)
	if s.Min > 0 && v < s.Min {
		v = s.Min
	}
	if s.Max > 0 && v > s.Max {
		v = s.Max
	}
	return v
}
