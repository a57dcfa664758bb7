// Package viewport tracks the visible fraction of a chart's candle
// range. All state lives in fraction space [0,1]; the renderer maps it
// to integer indices per frame. Transitions are synchronous and the
// type is not safe for concurrent use, matching the single render
// goroutine that owns it.
package viewport

// minSpan is the smallest visible fraction a zoom can reach.
const minSpan = 0.01

// selectionThreshold is the minimum drag span that becomes a viewport;
// anything shorter is treated as a click and discarded.
const selectionThreshold = 0.05

// Viewport holds the visible window with the invariant
// 0 <= Start < End <= 1.
type Viewport struct {
	start float64
	end   float64

	selecting      bool
	selectionStart float64
}

// New returns a viewport spanning the full range.
func New() *Viewport {
	return &Viewport{start: 0, end: 1}
}

func (v *Viewport) Start() float64 { return v.start }
func (v *Viewport) End() float64   { return v.end }

// Span is the visible fraction of the full range.
func (v *Viewport) Span() float64 { return v.end - v.start }

// Selecting reports whether a drag selection is in progress.
func (v *Viewport) Selecting() bool { return v.selecting }

// Zoom scales the visible span by factor around centerFraction. Factors
// below 1 zoom in; the span never shrinks under 1% and the window never
// leaves [0,1].
func (v *Viewport) Zoom(factor, centerFraction float64) {
	if factor <= 0 {
		return
	}
	center := v.start + clamp01(centerFraction)*v.Span()

	span := v.Span() * factor
	if span < minSpan {
		span = minSpan
	}
	if span > 1 {
		span = 1
	}

	// Keep the anchor point at the same relative position.
	rel := 0.5
	if v.Span() > 0 {
		rel = (center - v.start) / v.Span()
	}
	v.start = center - rel*span
	v.end = v.start + span
	v.clampWindow()
}

// Pan shifts the window by deltaFraction, clamped so it never exits
// [0,1]. The span is preserved.
func (v *Viewport) Pan(deltaFraction float64) {
	span := v.Span()
	v.start += deltaFraction
	v.end = v.start + span
	if v.start < 0 {
		v.start = 0
		v.end = span
	}
	if v.end > 1 {
		v.end = 1
		v.start = 1 - span
	}
}

// BeginSelection starts a drag at the given chart fraction.
func (v *Viewport) BeginSelection(fraction float64) {
	v.selecting = true
	v.selectionStart = clamp01(fraction)
}

// EndSelection finishes a drag. A span over the 5% threshold becomes the
// new viewport, sorted low-to-high; a shorter drag is a click and leaves
// the viewport untouched. Returns whether the viewport changed.
func (v *Viewport) EndSelection(fraction float64) bool {
	if !v.selecting {
		return false
	}
	v.selecting = false

	a, b := v.selectionStart, clamp01(fraction)
	if a > b {
		a, b = b, a
	}
	if b-a < selectionThreshold {
		return false
	}

	// Drag fractions are relative to the currently visible window.
	span := v.Span()
	v.start, v.end = v.start+a*span, v.start+b*span
	v.clampWindow()
	return true
}

// Reset restores the full range.
func (v *Viewport) Reset() {
	v.start, v.end = 0, 1
	v.selecting = false
}

// VisibleIndices maps the fractional window onto [startIndex, endIndex)
// over a series of totalLength items. The result always contains at
// least one index when totalLength > 0.
func (v *Viewport) VisibleIndices(totalLength int) (int, int) {
	if totalLength <= 0 {
		return 0, 0
	}
	startIdx := int(v.start * float64(totalLength))
	endIdx := int(v.end*float64(totalLength) + 0.9999)
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > totalLength {
		endIdx = totalLength
	}
	if startIdx >= endIdx {
		if startIdx >= totalLength {
			startIdx = totalLength - 1
		}
		endIdx = startIdx + 1
	}
	return startIdx, endIdx
}

// FractionAt converts a pixel x-position over a plot of the given width
// into a fraction of the full series range.
func (v *Viewport) FractionAt(x, width float64) float64 {
	if width <= 0 {
		return v.start
	}
	return v.start + clamp01(x/width)*v.Span()
}

// IndexAt converts a pixel x-position into the nearest visible candle
// index, or -1 when the series is empty.
func (v *Viewport) IndexAt(x, width float64, totalLength int) int {
	if totalLength <= 0 {
		return -1
	}
	startIdx, endIdx := v.VisibleIndices(totalLength)
	visible := endIdx - startIdx
	if visible <= 0 || width <= 0 {
		return startIdx
	}
	idx := startIdx + int(clamp01(x/width)*float64(visible))
	if idx >= endIdx {
		idx = endIdx - 1
	}
	return idx
}

func (v *Viewport) clampWindow() {
	span := v.Span()
	if span < minSpan {
		span = minSpan
	}
	if span > 1 {
		span = 1
	}
	if v.start < 0 {
		v.start = 0
	}
	if v.start+span > 1 {
		v.start = 1 - span
	}
	v.end = v.start + span
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
