// Package bubble animates the holder bubble field. Integration is the
// simple per-frame scheme the dashboard uses everywhere: position
// advances by velocity, walls bounce with 0.8 damping, and friction
// bleeds 1% of velocity per frame.
package bubble

import (
	"math"
	"math/rand"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
)

const (
	bounceDamping = 0.8
	friction      = 0.99
	minRadius     = 4.0
	maxRadius     = 36.0
	maxBubbles    = 48
)

// Bubble is one animated circle. Weight in [0,1] drives its rendering
// intensity.
type Bubble struct {
	X, Y   float64
	VX, VY float64
	Radius float64
	Weight float64
}

// Field holds the bubbles and their bounds. Not safe for concurrent
// use; the owning renderer serializes access.
type Field struct {
	width   float64
	height  float64
	bubbles []Bubble
	rnd     *rand.Rand
}

// NewField creates an empty field over the given bounds.
func NewField(width, height float64) *Field {
	return &Field{
		width:  width,
		height: height,
		rnd:    rand.New(rand.NewSource(int64(width*7919) + int64(height))),
	}
}

// Seed rebuilds the bubble set from the holder-count and whale-activity
// series: one bubble per recent sample, sized by holder count relative
// to the series max and weighted by whale activity.
func (f *Field) Seed(holderCounts, whaleActivity []market.SeriesPoint) {
	n := len(holderCounts)
	if n > maxBubbles {
		holderCounts = holderCounts[n-maxBubbles:]
		n = maxBubbles
	}

	maxHolders := 1
	for _, p := range holderCounts {
		if p.Holders > maxHolders {
			maxHolders = p.Holders
		}
	}

	f.bubbles = make([]Bubble, n)
	for i, p := range holderCounts {
		weight := 0.0
		if i < len(whaleActivity) {
			weight = clamp01(whaleActivity[len(whaleActivity)-n+i].WhaleActivity)
		}
		scale := math.Sqrt(float64(p.Holders) / float64(maxHolders))
		f.bubbles[i] = Bubble{
			X:      f.rnd.Float64() * f.width,
			Y:      f.rnd.Float64() * f.height,
			VX:     (f.rnd.Float64() - 0.5) * 2,
			VY:     (f.rnd.Float64() - 0.5) * 2,
			Radius: minRadius + scale*(maxRadius-minRadius),
			Weight: weight,
		}
	}
}

// Step advances the field one frame.
func (f *Field) Step() {
	for i := range f.bubbles {
		b := &f.bubbles[i]
		b.X += b.VX
		b.Y += b.VY

		if b.X-b.Radius < 0 {
			b.X = b.Radius
			b.VX = -b.VX * bounceDamping
		} else if b.X+b.Radius > f.width {
			b.X = f.width - b.Radius
			b.VX = -b.VX * bounceDamping
		}
		if b.Y-b.Radius < 0 {
			b.Y = b.Radius
			b.VY = -b.VY * bounceDamping
		} else if b.Y+b.Radius > f.height {
			b.Y = f.height - b.Radius
			b.VY = -b.VY * bounceDamping
		}

		b.VX *= friction
		b.VY *= friction
	}
}

// Resize updates the bounds and pulls any escaped bubbles back inside.
func (f *Field) Resize(width, height float64) {
	f.width, f.height = width, height
	for i := range f.bubbles {
		b := &f.bubbles[i]
		if b.X > width {
			b.X = width - b.Radius
		}
		if b.Y > height {
			b.Y = height - b.Radius
		}
	}
}

// Bubbles returns the live bubble slice for drawing.
func (f *Field) Bubbles() []Bubble { return f.bubbles }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
