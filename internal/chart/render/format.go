package render

import (
	"fmt"
	"math"
	"strings"
)

// FormatPrice renders a token price for axis and tooltip labels.
// Sub-cent prices keep enough precision to stay distinguishable;
// large prices collapse to two decimals.
func FormatPrice(v float64) string {
	abs := math.Abs(v)
	switch {
	case v == 0:
		return "$0.00"
	case abs < 0.0001:
		return fmt.Sprintf("$%.8f", v)
	case abs < 0.01:
		return fmt.Sprintf("$%.6f", v)
	case abs < 1:
		return fmt.Sprintf("$%.4f", v)
	default:
		return "$" + withThousands(fmt.Sprintf("%.2f", v))
	}
}

// FormatCompact renders a large quantity with a metric suffix, as the
// legend does for volume and market cap.
func FormatCompact(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// withThousands inserts comma separators into a fixed-point decimal.
func withThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
