package render

import (
	"fmt"
	"math"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
)

// Palette. Hex values match the dashboard's dark theme.
const (
	colorBackground  = "#0b1120"
	colorGrid        = "#1e293b"
	colorAxisText    = "#64748b"
	colorLine        = "#38bdf8"
	colorAreaFill    = "#0ea5e966"
	colorCandleUp    = "#22c55e"
	colorCandleDown  = "#ef4444"
	colorCrosshair   = "#94a3b8"
	colorSelection   = "#38bdf833"
	colorToolbar     = "#111c33"
	colorToolbarText = "#cbd5e1"
	colorToolbarHot  = "#1d4ed8"
	colorLegendText  = "#e2e8f0"
	colorErrorText   = "#f87171"
	colorBubble      = "#38bdf8"
)

const (
	toolbarHeight = 36.0
	axisGutter    = 56.0
	plotPadding   = 8.0
	gridLines     = 5
	buttonWidth   = 52.0
	buttonHeight  = 22.0
	buttonGap     = 6.0
)

type rect struct{ x, y, w, h float64 }

func (r rect) contains(x, y float64) bool {
	return x >= r.x && x < r.x+r.w && y >= r.y && y < r.y+r.h
}

// plotRect is the chart body in CSS pixels: full surface minus the
// toolbar strip and the right-hand price axis gutter.
func (r *Renderer) plotRect() rect {
	top := plotPadding
	if r.cfg.ShowToolbar {
		top = toolbarHeight
	}
	return rect{
		x: plotPadding,
		y: top,
		w: float64(r.cfg.Width) - axisGutter - plotPadding,
		h: float64(r.cfg.Height) - top - plotPadding,
	}
}

func (r *Renderer) toolbarRect() rect {
	return rect{x: 0, y: 0, w: float64(r.cfg.Width), h: toolbarHeight}
}

type toolbarButton struct {
	label     string
	window    market.Window
	chartType ChartType
	bounds    rect
}

func (r *Renderer) toolbarButtons() []toolbarButton {
	buttons := []toolbarButton{
		{label: "24H", window: market.WindowDay},
		{label: "7D", window: market.WindowWeek},
		{label: "30D", window: market.WindowMonth},
		{label: "90D", window: market.WindowQuarter},
		{label: "Line", chartType: TypeLine},
		{label: "Area", chartType: TypeArea},
		{label: "Candles", chartType: TypeCandlestick},
		{label: "Volume", chartType: TypeVolume},
		{label: "Heat", chartType: TypeHeatmap},
	}
	x := plotPadding
	y := (toolbarHeight - buttonHeight) / 2
	for i := range buttons {
		buttons[i].bounds = rect{x: x, y: y, w: buttonWidth, h: buttonHeight}
		x += buttonWidth + buttonGap
		if i == 3 {
			x += buttonGap * 3
		}
	}
	return buttons
}

// draw is the single authoritative render pass. Callers hold r.mu.
func (r *Renderer) draw() {
	dc := r.dc
	dc.SetHexColor(colorBackground)
	dc.Clear()

	plot := r.plotRect()
	r.drawGrid(plot)

	start, end := 0, 0
	if r.hasData {
		start, end = r.view.VisibleIndices(len(r.data.Candles))
		visible := r.data.Candles[start:end]
		lo, hi := priceBounds(visible)

		switch r.cfg.Type {
		case TypeLine:
			r.drawLine(plot, visible, lo, hi, false)
		case TypeArea:
			r.drawLine(plot, visible, lo, hi, true)
		case TypeCandlestick:
			r.drawCandles(plot, visible, lo, hi)
		case TypeVolume:
			r.drawVolume(plot, visible)
		case TypeHeatmap:
			r.drawHeatmap(plot, visible)
		}
		if r.cfg.Type != TypeVolume && r.cfg.Type != TypeHeatmap {
			r.drawOverlays(plot, visible, lo, hi)
		}
		r.drawAxis(plot, lo, hi)
	}

	if r.bubbles != nil {
		r.drawBubbles(plot)
	}
	r.drawAnnotations()
	if r.hovered >= start && r.hovered < end && r.hasData {
		r.drawCrosshair(plot, start, end)
	}
	if r.view.Selecting() {
		// A live drag shades the anchor-to-pointer span; the selection
		// itself resolves on pointer up.
		r.drawSelectionBand(plot)
	}
	if r.cfg.ShowLegend {
		r.drawLegend(plot)
	}
	if r.cfg.ShowToolbar {
		r.drawToolbar()
	}
	if r.loading {
		r.drawBadge(plot, "loading…", colorAxisText)
	} else if r.lastError != "" {
		r.drawBadge(plot, "data unavailable", colorErrorText)
	}
}

func (r *Renderer) drawGrid(plot rect) {
	dc := r.dc
	dc.SetHexColor(colorGrid)
	dc.SetLineWidth(1)
	for i := 0; i <= gridLines; i++ {
		y := plot.y + plot.h*float64(i)/gridLines
		dc.DrawLine(plot.x, y, plot.x+plot.w, y)
		dc.Stroke()
	}
	for i := 0; i <= gridLines; i++ {
		x := plot.x + plot.w*float64(i)/gridLines
		dc.DrawLine(x, plot.y, x, plot.y+plot.h)
		dc.Stroke()
	}
}

// priceBounds is the min low / max high over the visible slice with a
// 5% padding margin on each side.
func priceBounds(candles []market.Candle) (float64, float64) {
	if len(candles) == 0 {
		return 0, 1
	}
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, c := range candles {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	if hi <= lo {
		hi = lo + 1
	}
	pad := (hi - lo) * 0.05
	return lo - pad, hi + pad
}

func (r *Renderer) priceToY(plot rect, lo, hi, price float64) float64 {
	return plot.y + plot.h*(1-(price-lo)/(hi-lo))
}

func (r *Renderer) candleX(plot rect, i, visible int) (center, width float64) {
	slot := plot.w / float64(visible)
	return plot.x + slot*(float64(i)+0.5), slot
}

func (r *Renderer) drawLine(plot rect, candles []market.Candle, lo, hi float64, fill bool) {
	if len(candles) == 0 {
		return
	}
	dc := r.dc

	if fill {
		dc.SetHexColor(colorAreaFill)
		first, _ := r.candleX(plot, 0, len(candles))
		dc.MoveTo(first, plot.y+plot.h)
		for i, c := range candles {
			x, _ := r.candleX(plot, i, len(candles))
			dc.LineTo(x, r.priceToY(plot, lo, hi, c.Close))
		}
		last, _ := r.candleX(plot, len(candles)-1, len(candles))
		dc.LineTo(last, plot.y+plot.h)
		dc.ClosePath()
		dc.Fill()
	}

	dc.SetHexColor(colorLine)
	dc.SetLineWidth(2)
	for i, c := range candles {
		x, _ := r.candleX(plot, i, len(candles))
		y := r.priceToY(plot, lo, hi, c.Close)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()
}

func (r *Renderer) drawCandles(plot rect, candles []market.Candle, lo, hi float64) {
	dc := r.dc
	for i, c := range candles {
		x, slot := r.candleX(plot, i, len(candles))
		bodyW := slot * 0.6
		if bodyW < 1 {
			bodyW = 1
		}

		color := colorCandleDown
		if c.Bullish() {
			color = colorCandleUp
		}
		dc.SetHexColor(color)

		// Wick from high to low.
		dc.SetLineWidth(1)
		dc.DrawLine(x, r.priceToY(plot, lo, hi, c.High), x, r.priceToY(plot, lo, hi, c.Low))
		dc.Stroke()

		// Body from open to close; flat candles keep a 1px body.
		top := r.priceToY(plot, lo, hi, math.Max(c.Open, c.Close))
		bottom := r.priceToY(plot, lo, hi, math.Min(c.Open, c.Close))
		if bottom-top < 1 {
			bottom = top + 1
		}
		dc.DrawRectangle(x-bodyW/2, top, bodyW, bottom-top)
		dc.Fill()
	}
}

func (r *Renderer) drawVolume(plot rect, candles []market.Candle) {
	dc := r.dc
	maxVolume := 0.0
	for _, c := range candles {
		if c.Volume > maxVolume {
			maxVolume = c.Volume
		}
	}
	if maxVolume <= 0 {
		return
	}
	for i, c := range candles {
		x, slot := r.candleX(plot, i, len(candles))
		barW := slot * 0.7
		if barW < 1 {
			barW = 1
		}
		h := plot.h * (c.Volume / maxVolume)

		// Blend bar color by the candle's buy share.
		share := 0.5
		if c.Volume > 0 {
			share = c.BuyVolume / c.Volume
		}
		dc.SetRGB(
			lerp(0.94, 0.13, share),
			lerp(0.27, 0.77, share),
			lerp(0.27, 0.37, share),
		)
		dc.DrawRectangle(x-barW/2, plot.y+plot.h-h, barW, h)
		dc.Fill()
	}
}

func (r *Renderer) drawHeatmap(plot rect, candles []market.Candle) {
	dc := r.dc
	if len(candles) == 0 {
		return
	}
	cellH := plot.h / 24
	for i, c := range candles {
		x, slot := r.candleX(plot, i, len(candles))
		hour := c.Timestamp.Hour()
		y := plot.y + plot.h - float64(hour+1)*cellH

		intensity := clampFraction(c.WhaleActivity)
		dc.SetRGBA(0.22, 0.74, 0.97, 0.15+0.85*intensity)
		dc.DrawRectangle(x-slot/2, y, slot, cellH)
		dc.Fill()
	}
}

func (r *Renderer) drawOverlays(plot rect, candles []market.Candle, lo, hi float64) {
	dc := r.dc
	for _, overlay := range r.overlays {
		if !overlay.Visible {
			continue
		}
		dc.SetHexColor(overlay.Color)
		dc.SetLineWidth(1.5)
		started := false
		for i, c := range candles {
			v, ok := c.Meta[overlay.Name]
			if !ok || math.IsNaN(v) {
				continue
			}
			x, _ := r.candleX(plot, i, len(candles))
			y := r.priceToY(plot, lo, hi, v)
			if !started {
				dc.MoveTo(x, y)
				started = true
			} else {
				dc.LineTo(x, y)
			}
		}
		if started {
			dc.Stroke()
		}
	}
}

func (r *Renderer) drawAxis(plot rect, lo, hi float64) {
	dc := r.dc
	dc.SetHexColor(colorAxisText)
	for i := 0; i <= gridLines; i++ {
		price := hi - (hi-lo)*float64(i)/gridLines
		y := plot.y + plot.h*float64(i)/gridLines
		dc.DrawString(FormatPrice(price), plot.x+plot.w+6, y+4)
	}
}

func (r *Renderer) drawCrosshair(plot rect, start, end int) {
	dc := r.dc
	visible := end - start
	if visible <= 0 {
		return
	}
	x, _ := r.candleX(plot, r.hovered-start, visible)
	candle := r.data.Candles[r.hovered]
	lo, hi := priceBounds(r.data.Candles[start:end])
	y := r.priceToY(plot, lo, hi, candle.Close)

	dc.SetHexColor(colorCrosshair)
	dc.SetLineWidth(1)
	dc.SetDash(4, 4)
	dc.DrawLine(x, plot.y, x, plot.y+plot.h)
	dc.Stroke()
	dc.DrawLine(plot.x, y, plot.x+plot.w, y)
	dc.Stroke()
	dc.SetDash()

	label := fmt.Sprintf("O %s  H %s  L %s  C %s",
		FormatPrice(candle.Open), FormatPrice(candle.High),
		FormatPrice(candle.Low), FormatPrice(candle.Close))
	dc.SetHexColor(colorLegendText)
	dc.DrawString(label, plot.x+6, plot.y+14)
}

func (r *Renderer) drawSelectionBand(plot rect) {
	lo, hi := r.dragAnchor, r.dragCurrent
	if lo > hi {
		lo, hi = hi, lo
	}
	dc := r.dc
	dc.SetHexColor(colorSelection)
	dc.DrawRectangle(plot.x+lo*plot.w, plot.y, (hi-lo)*plot.w, plot.h)
	dc.Fill()
}

func (r *Renderer) drawLegend(plot rect) {
	dc := r.dc
	dc.SetHexColor(colorLegendText)
	y := plot.y + plot.h - 8

	label := fmt.Sprintf("%s · %s", r.cfg.Window, r.cfg.Type)
	if r.hasData && len(r.data.Candles) > 0 {
		last := r.data.Candles[len(r.data.Candles)-1]
		label = fmt.Sprintf("%s · %s · %s  vol %s",
			r.cfg.Window, r.cfg.Type,
			FormatPrice(last.Close), FormatCompact(last.Volume))
	}
	dc.DrawString(label, plot.x+6, y)
}

func (r *Renderer) drawToolbar() {
	dc := r.dc
	bar := r.toolbarRect()
	dc.SetHexColor(colorToolbar)
	dc.DrawRectangle(bar.x, bar.y, bar.w, bar.h)
	dc.Fill()

	for _, btn := range r.toolbarButtons() {
		active := (btn.window != "" && btn.window == r.cfg.Window) ||
			(btn.chartType != "" && btn.chartType == r.cfg.Type)
		if active {
			dc.SetHexColor(colorToolbarHot)
			dc.DrawRoundedRectangle(btn.bounds.x, btn.bounds.y, btn.bounds.w, btn.bounds.h, 4)
			dc.Fill()
		}
		dc.SetHexColor(colorToolbarText)
		dc.DrawStringAnchored(btn.label,
			btn.bounds.x+btn.bounds.w/2, btn.bounds.y+btn.bounds.h/2, 0.5, 0.35)
	}
}

func (r *Renderer) drawBubbles(plot rect) {
	dc := r.dc
	for _, b := range r.bubbles.Bubbles() {
		dc.SetRGBA(0.22, 0.74, 0.97, 0.2+0.5*clampFraction(b.Weight))
		dc.DrawCircle(b.X, b.Y, b.Radius)
		dc.Fill()
	}
}

func (r *Renderer) drawAnnotations() {
	dc := r.dc
	for _, a := range r.annotations {
		color := a.Color
		if color == "" {
			color = colorCrosshair
		}
		dc.SetHexColor(color)
		dc.SetLineWidth(1.5)
		switch a.Type {
		case AnnotationLine:
			dc.DrawLine(a.X1, a.Y1, a.X2, a.Y2)
			dc.Stroke()
		case AnnotationRectangle:
			dc.DrawRectangle(math.Min(a.X1, a.X2), math.Min(a.Y1, a.Y2),
				math.Abs(a.X2-a.X1), math.Abs(a.Y2-a.Y1))
			dc.Stroke()
		case AnnotationText:
			dc.DrawString(a.Text, a.X1, a.Y1)
		case AnnotationArrow:
			dc.DrawLine(a.X1, a.Y1, a.X2, a.Y2)
			dc.Stroke()
			drawArrowHead(r, a.X1, a.Y1, a.X2, a.Y2)
		}
	}
}

func drawArrowHead(r *Renderer, x1, y1, x2, y2 float64) {
	angle := math.Atan2(y2-y1, x2-x1)
	const size = 8.0
	dc := r.dc
	dc.MoveTo(x2, y2)
	dc.LineTo(x2-size*math.Cos(angle-math.Pi/6), y2-size*math.Sin(angle-math.Pi/6))
	dc.MoveTo(x2, y2)
	dc.LineTo(x2-size*math.Cos(angle+math.Pi/6), y2-size*math.Sin(angle+math.Pi/6))
	dc.Stroke()
}

func (r *Renderer) drawBadge(plot rect, text, color string) {
	dc := r.dc
	dc.SetHexColor(color)
	dc.DrawStringAnchored(text, plot.x+plot.w/2, plot.y+plot.h/2, 0.5, 0.5)
}

func lerp(a, b, t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return a + (b-a)*t
}
