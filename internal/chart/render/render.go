// Package render draws token dashboard charts onto an offscreen raster
// surface. A Renderer owns one chart instance: its data, viewport,
// indicator and annotation state, and a pointer-event state machine
// mirroring what an interactive canvas receives.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/google/uuid"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/metrics"
	"github.com/TokenPulse/dashboard_core/internal/chart/bubble"
	"github.com/TokenPulse/dashboard_core/internal/chart/indicator"
	"github.com/TokenPulse/dashboard_core/internal/chart/viewport"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
)

// ErrChartInit is returned when a renderer cannot be constructed.
var ErrChartInit = errors.New("chart: init failed")

// ErrDestroyed is returned by operations on a destroyed renderer.
var ErrDestroyed = errors.New("chart: renderer destroyed")

// ChartType selects the main geometry pass.
type ChartType string

const (
	TypeLine        ChartType = "line"
	TypeArea        ChartType = "area"
	TypeCandlestick ChartType = "candlestick"
	TypeVolume      ChartType = "volume"
	TypeHeatmap     ChartType = "heatmap"
)

func (t ChartType) valid() bool {
	switch t {
	case TypeLine, TypeArea, TypeCandlestick, TypeVolume, TypeHeatmap:
		return true
	}
	return false
}

// DataSource supplies chart datasets. *orchestrator.Service satisfies it.
type DataSource interface {
	ChartData(ctx context.Context, window market.Window) (market.ChartData, error)
}

// Config is the renderer's drawing configuration. Zero fields fall back
// to defaults in New.
type Config struct {
	Width            int
	Height           int
	DevicePixelRatio float64
	Type             ChartType
	Window           market.Window
	FPS              int
	ShowLegend       bool
	ShowToolbar      bool
	ShowBubbles      bool
}

// AnnotationType enumerates user overlay shapes.
type AnnotationType string

const (
	AnnotationLine      AnnotationType = "line"
	AnnotationRectangle AnnotationType = "rectangle"
	AnnotationText      AnnotationType = "text"
	AnnotationArrow     AnnotationType = "arrow"
)

// Annotation is a user-created overlay in plot pixel coordinates. It
// lives only for the session.
type Annotation struct {
	ID    string         `json:"id"`
	Type  AnnotationType `json:"type"`
	X1    float64        `json:"x1"`
	Y1    float64        `json:"y1"`
	X2    float64        `json:"x2"`
	Y2    float64        `json:"y2"`
	Text  string         `json:"text,omitempty"`
	Color string         `json:"color,omitempty"`
}

// Overlay is an indicator line the renderer draws over the main
// geometry, identified by the metadata key it reads.
type Overlay struct {
	Name    string `json:"name"`
	Color   string `json:"color"`
	Visible bool   `json:"visible"`
}

// PointerKind enumerates the pointer events the renderer understands.
type PointerKind string

const (
	PointerMove        PointerKind = "move"
	PointerDown        PointerKind = "down"
	PointerUp          PointerKind = "up"
	PointerWheel       PointerKind = "wheel"
	PointerDoubleClick PointerKind = "dblclick"
)

// PointerEvent is one input frame in CSS pixel coordinates.
type PointerEvent struct {
	Kind   PointerKind `json:"kind"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	DeltaY float64     `json:"deltaY,omitempty"`
}

// Renderer is a single chart instance. All methods are safe for
// concurrent use; drawing happens under the instance lock.
type Renderer struct {
	source DataSource
	log    *logger.Logger

	mu        sync.Mutex
	cfg       Config
	view      *viewport.Viewport
	data      market.ChartData
	hasData   bool
	loading   bool
	lastError string

	hovered     int
	dragging    bool
	dragAnchor  float64
	dragCurrent float64
	overlays    []Overlay
	annotations map[string]Annotation

	bubbles *bubble.Field

	dc        *gg.Context
	dirty     bool
	destroyed bool

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New builds a renderer with an offscreen surface sized by the config's
// CSS dimensions times the device pixel ratio.
func New(source DataSource, cfg Config, log *logger.Logger) (*Renderer, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil data source", ErrChartInit)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: surface %dx%d", ErrChartInit, cfg.Width, cfg.Height)
	}
	if cfg.DevicePixelRatio <= 0 {
		cfg.DevicePixelRatio = 1
	}
	if !cfg.Type.valid() {
		cfg.Type = TypeCandlestick
	}
	if !cfg.Window.Valid() {
		cfg.Window = market.WindowDay
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if log == nil {
		log = logger.NewDefault("chart-renderer")
	}

	r := &Renderer{
		source:      source,
		log:         log,
		cfg:         cfg,
		view:        viewport.New(),
		hovered:     -1,
		annotations: make(map[string]Annotation),
		overlays: []Overlay{
			{Name: indicator.KeySMA20, Color: "#f59e0b", Visible: true},
			{Name: indicator.KeySMA50, Color: "#8b5cf6", Visible: true},
		},
		dirty: true,
	}
	r.dc = r.newSurface()
	if cfg.ShowBubbles {
		r.bubbles = bubble.NewField(float64(cfg.Width), float64(cfg.Height))
	}
	return r, nil
}

func (r *Renderer) newSurface() *gg.Context {
	w := int(float64(r.cfg.Width) * r.cfg.DevicePixelRatio)
	h := int(float64(r.cfg.Height) * r.cfg.DevicePixelRatio)
	dc := gg.NewContext(w, h)
	dc.Scale(r.cfg.DevicePixelRatio, r.cfg.DevicePixelRatio)
	return dc
}

// LoadData fetches the window's dataset, annotates indicators, and
// swaps it in. On failure the previous data stays visible; only the
// error string is recorded.
func (r *Renderer) LoadData(ctx context.Context, window market.Window) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	if !window.Valid() {
		window = r.cfg.Window
	}
	r.loading = true
	r.mu.Unlock()

	data, err := r.source.ChartData(ctx, window)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
	if err != nil {
		r.lastError = err.Error()
		r.dirty = true
		r.log.WithError(err).WithField("window", string(window)).Warn("chart data load failed")
		return err
	}

	indicator.Annotate(data.Candles)
	r.data = data
	r.hasData = true
	r.lastError = ""
	r.cfg.Window = window
	if r.bubbles != nil {
		r.bubbles.Seed(data.HolderCount, data.WhaleActivity)
	}
	r.dirty = true
	return nil
}

// ApplyUpdate swaps in an already-fetched dataset, used by the refresh
// fan-out path so pushed cycles skip a second orchestrator round-trip.
func (r *Renderer) ApplyUpdate(data market.ChartData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed || data.Window != r.cfg.Window {
		return
	}
	indicator.Annotate(data.Candles)
	r.data = data
	r.hasData = true
	r.lastError = ""
	if r.bubbles != nil {
		r.bubbles.Seed(data.HolderCount, data.WhaleActivity)
	}
	r.dirty = true
}

// Render runs one full drawing pass. Repeated calls with unchanged
// state produce identical pixels.
func (r *Renderer) Render() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	started := time.Now()
	r.draw()
	r.dirty = false
	metrics.RecordRenderPass(string(r.cfg.Type), time.Since(started))
	return nil
}

// HandlePointer feeds one pointer event through the interaction state
// machine. It reports whether the event changed renderer state (and so
// warrants a redraw).
func (r *Renderer) HandlePointer(ev PointerEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return false
	}

	plot := r.plotRect()
	switch ev.Kind {
	case PointerMove:
		return r.pointerMove(ev, plot)
	case PointerDown:
		return r.pointerDown(ev, plot)
	case PointerUp:
		return r.pointerUp(ev, plot)
	case PointerWheel:
		return r.pointerWheel(ev, plot)
	case PointerDoubleClick:
		r.view.Reset()
		r.hovered = -1
		r.dirty = true
		return true
	}
	return false
}

func (r *Renderer) pointerMove(ev PointerEvent, plot rect) bool {
	if !plot.contains(ev.X, ev.Y) && !r.dragging {
		if r.hovered != -1 {
			r.hovered = -1
			r.dirty = true
			return true
		}
		return false
	}
	changed := false
	if r.dragging {
		r.dragCurrent = clampFraction((ev.X - plot.x) / plot.w)
		changed = true
	}
	idx := r.view.IndexAt(ev.X-plot.x, plot.w, len(r.data.Candles))
	if idx != r.hovered {
		r.hovered = idx
		changed = true
	}
	if changed {
		r.dirty = true
	}
	return changed
}

func (r *Renderer) pointerDown(ev PointerEvent, plot rect) bool {
	if r.cfg.ShowToolbar && r.toolbarRect().contains(ev.X, ev.Y) {
		// Toolbar clicks resolve on pointer up.
		return false
	}
	if !plot.contains(ev.X, ev.Y) {
		return false
	}
	r.dragging = true
	r.dragAnchor = clampFraction((ev.X - plot.x) / plot.w)
	r.dragCurrent = r.dragAnchor
	r.view.BeginSelection(r.dragAnchor)
	r.dirty = true
	return true
}

func (r *Renderer) pointerUp(ev PointerEvent, plot rect) bool {
	if r.cfg.ShowToolbar && r.toolbarRect().contains(ev.X, ev.Y) && !r.dragging {
		return r.toolbarClick(ev.X, ev.Y)
	}
	if !r.dragging {
		return false
	}
	r.dragging = false
	changed := r.view.EndSelection(clampFraction((ev.X - plot.x) / plot.w))
	r.dirty = true
	return changed
}

func (r *Renderer) pointerWheel(ev PointerEvent, plot rect) bool {
	if !plot.contains(ev.X, ev.Y) {
		return false
	}
	factor := 1.1
	if ev.DeltaY < 0 {
		factor = 0.9
	}
	r.view.Zoom(factor, clampFraction((ev.X-plot.x)/plot.w))
	r.dirty = true
	return true
}

// toolbarClick hit-tests the timeframe and chart-type buttons. A
// timeframe hit schedules a background LoadData; a type hit switches
// the geometry pass directly.
func (r *Renderer) toolbarClick(x, y float64) bool {
	for _, btn := range r.toolbarButtons() {
		if !btn.bounds.contains(x, y) {
			continue
		}
		if btn.window != "" {
			window := btn.window
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				_ = r.LoadData(ctx, window)
			}()
			return true
		}
		if btn.chartType != "" && btn.chartType != r.cfg.Type {
			r.cfg.Type = btn.chartType
			r.dirty = true
			return true
		}
		return false
	}
	return false
}

// Resize re-establishes the drawing surface for new CSS dimensions and
// device pixel ratio, then marks the frame dirty.
func (r *Renderer) Resize(width, height int, dpr float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: surface %dx%d", ErrChartInit, width, height)
	}
	if dpr <= 0 {
		dpr = r.cfg.DevicePixelRatio
	}
	r.cfg.Width, r.cfg.Height, r.cfg.DevicePixelRatio = width, height, dpr
	r.dc = r.newSurface()
	if r.bubbles != nil {
		r.bubbles.Resize(float64(width), float64(height))
	}
	r.dirty = true
	return nil
}

// ConfigPatch is a partial configuration update; nil fields keep the
// current value.
type ConfigPatch struct {
	Type        *ChartType     `json:"type,omitempty"`
	Window      *market.Window `json:"window,omitempty"`
	ShowLegend  *bool          `json:"showLegend,omitempty"`
	ShowToolbar *bool          `json:"showToolbar,omitempty"`
	FPS         *int           `json:"fps,omitempty"`
}

// UpdateConfig applies a partial configuration change.
func (r *Renderer) UpdateConfig(patch ConfigPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	if patch.Type != nil && patch.Type.valid() {
		r.cfg.Type = *patch.Type
	}
	if patch.Window != nil && patch.Window.Valid() {
		r.cfg.Window = *patch.Window
	}
	if patch.ShowLegend != nil {
		r.cfg.ShowLegend = *patch.ShowLegend
	}
	if patch.ShowToolbar != nil {
		r.cfg.ShowToolbar = *patch.ShowToolbar
	}
	if patch.FPS != nil && *patch.FPS > 0 {
		r.cfg.FPS = *patch.FPS
	}
	r.dirty = true
	return nil
}

// AddIndicator enables an overlay by metadata key name. Names are
// unique within the instance; re-adding updates color and visibility.
func (r *Renderer) AddIndicator(name, color string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if color == "" {
		color = "#38bdf8"
	}
	for i := range r.overlays {
		if r.overlays[i].Name == name {
			r.overlays[i].Color = color
			r.overlays[i].Visible = true
			r.dirty = true
			return
		}
	}
	r.overlays = append(r.overlays, Overlay{Name: name, Color: color, Visible: true})
	r.dirty = true
}

// RemoveIndicator drops an overlay by name.
func (r *Renderer) RemoveIndicator(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.overlays {
		if r.overlays[i].Name == name {
			r.overlays = append(r.overlays[:i], r.overlays[i+1:]...)
			r.dirty = true
			return
		}
	}
}

// Indicators lists the active overlays.
func (r *Renderer) Indicators() []Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Overlay, len(r.overlays))
	copy(out, r.overlays)
	return out
}

// AddAnnotation stores a session-local overlay and returns its id.
func (r *Renderer) AddAnnotation(a Annotation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return "", ErrDestroyed
	}
	switch a.Type {
	case AnnotationLine, AnnotationRectangle, AnnotationText, AnnotationArrow:
	default:
		return "", fmt.Errorf("unsupported annotation type %q", a.Type)
	}
	a.ID = uuid.New().String()
	r.annotations[a.ID] = a
	r.dirty = true
	return a.ID, nil
}

// RemoveAnnotation deletes an overlay by id.
func (r *Renderer) RemoveAnnotation(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.annotations[id]; !ok {
		return false
	}
	delete(r.annotations, id)
	r.dirty = true
	return true
}

// Annotations lists the session's overlays.
func (r *Renderer) Annotations() []Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Annotation, 0, len(r.annotations))
	for _, a := range r.annotations {
		out = append(out, a)
	}
	return out
}

// ExportImage encodes the current surface as a base64 PNG data URI.
func (r *Renderer) ExportImage() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return "", ErrDestroyed
	}
	r.draw()

	var buf strings.Builder
	buf.WriteString("data:image/png;base64,")
	encoder := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := png.Encode(encoder, r.dc.Image()); err != nil {
		return "", fmt.Errorf("encode chart image: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("encode chart image: %w", err)
	}
	return buf.String(), nil
}

// PNG encodes the current surface as raw PNG bytes.
func (r *Renderer) PNG() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, ErrDestroyed
	}
	r.draw()

	var buf bytes.Buffer
	if err := png.Encode(&buf, r.dc.Image()); err != nil {
		return nil, fmt.Errorf("encode chart image: %w", err)
	}
	return buf.Bytes(), nil
}

// StartLoop runs the frame loop: on each tick it integrates animated
// elements and redraws when the frame is dirty. Returns immediately;
// the loop stops on Destroy or context cancellation.
func (r *Renderer) StartLoop(ctx context.Context) {
	r.mu.Lock()
	if r.destroyed || r.loopCancel != nil {
		r.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.loopCancel = cancel
	r.loopDone = make(chan struct{})
	interval := time.Second / time.Duration(r.cfg.FPS)
	r.mu.Unlock()

	go func() {
		defer close(r.loopDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()
}

func (r *Renderer) tick() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	if r.bubbles != nil {
		r.bubbles.Step()
		r.dirty = true
	}
	redraw := r.dirty
	if redraw {
		started := time.Now()
		r.draw()
		r.dirty = false
		metrics.RecordRenderPass(string(r.cfg.Type), time.Since(started))
	}
	r.mu.Unlock()
}

// LastError returns the most recent load failure, empty when healthy.
func (r *Renderer) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// Loading reports whether a LoadData call is in flight.
func (r *Renderer) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Window returns the timeframe currently shown.
func (r *Renderer) Window() market.Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Window
}

// Destroy stops the frame loop and rejects all further operations.
// Safe to call more than once.
func (r *Renderer) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	cancel := r.loopCancel
	done := r.loopDone
	r.loopCancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Destroyed reports whether Destroy has run.
func (r *Renderer) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
