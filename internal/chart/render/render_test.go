package render

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
)

type stubSource struct {
	data  market.ChartData
	err   error
	calls int
}

func (s *stubSource) ChartData(ctx context.Context, window market.Window) (market.ChartData, error) {
	s.calls++
	if s.err != nil {
		return market.ChartData{}, s.err
	}
	data := s.data
	data.Window = window
	return data, nil
}

func chartData(n int) market.ChartData {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	price := make([]market.SeriesPoint, n)
	holders := make([]market.SeriesPoint, n)
	whale := make([]market.SeriesPoint, n)
	open := 2.0
	for i := range candles {
		ts := base.Add(time.Duration(i) * time.Hour)
		close := open * (1 + 0.01*float64(i%5-2))
		candles[i] = market.Candle{
			Timestamp: ts,
			Open:      open,
			High:      close * 1.02,
			Low:       open * 0.98,
			Close:     close,
			Volume:    1000 + float64(i)*10,
			BuyVolume: 600,
		}
		price[i] = market.SeriesPoint{Timestamp: ts, Price: close}
		holders[i] = market.SeriesPoint{Timestamp: ts, Holders: 1000 + i}
		whale[i] = market.SeriesPoint{Timestamp: ts, WhaleActivity: 0.4}
		open = close
	}
	return market.ChartData{
		Window:        market.WindowDay,
		Candles:       candles,
		Price:         price,
		Volume:        price,
		HolderCount:   holders,
		WhaleActivity: whale,
		GeneratedAt:   base,
	}
}

func newTestRenderer(t *testing.T, source DataSource) *Renderer {
	t.Helper()
	r, err := New(source, Config{Width: 320, Height: 200, ShowLegend: true, ShowToolbar: true}, nil)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r
}

func TestNew_Validates(t *testing.T) {
	if _, err := New(nil, Config{Width: 100, Height: 100}, nil); !errors.Is(err, ErrChartInit) {
		t.Fatalf("nil source must fail init, got %v", err)
	}
	if _, err := New(&stubSource{}, Config{Width: 0, Height: 100}, nil); !errors.Is(err, ErrChartInit) {
		t.Fatalf("zero width must fail init, got %v", err)
	}
}

func TestLoadData_KeepsPriorDataOnFailure(t *testing.T) {
	source := &stubSource{data: chartData(24)}
	r := newTestRenderer(t, source)

	if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
		t.Fatalf("load: %v", err)
	}

	source.err = errors.New("upstream offline")
	if err := r.LoadData(context.Background(), market.WindowWeek); err == nil {
		t.Fatalf("expected load failure")
	}
	if r.LastError() == "" {
		t.Fatalf("error not recorded")
	}
	if r.Window() != market.WindowDay {
		t.Fatalf("failed load must not switch the window")
	}

	r.mu.Lock()
	candles := len(r.data.Candles)
	r.mu.Unlock()
	if candles != 24 {
		t.Fatalf("prior data blanked on failure")
	}

	// A later success clears the error.
	source.err = nil
	if err := r.LoadData(context.Background(), market.WindowWeek); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if r.LastError() != "" {
		t.Fatalf("stale error survives a successful load")
	}
}

func TestRender_Idempotent(t *testing.T) {
	source := &stubSource{data: chartData(48)}
	r := newTestRenderer(t, source)
	if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := r.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	first, err := r.PNG()
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if err := r.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := r.PNG()
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("repeated render with unchanged state produced different pixels")
	}
}

func TestRender_AllChartTypes(t *testing.T) {
	source := &stubSource{data: chartData(48)}
	for _, chartType := range []ChartType{TypeLine, TypeArea, TypeCandlestick, TypeVolume, TypeHeatmap} {
		r := newTestRenderer(t, source)
		if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
			t.Fatalf("load: %v", err)
		}
		ct := chartType
		if err := r.UpdateConfig(ConfigPatch{Type: &ct}); err != nil {
			t.Fatalf("config: %v", err)
		}
		if err := r.Render(); err != nil {
			t.Fatalf("%s render: %v", chartType, err)
		}
		r.Destroy()
	}
}

func TestExportImage_DataURI(t *testing.T) {
	source := &stubSource{data: chartData(24)}
	r := newTestRenderer(t, source)
	if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
		t.Fatalf("load: %v", err)
	}

	uri, err := r.ExportImage()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("unexpected data URI prefix: %.40s", uri)
	}
	if len(uri) < 100 {
		t.Fatalf("suspiciously small export: %d bytes", len(uri))
	}
}

func TestPointer_WheelZoomsAroundCursor(t *testing.T) {
	source := &stubSource{data: chartData(48)}
	r := newTestRenderer(t, source)
	if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
		t.Fatalf("load: %v", err)
	}

	plot := r.plotRect()
	center := PointerEvent{Kind: PointerWheel, X: plot.x + plot.w/2, Y: plot.y + plot.h/2, DeltaY: -1}
	if !r.HandlePointer(center) {
		t.Fatalf("wheel inside plot must change state")
	}
	if span := r.view.Span(); span >= 1 {
		t.Fatalf("zoom in did not shrink span: %v", span)
	}

	if r.HandlePointer(PointerEvent{Kind: PointerWheel, X: 1, Y: 1, DeltaY: -1}) {
		t.Fatalf("wheel outside plot must be ignored")
	}

	if !r.HandlePointer(PointerEvent{Kind: PointerDoubleClick}) {
		t.Fatalf("double click must reset")
	}
	if r.view.Span() != 1 {
		t.Fatalf("double click did not reset viewport")
	}
}

func TestPointer_DragSelection(t *testing.T) {
	source := &stubSource{data: chartData(48)}
	r := newTestRenderer(t, source)
	if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
		t.Fatalf("load: %v", err)
	}

	plot := r.plotRect()
	r.HandlePointer(PointerEvent{Kind: PointerDown, X: plot.x + plot.w*0.2, Y: plot.y + 10})
	changed := r.HandlePointer(PointerEvent{Kind: PointerUp, X: plot.x + plot.w*0.5, Y: plot.y + 10})
	if !changed {
		t.Fatalf("30%% drag must become the viewport")
	}
	if span := r.view.Span(); span > 0.31 || span < 0.29 {
		t.Fatalf("selection span = %v, want ~0.3", span)
	}
}

func TestPointer_DragBandTracksPointer(t *testing.T) {
	source := &stubSource{data: chartData(48)}
	r := newTestRenderer(t, source)
	if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
		t.Fatalf("load: %v", err)
	}

	plot := r.plotRect()
	r.HandlePointer(PointerEvent{Kind: PointerDown, X: plot.x + plot.w*0.2, Y: plot.y + 10})
	r.HandlePointer(PointerEvent{Kind: PointerMove, X: plot.x + plot.w*0.4, Y: plot.y + 10})
	if r.dragAnchor < 0.19 || r.dragAnchor > 0.21 {
		t.Fatalf("drag anchor = %v, want ~0.2", r.dragAnchor)
	}
	if r.dragCurrent < 0.39 || r.dragCurrent > 0.41 {
		t.Fatalf("drag position = %v, want ~0.4", r.dragCurrent)
	}

	if err := r.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	narrow, err := r.PNG()
	if err != nil {
		t.Fatalf("png: %v", err)
	}

	// Keep the pointer over the same candle so only the band widens.
	step := plot.w / 48 / 4
	r.HandlePointer(PointerEvent{Kind: PointerMove, X: plot.x + plot.w*0.4 + step, Y: plot.y + 10})
	if err := r.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	wider, err := r.PNG()
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if bytes.Equal(narrow, wider) {
		t.Fatalf("selection band must widen with the pointer")
	}
}

func TestPointer_HoverTracksIndex(t *testing.T) {
	source := &stubSource{data: chartData(48)}
	r := newTestRenderer(t, source)
	if err := r.LoadData(context.Background(), market.WindowDay); err != nil {
		t.Fatalf("load: %v", err)
	}

	plot := r.plotRect()
	if !r.HandlePointer(PointerEvent{Kind: PointerMove, X: plot.x + plot.w*0.5, Y: plot.y + 10}) {
		t.Fatalf("first hover must mark state dirty")
	}
	r.mu.Lock()
	hovered := r.hovered
	r.mu.Unlock()
	if hovered < 0 || hovered >= 48 {
		t.Fatalf("hovered index out of range: %d", hovered)
	}

	// Same position again: no state change.
	if r.HandlePointer(PointerEvent{Kind: PointerMove, X: plot.x + plot.w*0.5, Y: plot.y + 10}) {
		t.Fatalf("unchanged hover must not re-dirty")
	}

	// Leaving the plot clears the hover.
	if !r.HandlePointer(PointerEvent{Kind: PointerMove, X: 0, Y: 0}) {
		t.Fatalf("leaving the plot must clear hover")
	}
}

func TestToolbar_TypeSwitch(t *testing.T) {
	source := &stubSource{data: chartData(24)}
	r := newTestRenderer(t, source)

	var lineBtn *toolbarButton
	for _, btn := range r.toolbarButtons() {
		if btn.chartType == TypeLine {
			b := btn
			lineBtn = &b
			break
		}
	}
	if lineBtn == nil {
		t.Fatalf("line button missing from toolbar")
	}

	x := lineBtn.bounds.x + lineBtn.bounds.w/2
	y := lineBtn.bounds.y + lineBtn.bounds.h/2
	if !r.HandlePointer(PointerEvent{Kind: PointerUp, X: x, Y: y}) {
		t.Fatalf("toolbar click must switch chart type")
	}
	r.mu.Lock()
	got := r.cfg.Type
	r.mu.Unlock()
	if got != TypeLine {
		t.Fatalf("chart type = %s, want line", got)
	}
}

func TestAnnotations_Lifecycle(t *testing.T) {
	r := newTestRenderer(t, &stubSource{data: chartData(24)})

	id, err := r.AddAnnotation(Annotation{Type: AnnotationLine, X1: 10, Y1: 10, X2: 50, Y2: 50})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" {
		t.Fatalf("annotation id must be assigned")
	}
	if _, err := r.AddAnnotation(Annotation{Type: "circle"}); err == nil {
		t.Fatalf("unsupported annotation type must be rejected")
	}
	if len(r.Annotations()) != 1 {
		t.Fatalf("annotation not stored")
	}
	if !r.RemoveAnnotation(id) {
		t.Fatalf("remove by id failed")
	}
	if r.RemoveAnnotation(id) {
		t.Fatalf("second remove must report missing")
	}
}

func TestIndicators_AddRemove(t *testing.T) {
	r := newTestRenderer(t, &stubSource{data: chartData(24)})

	before := len(r.Indicators())
	r.AddIndicator("rsi", "#ffffff")
	if len(r.Indicators()) != before+1 {
		t.Fatalf("indicator not added")
	}
	// Re-adding the same name updates in place.
	r.AddIndicator("rsi", "#000000")
	if len(r.Indicators()) != before+1 {
		t.Fatalf("duplicate indicator name created a second overlay")
	}
	r.RemoveIndicator("rsi")
	if len(r.Indicators()) != before {
		t.Fatalf("indicator not removed")
	}
}

func TestDestroy_ReleasesLoop(t *testing.T) {
	source := &stubSource{data: chartData(24)}
	r, err := New(source, Config{Width: 100, Height: 100, FPS: 120}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	r.StartLoop(context.Background())
	time.Sleep(30 * time.Millisecond)
	r.Destroy()

	if !r.Destroyed() {
		t.Fatalf("destroyed flag unset")
	}
	if err := r.Render(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("render after destroy = %v, want ErrDestroyed", err)
	}
	if err := r.LoadData(context.Background(), market.WindowDay); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("load after destroy = %v, want ErrDestroyed", err)
	}
	if _, err := r.ExportImage(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("export after destroy = %v, want ErrDestroyed", err)
	}
	// Second destroy is a no-op.
	r.Destroy()
}

func TestCandleColoring(t *testing.T) {
	up := market.Candle{Open: 1, Close: 2}
	down := market.Candle{Open: 2, Close: 1}
	flat := market.Candle{Open: 2, Close: 2}

	if !up.Bullish() {
		t.Fatalf("close above open must be bullish")
	}
	if down.Bullish() {
		t.Fatalf("close below open must be bearish")
	}
	if flat.Bullish() {
		t.Fatalf("equal close falls into the down branch")
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{0.00000123, "$0.00000123"},
		{0.004567, "$0.004567"},
		{0.4567, "$0.4567"},
		{1234.5, "$1,234.50"},
		{1234567.89, "$1,234,567.89"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.in); got != tc.want {
			t.Fatalf("FormatPrice(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{42, "42.00"},
		{1500, "1.50K"},
		{2_500_000, "2.50M"},
		{3_200_000_000, "3.20B"},
	}
	for _, tc := range cases {
		if got := FormatCompact(tc.in); got != tc.want {
			t.Fatalf("FormatCompact(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
