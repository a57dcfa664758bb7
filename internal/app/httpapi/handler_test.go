package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TokenPulse/dashboard_core/internal/app/cache"
	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/services/orchestrator"
	"github.com/TokenPulse/dashboard_core/internal/chart/render"
	"github.com/TokenPulse/dashboard_core/pkg/retry"
)

type stubProvider struct{}

func (stubProvider) CurrentSnapshot(ctx context.Context) (market.MarketSnapshot, error) {
	return market.MarketSnapshot{
		Price:          2,
		PriceChange24h: 1.5,
		Volume24h:      100_000,
		MarketCap:      1_000_000,
		Liquidity:      250_000,
		Buys24h:        300,
		Sells24h:       200,
		PairID:         "0xtest",
		FetchedAt:      time.Now(),
	}, nil
}

func (stubProvider) HistoricalSeries(ctx context.Context, window market.Window) ([]market.SeriesPoint, error) {
	base := time.Now().Add(-24 * time.Hour)
	points := make([]market.SeriesPoint, 24)
	for i := range points {
		points[i] = market.SeriesPoint{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Price:     2 + float64(i)*0.01,
			Volume:    5000,
			Holders:   1000 + i,
		}
	}
	return points, nil
}

func (stubProvider) HolderSummary(ctx context.Context) (market.HolderSummary, error) {
	return market.HolderSummary{
		TotalHolders: 30,
		TopHolders:   []market.Holder{{Address: "0xwhale", Balance: 40_000, Percent: 8}},
	}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := orchestrator.New(stubProvider{}, cache.NewMemory(),
		retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, 30*time.Second, nil)
	refresher := orchestrator.NewRefresher(svc, "@every 1h", market.WindowDay, nil)

	sessions := func() (*render.Renderer, error) {
		return render.New(svc, render.Config{Width: 320, Height: 200}, nil)
	}
	shared, err := sessions()
	if err != nil {
		t.Fatalf("shared renderer: %v", err)
	}
	t.Cleanup(shared.Destroy)

	srv := httptest.NewServer(NewHandler(Deps{
		Orchestrator: svc,
		Refresher:    refresher,
		Renderer:     shared,
		Sessions:     sessions,
		RateLimit:    1000,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string, dst interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var stats market.TokenStats
	resp := getJSON(t, srv, "/api/stats", &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if stats.TotalSupply != 500_000 {
		t.Fatalf("total supply = %v, want 500000", stats.TotalSupply)
	}
	if stats.CirculatingSupply != 475_000 {
		t.Fatalf("circulating = %v, want 475000", stats.CirculatingSupply)
	}
}

func TestHoldersEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var dataset orchestrator.HoldersDataset
	resp := getJSON(t, srv, "/api/holders", &dataset)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(dataset.Holders) != 30 {
		t.Fatalf("holders = %d, want padded to 30", len(dataset.Holders))
	}
	if dataset.WhaleCount != 1 {
		t.Fatalf("whale count = %d", dataset.WhaleCount)
	}
}

func TestChartEndpoint_WindowValidation(t *testing.T) {
	srv := newTestServer(t)

	var data market.ChartData
	resp := getJSON(t, srv, "/api/chart?window=7d", &data)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if data.Window != market.WindowWeek || len(data.Candles) == 0 {
		t.Fatalf("unexpected chart payload: window %s, %d candles", data.Window, len(data.Candles))
	}

	var apiErr map[string]string
	resp = getJSON(t, srv, "/api/chart?window=2h", &apiErr)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid window status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(apiErr["error"], "unsupported window") {
		t.Fatalf("unhelpful validation error: %q", apiErr["error"])
	}
}

func TestChartRenderEndpoint_ServesPNG(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/chart/render?window=24h&type=line&width=400&height=240")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %s", ct)
	}
	magic := make([]byte, 8)
	if _, err := io.ReadFull(resp.Body, magic); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(magic, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}) {
		t.Fatalf("body is not a PNG: % x", magic)
	}
}

func TestChartRenderEndpoint_RejectsBadParams(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/api/chart/render?type=pie",
		"/api/chart/render?width=100",
		"/api/chart/render?width=0&height=100",
		"/api/chart/render?width=100&height=9999",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestAnnotationsCRUD(t *testing.T) {
	srv := newTestServer(t)

	payload := `{"type":"line","x1":10,"y1":10,"x2":60,"y2":40}`
	resp, err := http.Post(srv.URL+"/api/annotations", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var created render.Annotation
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || created.ID == "" {
		t.Fatalf("create: status %d id %q", resp.StatusCode, created.ID)
	}

	var listed []render.Annotation
	getJSON(t, srv, "/api/annotations", &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("list after create: %+v", listed)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/annotations/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE again: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double delete status = %d, want 404", resp.StatusCode)
	}

	// Unknown annotation types are rejected.
	resp, err = http.Post(srv.URL+"/api/annotations", "application/json",
		strings.NewReader(`{"type":"circle"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var health map[string]interface{}
	resp := getJSON(t, srv, "/healthz", &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if health["status"] == "" {
		t.Fatalf("health payload missing status: %v", health)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}
