package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TokenPulse/dashboard_core/internal/app/cache"
	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/services/orchestrator"
	"github.com/TokenPulse/dashboard_core/internal/chart/render"
	"github.com/TokenPulse/dashboard_core/pkg/retry"
)

type hubProvider struct{}

func (hubProvider) CurrentSnapshot(ctx context.Context) (market.MarketSnapshot, error) {
	return market.MarketSnapshot{
		Price: 2, Volume24h: 100_000, MarketCap: 1_000_000, Liquidity: 50_000,
		Buys24h: 100, Sells24h: 80, PairID: "0xhub", FetchedAt: time.Now(),
	}, nil
}

func (hubProvider) HistoricalSeries(ctx context.Context, window market.Window) ([]market.SeriesPoint, error) {
	base := time.Now().Add(-24 * time.Hour)
	points := make([]market.SeriesPoint, 24)
	for i := range points {
		points[i] = market.SeriesPoint{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Price:     2, Volume: 100, Holders: 500,
		}
	}
	return points, nil
}

func (hubProvider) HolderSummary(ctx context.Context) (market.HolderSummary, error) {
	return market.HolderSummary{TotalHolders: 5, TopHolders: []market.Holder{
		{Address: "0xa", Balance: 100, Percent: 2},
	}}, nil
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	svc := orchestrator.New(hubProvider{}, cache.NewMemory(),
		retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, time.Minute, nil)
	refresher := orchestrator.NewRefresher(svc, "@every 1h", market.WindowDay, nil)
	if err := refresher.Start(context.Background()); err != nil {
		t.Fatalf("start refresher: %v", err)
	}
	t.Cleanup(func() { _ = refresher.Stop(context.Background()) })

	hub := NewHub(refresher, func() (*render.Renderer, error) {
		return render.New(svc, render.Config{Width: 200, Height: 120}, nil)
	}, nil)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(func() { _ = hub.Stop(context.Background()) })

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, srv
}

// readFrame skips broadcast frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) Outbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var frame Outbound
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read %s frame: %v", wantType, err)
		}
		if frame.Type == wantType {
			return frame
		}
	}
}

func TestHub_PointerFrameReturnsImage(t *testing.T) {
	_, srv := newTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn, "status")

	if err := conn.WriteJSON(Inbound{Action: "load", Window: "24h"}); err != nil {
		t.Fatalf("write load: %v", err)
	}
	frame := readFrame(t, conn, "frame")
	if !strings.HasPrefix(frame.Image, "data:image/png;base64,") {
		t.Fatalf("frame image is not a data URI: %.40s", frame.Image)
	}

	if err := conn.WriteJSON(Inbound{Action: "pointer", Pointer: &render.PointerEvent{
		Kind: render.PointerWheel, X: 100, Y: 60, DeltaY: -1,
	}}); err != nil {
		t.Fatalf("write pointer: %v", err)
	}
	readFrame(t, conn, "frame")
}

func TestHub_UnknownActionReportsError(t *testing.T) {
	_, srv := newTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn, "status")

	if err := conn.WriteJSON(Inbound{Action: "teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrame(t, conn, "error")
}

func TestHub_ClientCountTracksConnections(t *testing.T) {
	hub, srv := newTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("client count = %d after close, want 0", hub.ClientCount())
	}
}
