// Package httpapi exposes the dashboard's REST surface: derived
// datasets, server-side chart rendering, annotation management, and
// operational endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/metrics"
	"github.com/TokenPulse/dashboard_core/internal/app/services/orchestrator"
	"github.com/TokenPulse/dashboard_core/internal/app/ws"
	"github.com/TokenPulse/dashboard_core/internal/chart/render"
	"github.com/TokenPulse/dashboard_core/internal/middleware"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
	"github.com/TokenPulse/dashboard_core/pkg/retry"
)

// Deps bundles what the handler serves.
type Deps struct {
	Orchestrator *orchestrator.Service
	Refresher    *orchestrator.Refresher
	Renderer     *render.Renderer
	Sessions     ws.RendererFactory
	Hub          *ws.Hub
	Log          *logger.Logger
	RateLimit    int
	CORSOrigins  []string
}

type handler struct {
	orch      *orchestrator.Service
	refresher *orchestrator.Refresher
	renderer  *render.Renderer
	sessions  ws.RendererFactory
	hub       *ws.Hub
	log       *logger.Logger
}

// NewHandler returns the routed dashboard API.
func NewHandler(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		orch:      deps.Orchestrator,
		refresher: deps.Refresher,
		renderer:  deps.Renderer,
		sessions:  deps.Sessions,
		hub:       deps.Hub,
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(deps.CORSOrigins))
	r.Use(middleware.RequestLogger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.NewRateLimiter(deps.RateLimit, 2*deps.RateLimit, log).Handler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/holders", h.holders)
		r.Get("/transactions", h.transactions)
		r.Get("/pool", h.pool)
		r.Get("/stats", h.stats)
		r.Get("/chart", h.chart)
		r.Get("/chart/render", h.chartRender)
		r.Get("/chart/export", h.chartExport)
		r.Post("/refresh", h.refresh)

		r.Get("/annotations", h.listAnnotations)
		r.Post("/annotations", h.createAnnotation)
		r.Delete("/annotations/{id}", h.deleteAnnotation)
	})

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWebSocket)
	}
	return r
}

func (h *handler) holders(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.orch.Holders(r.Context())
	if err != nil {
		writeError(w, datasetStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *handler) transactions(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.orch.Transactions(r.Context())
	if err != nil {
		writeError(w, datasetStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *handler) pool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.orch.Pool(r.Context())
	if err != nil {
		writeError(w, datasetStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.Stats(r.Context())
	if err != nil {
		writeError(w, datasetStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) chart(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := h.orch.ChartData(r.Context(), window)
	if err != nil {
		writeError(w, datasetStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// chartRender draws a one-shot chart and streams it back as PNG.
func (h *handler) chartRender(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.sessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer session.Destroy()

	if patch, err := renderPatch(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if err := session.UpdateConfig(patch); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if width, height, ok, err := parseSize(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if ok {
		if err := session.Resize(width, height, 0); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := session.LoadData(r.Context(), window); err != nil {
		writeError(w, datasetStatus(err), err)
		return
	}
	image, err := session.PNG()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(image)))
	_, _ = w.Write(image)
}

// chartExport returns the shared session's surface as a data URI.
func (h *handler) chartExport(w http.ResponseWriter, r *http.Request) {
	uri, err := h.renderer.ExportImage()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image": uri})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.refresher.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

func (h *handler) listAnnotations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.renderer.Annotations())
}

func (h *handler) createAnnotation(w http.ResponseWriter, r *http.Request) {
	var payload render.Annotation
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := h.renderer.AddAnnotation(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload.ID = id
	writeJSON(w, http.StatusCreated, payload)
}

func (h *handler) deleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.renderer.RemoveAnnotation(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("annotation %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status := h.refresher.Status()
	cacheStats, err := h.orch.CacheStats(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("cache stats unavailable")
	}

	code := http.StatusOK
	if status == orchestrator.StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"cacheKeys": cacheStats.Size,
		"clients":   clientCount(h.hub),
		"checkedAt": time.Now().UTC(),
	})
}

func clientCount(hub *ws.Hub) int {
	if hub == nil {
		return 0
	}
	return hub.ClientCount()
}

func parseWindow(r *http.Request) (market.Window, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return market.WindowDay, nil
	}
	window := market.Window(raw)
	if !window.Valid() {
		return "", fmt.Errorf("unsupported window %q (want 24h, 7d, 30d, or 90d)", raw)
	}
	return window, nil
}

func renderPatch(r *http.Request) (render.ConfigPatch, error) {
	var patch render.ConfigPatch
	if raw := r.URL.Query().Get("type"); raw != "" {
		chartType := render.ChartType(raw)
		switch chartType {
		case render.TypeLine, render.TypeArea, render.TypeCandlestick, render.TypeVolume, render.TypeHeatmap:
			patch.Type = &chartType
		default:
			return patch, fmt.Errorf("unsupported chart type %q", raw)
		}
	}
	return patch, nil
}

func parseSize(r *http.Request) (width, height int, ok bool, err error) {
	rawW, rawH := r.URL.Query().Get("width"), r.URL.Query().Get("height")
	if rawW == "" && rawH == "" {
		return 0, 0, false, nil
	}
	if rawW == "" || rawH == "" {
		return 0, 0, false, fmt.Errorf("width and height must be set together")
	}
	width, err = strconv.Atoi(rawW)
	if err != nil || width <= 0 || width > 4096 {
		return 0, 0, false, fmt.Errorf("invalid width %q", rawW)
	}
	height, err = strconv.Atoi(rawH)
	if err != nil || height <= 0 || height > 4096 {
		return 0, 0, false, fmt.Errorf("invalid height %q", rawH)
	}
	return width, height, true, nil
}

// datasetStatus maps orchestrator failures onto HTTP statuses: upstream
// exhaustion is a gateway problem, integrity failures are server bugs.
func datasetStatus(err error) int {
	switch {
	case errors.Is(err, retry.ErrExhausted), errors.Is(err, market.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, market.ErrInvalidStats), errors.Is(err, market.ErrInvalidDataset):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
