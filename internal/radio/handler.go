package radio

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hls-radio/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/MP2T"
)

// Handler exposes the streaming and station-control HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics

	// ControlLimit caps control requests per client IP per minute. Zero disables it.
	ControlLimit int
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m, ControlLimit: 30}
}

// Routes registers all endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/stream/{brand}", func(r chi.Router) {
		r.Get("/master.m3u8", h.GetMasterPlaylist)
		r.Get("/stream.m3u8", h.GetPlaylist)
		r.Get("/segments/{file}", h.GetSegment)
		r.Get("/now-playing", h.GetNowPlaying)
	})
	r.Group(func(r chi.Router) {
		if h.ControlLimit > 0 {
			r.Use(httprate.Limit(h.ControlLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Retry-After", "60")
					writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limit_exceeded"})
				})))
		}
		r.Post("/api/debug/stream/{brand}", h.StartStation)
		r.Delete("/api/debug/stream/{brand}", h.StopStation)
		r.Get("/api/debug/streams", h.ListStations)
	})
}

// GetMasterPlaylist handles GET /api/stream/{brand}/master.m3u8.
func (h *Handler) GetMasterPlaylist(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	m3u8, ok := h.svc.MasterPlaylist(brand)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writePlaylist(w, m3u8)
}

// GetPlaylist handles GET /api/stream/{brand}/stream.m3u8?bitrate=N.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")

	var bitrate int64
	if q := r.URL.Query().Get("bitrate"); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil || n <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		bitrate = n
	}

	m3u8, ok := h.svc.Playlist(brand, bitrate)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writePlaylist(w, m3u8)
}

// GetSegment handles GET /api/stream/{brand}/segments/{brand}_{bitrate}_{seq}.ts.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	file := chi.URLParam(r, "file")

	seg, ok := h.svc.Segment(brand, file)
	if !ok {
		h.log.Debug("segment not found", slog.String("brand", brand), slog.String("file", file))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", segmentContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(seg.Data)))
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write(seg.Data)
	h.metrics.IncSegmentsServed()
}

// GetNowPlaying handles GET /api/stream/{brand}/now-playing.
func (h *Handler) GetNowPlaying(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	recent, ok := h.svc.NowPlaying(brand)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if recent == nil {
		recent = []Metadata{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"brand": NormalizeBrand(brand), "recent": recent})
}

// StartStation handles POST /api/debug/stream/{brand}.
func (h *Handler) StartStation(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")

	info, err := h.svc.StartStation(r.Context(), brand)
	if err != nil {
		switch {
		case errors.Is(err, ErrConfig):
			h.log.Info("station rejected", slog.String("brand", brand), slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.log.Error("start station failed", slog.String("brand", brand), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// StopStation handles DELETE /api/debug/stream/{brand}.
func (h *Handler) StopStation(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	if !h.svc.StopStation(brand) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListStations handles GET /api/debug/streams.
func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stations())
}

func writePlaylist(w http.ResponseWriter, m3u8 string) {
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, m3u8)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
