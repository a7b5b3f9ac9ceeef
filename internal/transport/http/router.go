package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"licensing/internal/adminauth"
	"licensing/internal/domain"
	"licensing/internal/dto"
	"licensing/internal/netutil"
	"licensing/internal/observability/metrics"
	obsmw "licensing/internal/observability/middleware"
	"licensing/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	RatePerMinute  int
	RequestTimeout time.Duration
	CORSOrigins    string
}

func NewRouter(activation *service.ActivationService, admin *service.AdminService, notifications *service.NotificationService, checker *adminauth.Checker, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)

	if cfg.CORSOrigins != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Public protocol endpoints, rate limited by IP.
	r.Group(func(pub chi.Router) {
		if cfg.RatePerMinute > 0 {
			pub.Use(httprate.LimitByIP(cfg.RatePerMinute, 1*time.Minute))
		}
		pub.Post("/api/activate", handleActivate(activation))
		pub.Post("/api/heartbeat", handleHeartbeat(activation))
		pub.Get("/api/notification", handleNotificationCheck(notifications))
	})

	mountAdminRoutes(r, admin, notifications, checker)

	return r
}

func handleActivate(activation *service.ActivationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())
		var req dto.ActivateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			metrics.ActivationsTotal.WithLabelValues("failure").Inc()
			writeJSON(w, http.StatusBadRequest, dto.ActivateResponse{Status: "error", Message: "malformed request body"})
			return
		}
		req.ProgramName = netutil.TruncateProgramName(req.ProgramName)

		res, err := activation.Activate(r.Context(), req, netutil.ClientIP(r))
		if err != nil {
			status, msg := activateErrorStatus(err)
			metrics.ActivationsTotal.WithLabelValues("failure").Inc()
			slog.Warn("activation denied", "error", err, "request_id", reqID)
			writeJSON(w, status, dto.ActivateResponse{Status: "error", Message: msg})
			return
		}
		metrics.ActivationsTotal.WithLabelValues("success").Inc()
		slog.Info("activation accepted", "request_id", reqID)
		writeJSON(w, http.StatusOK, res)
	}
}

func handleHeartbeat(activation *service.ActivationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())
		var req dto.HeartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			metrics.HeartbeatsTotal.WithLabelValues("failure").Inc()
			writeJSON(w, http.StatusBadRequest, dto.HeartbeatResponse{Status: "error", Message: "malformed request body"})
			return
		}
		req.ProgramName = netutil.TruncateProgramName(req.ProgramName)

		res, err := activation.Heartbeat(r.Context(), req, netutil.ClientIP(r))
		if err != nil {
			status, msg := activateErrorStatus(err)
			metrics.HeartbeatsTotal.WithLabelValues("failure").Inc()
			slog.Warn("heartbeat rejected", "error", err, "request_id", reqID)
			writeJSON(w, status, dto.HeartbeatResponse{Status: "error", Message: msg})
			return
		}
		metrics.HeartbeatsTotal.WithLabelValues(res.Status).Inc()
		writeJSON(w, http.StatusOK, res)
	}
}

func handleNotificationCheck(notifications *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := notifications.Active(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.NotificationCheckResponse{})
			return
		}
		var msg *string
		if active != nil {
			msg = &active.Message
		}
		writeJSON(w, http.StatusOK, dto.NotificationCheckResponse{Notification: msg})
	}
}

// activateErrorStatus maps protocol denials to their HTTP codes.
// Infrastructure failures return a generic 500 without internal detail.
func activateErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrKeyNotFound):
		return http.StatusNotFound, "invalid key"
	case errors.Is(err, domain.ErrKeyLocked):
		return http.StatusForbidden, "key locked"
	case errors.Is(err, domain.ErrKeyExpired):
		return http.StatusGone, "key expired"
	case errors.Is(err, domain.ErrDeviceConflict):
		return http.StatusConflict, "key in use on another device"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
