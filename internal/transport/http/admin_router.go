package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"licensing/internal/adminauth"
	"licensing/internal/domain"
	"licensing/internal/dto"
	"licensing/internal/netutil"
	"licensing/internal/observability/metrics"
	obsmw "licensing/internal/observability/middleware"
	"licensing/internal/service"
	"licensing/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func mountAdminRoutes(r chi.Router, admin *service.AdminService, notifications *service.NotificationService, checker *adminauth.Checker) {
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(checker.Middleware)

		ar.Get("/keys", handleListKeys(admin))
		ar.Post("/keys", handleCreateKeys(admin))
		ar.Post("/keys/bulk", handleBulkAction(admin))
		ar.Delete("/keys/{id}", handleDeleteKey(admin))
		ar.Post("/keys/{id}/toggle-lock", handleToggleLock(admin))
		ar.Post("/keys/{id}/extend", handleExtendExpiry(admin))
		ar.Post("/keys/{id}/convert-permanent", handleConvertPermanent(admin))
		ar.Get("/keys/{id}/audit", handleKeyAudit(admin))

		ar.Get("/notifications", handleListNotifications(notifications))
		ar.Post("/notifications", handleCreateNotification(notifications))
		ar.Post("/notifications/{id}/deactivate", handleDeactivateNotification(notifications))
	})
}

func handleListKeys(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ListFilter{
			Search: q.Get("search"),
			Notes:  q.Get("notes"),
			Status: domain.KeyState(q.Get("status")),
			SortBy: q.Get("sort"),
			Order:  q.Get("order"),
		}
		res, err := admin.ListKeys(r.Context(), filter)
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleCreateKeys(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CreateKeysRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := admin.CreateKeys(r.Context(), req, netutil.ClientIP(r))
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		metrics.KeysCreatedTotal.WithLabelValues().Add(float64(res.Created))
		writeJSON(w, http.StatusCreated, res)
	}
}

func handleBulkAction(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.BulkActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := admin.BulkAction(r.Context(), req, netutil.ClientIP(r))
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleDeleteKey(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		if err := admin.DeleteKey(r.Context(), id, netutil.ClientIP(r)); err != nil {
			writeAdminError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleToggleLock(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		key, err := admin.ToggleLock(r.Context(), id, netutil.ClientIP(r))
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, key)
	}
}

func handleExtendExpiry(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req dto.ExtendExpiryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := admin.ExtendExpiry(r.Context(), id, req.ExpiresAt, netutil.ClientIP(r)); err != nil {
			writeAdminError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleConvertPermanent(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		if err := admin.ConvertToPermanent(r.Context(), id, netutil.ClientIP(r)); err != nil {
			writeAdminError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleKeyAudit(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		res, err := admin.AuditForKey(r.Context(), id, limit)
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListNotifications(notifications *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notifs, err := notifications.List(r.Context())
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.ListNotificationsResponse{Notifications: notifs})
	}
}

func handleCreateNotification(notifications *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CreateNotificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		notif, err := notifications.Create(r.Context(), req.Message)
		if err != nil {
			writeAdminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, notif)
	}
}

func handleDeactivateNotification(notifications *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		if err := notifications.Deactivate(r.Context(), id); err != nil {
			writeAdminError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.UUID{}, false
	}
	return id, true
}

func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := obsmw.RequestIDFromContext(r.Context())
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrUnknownAction):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, service.ErrBadCredential):
		status = http.StatusForbidden
		msg = err.Error()
	}
	if status == http.StatusInternalServerError {
		slog.Error("admin request failed", "error", err, "request_id", reqID)
	}
	http.Error(w, msg, status)
}
