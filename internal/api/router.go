package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/LeventeLantos/health-assistant/internal/metrics"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()
	admin := requireAdminKey(h.adminKey)

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /v1/webhook", h.VerifyWebhook)
	mux.HandleFunc("POST /v1/webhook", h.ReceiveWebhook)

	mux.Handle("POST /v1/broadcasts", admin(h.CreateBroadcast))
	mux.Handle("GET /v1/broadcasts", admin(h.ListBroadcasts))
	mux.Handle("GET /v1/broadcasts/{id}", admin(h.GetBroadcast))
	mux.Handle("POST /v1/broadcasts/{id}/retry", admin(h.RetryBroadcast))
	mux.Handle("POST /v1/broadcasts/{id}/cancel", admin(h.CancelBroadcast))

	mux.Handle("POST /v1/alerts/outbreak", admin(h.CreateOutbreakAlert))
	mux.Handle("POST /v1/alerts/emergency", admin(h.CreateEmergencyAlert))
	mux.Handle("POST /v1/alerts/advisory", admin(h.CreateAdvisory))

	mux.Handle("GET /v1/failures", admin(h.ListFailures))

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.Handle("POST /v1/scheduler/start", admin(h.SchedulerStart))
	mux.Handle("POST /v1/scheduler/stop", admin(h.SchedulerStop))

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("health-assistant"))
	})

	return mux
}

// requireAdminKey guards operator routes with the X-Admin-Key header. An
// empty key leaves them open.
func requireAdminKey(key string) func(http.HandlerFunc) http.Handler {
	return func(next http.HandlerFunc) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next(w, r)
		})
	}
}
