package commands

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guido-cesarano/tripsync/pkg/offline"
)

// statusResponse is the JSON body of GET /v1/status.
type statusResponse struct {
	Status           string     `json:"status"`
	CanGoOnline      bool       `json:"can_go_online"`
	OfflineMode      bool       `json:"offline_mode"`
	LastOnlineAt     *time.Time `json:"last_online_at"`
	StalenessSeconds *float64   `json:"staleness_seconds"`
	Stale            bool       `json:"stale"`
	QueueDepth       int        `json:"queue_depth"`
}

type offlineModeRequest struct {
	Enabled bool `json:"enabled"`
}

// newRouter builds the control/status API. cacheMaxAge feeds the "stale"
// field: data is reported stale when the device has been off the network
// longer than that, or was never seen online.
func newRouter(coord *offline.Coordinator, cacheMaxAge time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			resp := statusResponse{
				Status:      coord.Status().String(),
				CanGoOnline: coord.CanGoOnline(),
				OfflineMode: coord.IsOfflineMode(),
				Stale:       true,
				QueueDepth:  coord.Queue().Len(),
			}
			if t, ok := coord.LastOnlineAt(); ok {
				resp.LastOnlineAt = &t
			}
			if d, ok := coord.Staleness(); ok {
				secs := d.Seconds()
				resp.StalenessSeconds = &secs
				resp.Stale = d > cacheMaxAge
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Put("/offline-mode", func(w http.ResponseWriter, req *http.Request) {
			var body offlineModeRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := coord.SetOfflineMode(req.Context(), body.Enabled); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"offline_mode": coord.IsOfflineMode()})
		})

		r.Post("/drain", func(w http.ResponseWriter, _ *http.Request) {
			// Best effort: a no-op while the gate is closed.
			coord.Queue().ScheduleDrain(true)
			writeJSON(w, http.StatusAccepted, map[string]any{
				"scheduled":   coord.CanGoOnline(),
				"queue_depth": coord.Queue().Len(),
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
