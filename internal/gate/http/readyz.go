package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/pkg/authsdk"
	"github.com/aussiebroadwan/rostergate/pkg/httpx"
)

const readyTimeout = 2 * time.Second

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe endpoint returning service health status and checks for critical dependencies
//	@Description	The user directory must answer. A missing redis only degrades rate limiting to the local file.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store, shared Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := &authsdk.HealthChecks{
			Database:  "ok",
			RateLimit: "file",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		// Auth paths fail closed without the directory
		if err := st.Ping(ctx); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if shared != nil {
			if err := shared.Ping(ctx); err != nil {
				checks.RateLimit = "degraded"
			} else {
				checks.RateLimit = "redis"
			}
		}

		httpx.WriteJSON(w, statusCode, authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
