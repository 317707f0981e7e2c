package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/farmcart/farmcart-backend/api/responses"
	"github.com/farmcart/farmcart-backend/pkg/config"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/logger"
)

// Pinger is anything readiness can probe.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FarmCart-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the backing stores; any failing probe flips readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, probes ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FarmCart-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		for _, probe := range probes {
			if probe == nil {
				continue
			}
			if err := probe.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, "readiness probe failed"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
