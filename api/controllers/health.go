package controllers

import (
	"net/http"

	"github.com/angelmondragon/affirm-gateway/api/responses"
	"github.com/angelmondragon/affirm-gateway/pkg/config"
	"github.com/angelmondragon/affirm-gateway/pkg/db"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
	"github.com/angelmondragon/affirm-gateway/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Affirm-Gateway-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Affirm-Gateway-Env", cfg.App.Env)

		failures := map[string]string{}
		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				failures["database"] = err.Error()
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				failures["redis"] = err.Error()
			}
		}
		if len(failures) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failures))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
