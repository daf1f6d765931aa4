// Package health contiene el controller de /readyz.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/gigsync/internal/blob"
	"github.com/dropDatabas3/gigsync/internal/http/helpers"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
)

const probeKey = "_health/probe"

// Response es el cuerpo de /readyz.
type Response struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Driver     string            `json:"driver,omitempty"`
	Components map[string]string `json:"components"`
}

// Controller chequea que el storage responda.
type Controller struct {
	storage blob.Storage
	driver  string
	version string
	timeout time.Duration
}

func NewController(storage blob.Storage, driver, version string) *Controller {
	return &Controller{storage: storage, driver: driver, version: version, timeout: 2 * time.Second}
}

// Readyz maneja GET /readyz: 200 si el storage responde (NotFound incluido), 503 si no.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	resp := Response{Status: "ready", Version: c.version, Driver: c.driver, Components: map[string]string{"storage": "ok"}}
	status := http.StatusOK
	if _, err := c.storage.Get(ctx, probeKey); err != nil && !blob.IsNotFound(err) {
		logger.From(r.Context()).Warn("storage probe failed", logger.Err(err))
		resp.Status = "unavailable"
		resp.Components["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	helpers.WriteJSON(w, status, resp)
}
