package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/exposure/internal/engine"
	"github.com/hyperengineering/exposure/internal/ledger"
	"github.com/hyperengineering/exposure/internal/syncrun"
	"github.com/hyperengineering/exposure/internal/types"
)

// Runner triggers synchronization runs. Satisfied by the orchestrator.
type Runner interface {
	Run(ctx context.Context, category types.Category) (*types.ExposureResult, error)
}

// Handler implements the status API handlers
type Handler struct {
	ledger  ledger.Ledger
	engine  engine.Client
	runner  Runner
	status  *syncrun.Registry
	version string
}

// NewHandler creates a new Handler.
func NewHandler(l ledger.Ledger, e engine.Client, runner Runner, status *syncrun.Registry, version string) *Handler {
	return &Handler{
		ledger:  l,
		engine:  e,
		runner:  runner,
		status:  status,
		version: version,
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Vendor  string `json:"vendor"`
	Engine  string `json:"engine"`
	Ledger  string `json:"ledger"`
}

// Health returns the process, ledger and engine health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: h.version,
		Vendor:  h.engine.Vendor(),
		Engine:  "ok",
		Ledger:  "ok",
	}

	if err := h.ledger.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Ledger = err.Error()
	}
	health, err := h.engine.ServiceHealth(r.Context())
	switch {
	case err != nil:
		resp.Status = "degraded"
		resp.Engine = err.Error()
	case !health.Usable():
		resp.Status = "degraded"
		resp.Engine = health.Status.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Status returns the per-category run states.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Snapshot())
}

// Result returns the last normalized exposure result for a category.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	cat, err := types.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := h.status.Result(cat)
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "No completed run for category")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TriggerSync starts a run for a category in the background. Concurrent
// triggers for the same category coalesce into one run.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	cat, err := types.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	go func() {
		if _, err := h.runner.Run(context.WithoutCancel(r.Context()), cat); err != nil {
			slog.Error("triggered run failed", "category", string(cat), "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"category": string(cat),
		"state":    "triggered",
	})
}

// TemporaryKeys returns the device's own keys for user-initiated upload.
// Key payloads pass through unmodified.
func (h *Handler) TemporaryKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.engine.TemporaryKeys(r.Context())
	if err != nil {
		mapped := engine.MapBridgeError(err)
		slog.Error("temporary key export failed", "error", mapped)
		MapError(w, r, mapped)
		return
	}
	if keys == nil {
		keys = []types.TemporaryKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// EngineHealth reports the vendor framework availability.
func (h *Handler) EngineHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.engine.ServiceHealth(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vendor": h.engine.Vendor(),
		"status": health.Status.String(),
		"code":   health.Code,
		"usable": health.Usable(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
