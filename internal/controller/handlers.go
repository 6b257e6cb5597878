package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/store"
)

// Handler handles HTTP requests for the repository management API.
type Handler struct {
	Registry  *Registry
	Orch      *Orchestrator
	Scheduler *Scheduler
	Logger    *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(registry *Registry, orch *Orchestrator, scheduler *Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		Registry:  registry,
		Orch:      orch,
		Scheduler: scheduler,
		Logger:    logger,
	}
}

// repositoryRequest is the write payload: a config plus the raw credential,
// which is stored encrypted and never echoed back.
type repositoryRequest struct {
	api.RepositoryConfig
	Secret string `json:"secret,omitempty"`
}

// repositoryStatus is the read model for GET .../status.
type repositoryStatus struct {
	Config  *api.RepositoryConfig `json:"config"`
	Catalog []api.CatalogEntry    `json:"catalog"`
}

// RegisterRepository handles POST /api/v1/repositories
func (h *Handler) RegisterRepository(w http.ResponseWriter, r *http.Request) {
	var req repositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg := req.RepositoryConfig
	if err := h.Registry.Create(r.Context(), &cfg, req.Secret); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Repository registered successfully",
		Data:    cfg,
	})
}

// ListRepositories handles GET /api/v1/repositories
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Registry.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(api.APIResponse{
		Data: configs,
	})
}

// GetRepository handles GET /api/v1/repositories/{id}
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(api.APIResponse{
		Data: cfg,
	})
}

// UpdateRepository handles PUT /api/v1/repositories/{id}
func (h *Handler) UpdateRepository(w http.ResponseWriter, r *http.Request) {
	var req repositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg := req.RepositoryConfig
	cfg.ID = chi.URLParam(r, "id")
	if err := h.Registry.Update(r.Context(), &cfg, req.Secret); err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Scheduler.RefreshCronJob(&cfg); err != nil {
		h.Logger.Warn("Failed to refresh repository cron job", "config_id", cfg.ID, "error", err)
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Repository updated successfully",
		Data:    cfg,
	})
}

// DeleteRepository handles DELETE /api/v1/repositories/{id}
// The working copy is removed before the record; a running sync blocks
// deletion with 409 rather than racing the directory removal.
func (h *Handler) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if _, err := h.Orch.Cleanup(r.Context(), cfg); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Scheduler.RemoveCronJob(id)
	if err := h.Registry.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Repository deleted successfully",
	})
}

// ActivateRepository handles POST /api/v1/repositories/{id}/activate
// Activation kicks off the initial import in the background.
func (h *Handler) ActivateRepository(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if err := h.Registry.SetActive(r.Context(), id, true); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	cfg.Active = true
	if err := h.Scheduler.RefreshCronJob(cfg); err != nil {
		h.Logger.Warn("Failed to schedule repository cron job", "config_id", id, "error", err)
	}
	h.Scheduler.KickInitialImport(cfg)

	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Repository activated; initial import started",
		Data:    cfg,
	})
}

// DeactivateRepository handles POST /api/v1/repositories/{id}/deactivate
func (h *Handler) DeactivateRepository(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Registry.SetActive(r.Context(), id, false); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	h.Scheduler.RemoveCronJob(id)

	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Repository deactivated",
	})
}

// SyncRepository handles POST /api/v1/repositories/{id}/sync
// Runs a force sync synchronously and returns its report.
func (h *Handler) SyncRepository(w http.ResponseWriter, r *http.Request) {
	report, err := h.Scheduler.RunNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	message := "Repository synchronized"
	if !report.Success() {
		message = "Repository sync completed with errors"
	}
	json.NewEncoder(w).Encode(api.APIResponse{
		Message: message,
		Data:    report,
	})
}

// RepositoryStatus handles GET /api/v1/repositories/{id}/status
func (h *Handler) RepositoryStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	catalog, err := h.Registry.ListCatalogRefs(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Data: repositoryStatus{Config: cfg, Catalog: catalog},
	})
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrConfigNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
