package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/models"
	"github.com/semlens/semlens-engine/pkg/services"
)

// JoinPathResponse carries an ordered join path between two tables.
type JoinPathResponse struct {
	Source string            `json:"source"`
	Target string            `json:"target"`
	Steps  []models.JoinStep `json:"steps"`
}

// ResolverHandler exposes the join path and concept resolvers over HTTP.
type ResolverHandler struct {
	resolver services.ResolverService
	logger   *zap.Logger
}

// NewResolverHandler creates a new ResolverHandler.
func NewResolverHandler(resolver services.ResolverService, logger *zap.Logger) *ResolverHandler {
	return &ResolverHandler{resolver: resolver, logger: logger}
}

// RegisterRoutes registers the resolver routes on the given mux.
func (h *ResolverHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/join-path", h.ResolveJoinPath)
	mux.HandleFunc("GET /v1/concept", h.ResolveConcept)
	mux.HandleFunc("POST /v1/rebuild", h.Rebuild)
}

// ResolveJoinPath handles GET /v1/join-path?source={table}&target={table}.
func (h *ResolverHandler) ResolveJoinPath(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_parameter", "source and target query parameters are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	steps, err := h.resolver.ResolveJoinPath(r.Context(), source, target)
	if err != nil {
		status, code := resolutionStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Join path resolution failed",
				zap.String("source", source),
				zap.String("target", target),
				zap.Error(err))
		}
		if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	data := JoinPathResponse{Source: source, Target: target, Steps: steps}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ResolveConcept handles GET /v1/concept?intent={name}&field={name}&table={name}.
// The table parameter is optional and scopes primary-field selection.
func (h *ResolverHandler) ResolveConcept(w http.ResponseWriter, r *http.Request) {
	intent := r.URL.Query().Get("intent")
	field := r.URL.Query().Get("field")
	tableScope := r.URL.Query().Get("table")
	if intent == "" || field == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_parameter", "intent and field query parameters are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	resolution, err := h.resolver.ResolveConcept(r.Context(), intent, field, tableScope)
	if err != nil {
		status, code := resolutionStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Concept resolution failed",
				zap.String("intent", intent),
				zap.String("field", field),
				zap.Error(err))
		}
		if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resolution}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Rebuild handles POST /v1/rebuild. It reloads both graphs from the
// catalog and swaps the new snapshot in; in-flight queries keep reading
// the previous snapshot.
func (h *ResolverHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Rebuild(r.Context()); err != nil {
		h.logger.Error("Graph rebuild failed", zap.Error(err))
		if werr := ErrorResponse(w, http.StatusInternalServerError, "rebuild_failed", "Failed to rebuild graphs from catalog"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "graphs rebuilt"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
