// Package v1 provides the control API handlers of the update agent.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stacklok/toolhive-update-agent/internal/api/common"
	"github.com/stacklok/toolhive-update-agent/internal/lifecycle"
	"github.com/stacklok/toolhive-update-agent/internal/requests"
	"github.com/stacklok/toolhive-update-agent/internal/status"
	"github.com/stacklok/toolhive-update-agent/internal/versions"
)

// StatusProvider returns the current sync status
type StatusProvider interface {
	GetStatus() *status.SyncStatus
}

// LifecycleController reads and changes the agent's lifecycle state
type LifecycleController interface {
	State() lifecycle.State
	Set(state lifecycle.State)
}

// ReadinessFunc reports whether the agent is ready to accept requests
type ReadinessFunc func(ctx context.Context) error

// RequestResponse is returned when a request has been dispatched
type RequestResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LifecycleRequest is the body of PUT /v1/lifecycle
type LifecycleRequest struct {
	State string `json:"state"`
}

// LifecycleResponse is returned by GET /v1/lifecycle
type LifecycleResponse struct {
	State string `json:"state"`
}

// Routes holds the handlers' collaborators
type Routes struct {
	dispatcher requests.Dispatcher
	lifecycle  LifecycleController
	status     StatusProvider
}

// NewRoutes creates a new Routes instance
func NewRoutes(dispatcher requests.Dispatcher, lc LifecycleController, sp StatusProvider) *Routes {
	return &Routes{
		dispatcher: dispatcher,
		lifecycle:  lc,
		status:     sp,
	}
}

// Router creates the /v1 router
func Router(dispatcher requests.Dispatcher, lc LifecycleController, sp StatusProvider) http.Handler {
	routes := NewRoutes(dispatcher, lc, sp)

	r := chi.NewRouter()
	r.Post("/requests/{name}", routes.dispatchRequest)
	r.Get("/lifecycle", routes.getLifecycle)
	r.Put("/lifecycle", routes.setLifecycle)
	r.Get("/status", routes.getStatus)

	return r
}

// dispatchRequest handles POST /v1/requests/{name}
func (rr *Routes) dispatchRequest(w http.ResponseWriter, r *http.Request) {
	name, err := common.GetRequestName(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rr.dispatcher.Dispatch(name); err != nil {
		if errors.Is(err, requests.ErrInvalidName) {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, requests.ErrUnknownName) {
			common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
			return
		}
		slog.Error("Failed to dispatch request", "request", name, "error", err)
		common.WriteErrorResponse(w, "Failed to dispatch request", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	slog.Info("Request received", "request", name, "id", id)
	common.WriteJSONResponse(w, RequestResponse{ID: id, Name: name}, http.StatusAccepted)
}

// getLifecycle handles GET /v1/lifecycle
func (rr *Routes) getLifecycle(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, LifecycleResponse{State: string(rr.lifecycle.State())}, http.StatusOK)
}

// setLifecycle handles PUT /v1/lifecycle
func (rr *Routes) setLifecycle(w http.ResponseWriter, r *http.Request) {
	var body LifecycleRequest
	if err := common.DecodeJSONBody(w, r, &body); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := lifecycle.ParseState(body.State)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	rr.lifecycle.Set(state)
	w.WriteHeader(http.StatusNoContent)
}

// getStatus handles GET /v1/status
func (rr *Routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	s := rr.status.GetStatus()
	if s == nil {
		common.WriteErrorResponse(w, "Status not available", http.StatusServiceUnavailable)
		return
	}
	common.WriteJSONResponse(w, s, http.StatusOK)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(ready ReadinessFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(ready))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func readinessHandler(ready ReadinessFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				common.WriteErrorResponse(w, "Agent not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
