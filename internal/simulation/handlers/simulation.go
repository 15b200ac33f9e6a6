package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"universe-server/internal/shared/errors"
	"universe-server/internal/shared/response"
	"universe-server/internal/simulation"
)

const maxBodyBytes = 1 << 20

type SimulationHandler struct {
	service *simulation.Service
}

func NewSimulationHandler(service *simulation.Service) *SimulationHandler {
	return &SimulationHandler{service: service}
}

func simulationID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, errors.Validation("simulation ID is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.WrapValidation("invalid simulation ID format", err)
	}
	return id, nil
}

// decode reads an optional JSON body; an empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.WrapValidation("invalid JSON in request body", err)
	}
	return nil
}

func (h *SimulationHandler) List(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, h.service.List())
}

func (h *SimulationHandler) Get(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "get_simulation")

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	sim, err := h.service.Get(id)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, sim)
}

func (h *SimulationHandler) Bodies(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "get_bodies")

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	bodies, err := h.service.Bodies(id)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, bodies)
}

func (h *SimulationHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "create_simulation")

	var req simulation.CreateRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	sim, err := h.service.Create(r.Context(), req)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, sim)
}

func (h *SimulationHandler) Load(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "load_simulation")

	var req simulation.LoadRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	sim, err := h.service.Load(r.Context(), req.Source)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, sim)
}

func (h *SimulationHandler) Run(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "run_simulation")

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req simulation.RunRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	sim, err := h.service.Run(r.Context(), id, req)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusAccepted, sim)
}

func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "stop_simulation")

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	sim, err := h.service.Stop(id)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, sim)
}

func (h *SimulationHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "save_simulation", h.service.Save)
}

func (h *SimulationHandler) SaveInitial(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "save_initial", h.service.SaveInitial)
}

type saveFunc func(ctx context.Context, id int64, dest string) (*simulation.SaveResult, error)

func (h *SimulationHandler) save(w http.ResponseWriter, r *http.Request, name string, save saveFunc) {
	logger := slog.With("handler", name)

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req simulation.SaveRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	result, err := save(r.Context(), id, req.Destination)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, result)
}

func (h *SimulationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "delete_simulation")

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SimulationHandler) Iterations(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "list_iterations")

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	iterations, err := h.service.Iterations(r.Context(), id)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, iterations)
}

func (h *SimulationHandler) Iteration(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "get_iteration")

	id, err := simulationID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		response.Error(w, r, logger, errors.Validationf("invalid iteration %q", r.PathValue("n")))
		return
	}

	bodies, err := h.service.IterationBodies(r.Context(), id, n)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, bodies)
}
