package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opd-ai/go-rts/pkg/engine"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/logging"
	"github.com/opd-ai/go-rts/pkg/physics"
	"github.com/opd-ai/go-rts/pkg/spatial"
)

// maxBodyBytes bounds request bodies on command endpoints
const maxBodyBytes = 4 << 10

var errBadRequest = errors.New("bad request")

type handlers struct {
	game   *engine.Game
	logger *logging.Logger
}

// SpawnUnitRequest is the body of POST /api/units
type SpawnUnitRequest struct {
	Class  string  `json:"class"`
	TeamID int     `json:"teamID"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Sensor bool    `json:"sensor,omitempty"`
}

// SpawnStructureRequest is the body of POST /api/structures
type SpawnStructureRequest struct {
	Name   string  `json:"name"`
	TeamID int     `json:"teamID"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TargetRequest is the body of POST /api/units/{id}/target
type TargetRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SensorRequest is the body of POST /api/units/{id}/sensor. Zero sizes
// fall back to the configured sensor size.
type SensorRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CreatedResponse reports the ID of a new entity
type CreatedResponse struct {
	ID       uint64 `json:"id"`
	SensorID uint64 `json:"sensorID,omitempty"`
}

// IndexResponse is the body of GET /api/index
type IndexResponse struct {
	Tick       uint64        `json:"tick"`
	Stats      spatial.Stats `json:"stats"`
	Consistent bool          `json:"consistent"`
	Error      string        `json:"error,omitempty"`
	LastCheck  string        `json:"lastPeriodicError,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.game.GetState())
}

func (h *handlers) getArea(w http.ResponseWriter, r *http.Request) {
	area, err := parseArea(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.game.UnitsInArea(area))
}

func (h *handlers) getIndex(w http.ResponseWriter, r *http.Request) {
	resp := IndexResponse{
		Tick:       h.game.Tick(),
		Stats:      h.game.IndexStats(),
		Consistent: true,
	}
	if err := h.game.CheckIndex(); err != nil {
		resp.Consistent = false
		resp.Error = err.Error()
	}
	if err := h.game.LastIndexError(); err != nil {
		resp.LastCheck = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.game.MapState())
}

func (h *handlers) getUnit(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	unit, ok := h.game.Unit(id)
	if !ok {
		h.writeError(w, r, fmt.Errorf("unit %d: %w", id, engine.ErrEntityNotFound))
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (h *handlers) spawnUnit(w http.ResponseWriter, r *http.Request) {
	var req SpawnUnitRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	class, err := entity.ParseUnitClass(req.Class)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.game.SpawnUnit(class, req.TeamID, physics.Vector2D{X: req.X, Y: req.Y})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := CreatedResponse{ID: id}
	if req.Sensor {
		if resp.SensorID, err = h.game.AttachSensor(id, 0, 0); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) spawnStructure(w http.ResponseWriter, r *http.Request) {
	var req SpawnStructureRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		h.writeError(w, r, fmt.Errorf("%w: structure size must be positive", errBadRequest))
		return
	}
	id, err := h.game.SpawnStructure(req.Name, req.TeamID, physics.Vector2D{X: req.X, Y: req.Y}, req.Width, req.Height)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

func (h *handlers) setTarget(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req TargetRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.game.SetTarget(id, physics.Vector2D{X: req.X, Y: req.Y}); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) attachSensor(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req SensorRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.Width < 0 || req.Height < 0 {
		h.writeError(w, r, fmt.Errorf("%w: sensor size must not be negative", errBadRequest))
		return
	}
	sensorID, err := h.game.AttachSensor(id, req.Width, req.Height)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id, SensorID: sensorID})
}

func (h *handlers) removeEntity(w http.ResponseWriter, r *http.Request) {
	id, err := entityID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.game.RemoveEntity(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func entityID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

func parseArea(r *http.Request) (physics.Rect, error) {
	q := r.URL.Query()
	var vals [4]float64
	for i, key := range []string{"x", "y", "w", "h"} {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			return physics.Rect{}, fmt.Errorf("%w: query parameter %s must be a number", errBadRequest, key)
		}
		vals[i] = v
	}
	if vals[2] < 0 || vals[3] < 0 {
		return physics.Rect{}, fmt.Errorf("%w: area size must not be negative", errBadRequest)
	}
	return physics.NewRect(vals[0], vals[1], vals[2], vals[3]), nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, entity.ErrUnknownUnitClass), errors.Is(err, engine.ErrUnknownTeam):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrPlacementBlocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", err, "path", r.URL.Path)
	} else {
		h.logger.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
