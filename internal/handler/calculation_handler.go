package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-calc-api/internal/middleware"
	"go-calc-api/internal/model"
	"go-calc-api/internal/service"
	"go-calc-api/pkg/apierror"
)

type CalculationHandler struct {
	service *service.CalculationService
}

func NewCalculationHandler(service *service.CalculationService) *CalculationHandler {
	return &CalculationHandler{service: service}
}

func (h *CalculationHandler) Browse(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	calculations, err := h.service.List(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, calculations, &model.Meta{Total: len(calculations)})
}

func (h *CalculationHandler) Add(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	var payload model.CalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	calculation, err := h.service.Create(r.Context(), claims.UserID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, calculation, nil)
}

func (h *CalculationHandler) Read(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	calculation, err := h.service.Get(r.Context(), claims.UserID, chi.URLParam(r, "calculation_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, calculation, nil)
}

func (h *CalculationHandler) Edit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	var payload model.CalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	calculation, err := h.service.Update(r.Context(), claims.UserID, chi.URLParam(r, "calculation_id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, calculation, nil)
}

func (h *CalculationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := h.service.Delete(r.Context(), claims.UserID, chi.URLParam(r, "calculation_id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
