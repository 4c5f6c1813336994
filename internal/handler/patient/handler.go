package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/patient"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.GET("", h.ListPatients)
		patients.POST("", h.CreatePatient)
		patients.GET("/:id", h.GetPatient)
		patients.PATCH("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeletePatient)
	}
}

func (h *Handler) ListPatients(c *gin.Context) {
	filter := model.PatientFilter{
		Search:     c.Query("search"),
		Pagination: handler.PageFromQuery(c),
	}

	patients, total, err := h.service.ListPatients(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	meta := httputil.NewMeta(c.Request, filter.Page, filter.PerPage, total)
	httputil.RespondWithList(c, "patients list", patients, meta)
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		c.Error(err)
		return
	}

	p, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, "patient created", p)
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.NotFound(patient.MsgNotFound, nil))
		return
	}

	p, err := h.service.GetPatient(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, "patient details", p)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.NotFound(patient.MsgNotFound, nil))
		return
	}

	var req model.UpdatePatientRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		c.Error(err)
		return
	}

	p, err := h.service.UpdatePatient(c.Request.Context(), id, &req)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, "patient updated", p)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.NotFound(patient.MsgNotFound, nil))
		return
	}

	if err := h.service.DeletePatient(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, "patient deleted", nil)
}
