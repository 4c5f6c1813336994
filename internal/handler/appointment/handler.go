package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/appointment"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("", h.ListAppointments)
		appointments.POST("", h.CreateAppointment)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", h.DeleteAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
	}
	r.GET("/patients/:id/appointments", h.ListPatientAppointments)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filter := handler.AppointmentFilterFromQuery(c)

	appointments, total, err := h.service.ListAppointments(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	meta := httputil.NewMeta(c.Request, filter.Page, filter.PerPage, total)
	httputil.RespondWithList(c, "appointments list", appointments, meta)
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		c.Error(err)
		return
	}

	apt, err := h.service.CreateAppointment(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, "appointment created", apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.NotFound(appointment.MsgNotFound, nil))
		return
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, "appointment details", apt)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.NotFound(appointment.MsgNotFound, nil))
		return
	}

	var req model.UpdateAppointmentRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		c.Error(err)
		return
	}

	apt, err := h.service.UpdateAppointment(c.Request.Context(), id, &req)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, "appointment updated", apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.NotFound(appointment.MsgNotFound, nil))
		return
	}

	if err := h.service.DeleteAppointment(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, "appointment deleted", nil)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.NotFound(appointment.MsgNotFound, nil))
		return
	}

	apt, err := h.service.CancelAppointment(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, "appointment cancelled", apt)
}

func (h *Handler) ListPatientAppointments(c *gin.Context) {
	patientID, ok := handler.UUIDParam(c, "id")
	if !ok {
		c.Error(apperrors.BadRequest("invalid patient id", nil))
		return
	}
	filter := handler.AppointmentFilterFromQuery(c)

	appointments, total, err := h.service.ListPatientAppointments(c.Request.Context(), patientID, filter)
	if err != nil {
		c.Error(err)
		return
	}

	meta := httputil.NewMeta(c.Request, filter.Page, filter.PerPage, total)
	httputil.RespondWithList(c, "patient appointments", appointments, meta)
}
