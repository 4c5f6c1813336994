package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// PageFromQuery reads page and per_page from the query string. Missing or
// malformed values fall back to the defaults.
func PageFromQuery(c *gin.Context) model.Pagination {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	return model.Pagination{Page: page, PerPage: perPage}.Normalize()
}

func AppointmentFilterFromQuery(c *gin.Context) model.AppointmentFilter {
	return model.AppointmentFilter{
		DoctorName:     c.Query("doctor_name"),
		Specialization: c.Query("specialization"),
		Order:          model.ParseSortOrder(c.Query("order")),
		Pagination:     PageFromQuery(c),
	}
}

// UUIDParam parses the named path parameter.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
