package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses
type Response struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
	Meta    *Meta            `json:"meta,omitempty"`
	Errors  apperrors.Fields `json:"errors,omitempty"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// RespondWithList sends one page of items with its pagination meta. A nil
// page is rendered as an empty list.
func RespondWithList[T any](c *gin.Context, message string, items []T, meta *Meta) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    items,
		Meta:    meta,
	})
}

// RespondWithError renders err as an error envelope and aborts the chain.
// Errors that are not AppErrors become a bare 500.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal("internal server error", err)
	}

	c.AbortWithStatusJSON(appErr.StatusCode(), Response{
		Status:  StatusError,
		Message: appErr.Message,
		Errors:  appErr.Fields,
	})
}

// BindJSON decodes the request body into obj. An empty body leaves obj
// untouched. A value of the wrong JSON type is a validation error on that
// field; anything else that fails to decode is a bad request.
func BindJSON(c *gin.Context, obj interface{}) error {
	err := c.ShouldBindJSON(obj)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.TooLarge(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		name := strings.ReplaceAll(typeErr.Field, "_", " ")
		return apperrors.Validation(apperrors.Fields{
			typeErr.Field: {fmt.Sprintf("The %s field must be a %s.", name, typeErr.Type.Kind())},
		})
	}
	return apperrors.BadRequest("malformed JSON body", err)
}
