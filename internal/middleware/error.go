package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// ErrorHandler renders the last error a handler attached with c.Error as the
// response envelope. Internal errors are logged with their cause; the client
// only sees the generic message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		if apperrors.CodeOf(lastErr) == apperrors.ErrInternal {
			log.Ctx(c.Request.Context()).Error().
				Err(lastErr).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		httputil.RespondWithError(c, lastErr)
	}
}
