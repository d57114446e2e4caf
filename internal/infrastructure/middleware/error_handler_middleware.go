package middleware

import (
	"context"
	stderrors "errors"
	"net/http"

	"worldview/internal/core/domain"
	"worldview/pkg/errors"
	"worldview/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error a handler attached with
// c.Error. Domain errors are mapped to AppErrors first.
func ErrorHandlerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		fields := []interface{}{
			"code", appErr.Code,
			"message", appErr.Message,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", logger.RequestID(c.Request.Context()),
		}
		if appErr.Cause != nil {
			fields = append(fields, "error", appErr.Cause)
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Errorw("request failed", fields...)
		} else {
			log.Infow("request rejected", fields...)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// ToAppError maps err onto the control API error shape.
func ToAppError(err error) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}

	var out *errors.AppError
	switch {
	case stderrors.Is(err, domain.ErrDeviceNotFound):
		out = errors.NewNotFoundError("device")
	case stderrors.Is(err, domain.ErrDeviceClosed):
		out = errors.NewGoneError("device is shut down")
	case stderrors.Is(err, domain.ErrProfileInUse):
		out = errors.NewConflictError(err.Error())
	case stderrors.Is(err, domain.ErrInvalidStatus),
		stderrors.Is(err, domain.ErrInvalidSession),
		stderrors.Is(err, domain.ErrInvalidMessage):
		out = errors.NewInvalidInputError(err.Error())
	case stderrors.Is(err, context.DeadlineExceeded):
		out = errors.NewTimeoutError("device did not respond in time")
	case stderrors.Is(err, context.Canceled):
		out = errors.NewServiceUnavailableError("request cancelled")
	default:
		out = errors.NewInternalError("internal server error")
	}
	out.Cause = err
	return out
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
