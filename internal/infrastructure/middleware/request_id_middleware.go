package middleware

import (
	"time"

	"worldview/pkg/logger"
	"worldview/pkg/utils"

	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

// RequestObserver receives one call per completed request.
type RequestObserver interface {
	RecordHTTPRequest(method, route string, status int, seconds float64)
}

// RequestLoggingMiddleware assigns a request id, logs the request once it
// completes and reports it to observer when one is given.
func RequestLoggingMiddleware(log *logger.ContextLogger, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		c.Header(RequestIDHeader, id)

		ctx := logger.WithRequestID(c.Request.Context(), id)
		if profile := c.Param("profile"); profile != "" {
			ctx = logger.WithProfile(ctx, profile)
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		log.LogRequest(ctx, c.Request.Method, route, c.Writer.Status(), elapsed.Milliseconds())
		if observer != nil {
			observer.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), elapsed.Seconds())
		}
	}
}
