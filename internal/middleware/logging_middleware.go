package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/spline-sim/internal/logging"
)

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи уровня DEBUG
type RequestLogger struct {
	log *logging.Logger
}

// NewRequestLogger пишет в логгер компонента "http" (или в логгер по умолчанию)
func NewRequestLogger() *RequestLogger {
	return &RequestLogger{log: logging.Component("http")}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header("X-Trace-Id", traceID)

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		rl.log.Debug("[HTTP] %s %s %d %s trace=%s", c.Request.Method, path, c.Writer.Status(), time.Since(start), traceID)
	}
}
