// Package server - HTTP surface for the leaf classifier: an upload page, a
// prediction endpoint and a health probe.
package server

import (
	"embed"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/inference"
	"github.com/nvr-ai/leaf-ml/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// PreviewEdge bounds the longest side of the preview returned with a prediction.
const PreviewEdge = 320

//go:embed web/index.html
var assets embed.FS

// Server routes HTTP requests to the inference service.
type Server struct {
	service *inference.Service
	params  config.ServerParams
	logger  *zap.Logger
	router  *gin.Engine
}

// New builds the router.
//
// Arguments:
//   - service: The model handle shared by every request.
//   - params: Listen address, upload limit and shutdown timeout.
//   - logger: Receives one line per request.
//
// Returns:
//   - *Server: The server, ready to be mounted or served.
func New(service *inference.Service, params config.ServerParams, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{service: service, params: params, logger: logger}

	router := gin.New()
	router.MaxMultipartMemory = params.MaxUploadBytes
	router.Use(gin.Recovery(), s.requestID(), s.accessLog())
	s.registerRoutes(router)
	s.router = router
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router in an *http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/", s.index)
	router.GET("/health", s.health)
	router.GET("/stats", s.stats)
	router.POST("/predict", s.predict)
}

// requestID reuses an incoming X-Request-ID or assigns a new one and
// attaches it to the request context.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(logging.RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(inference.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String(logging.RequestIDKey, c.GetString(logging.RequestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, zap.String("error", c.Errors.String()))
			fields = append(fields, logging.ErrorFields(last.Err)...)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			s.logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			s.logger.Warn("request", fields...)
		default:
			s.logger.Info("request", fields...)
		}
	}
}
