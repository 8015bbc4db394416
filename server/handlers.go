package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/leaf-ml/images"
	"github.com/nvr-ai/leaf-ml/inference"
	"github.com/nvr-ai/leaf-ml/logging"
)

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	RequestID     string                       `json:"request_id"`
	Class         string                       `json:"class"`
	PlantType     string                       `json:"plant_type,omitempty"`
	DiseaseStatus string                       `json:"disease_status,omitempty"`
	Headline      string                       `json:"headline"`
	Confidence    float64                      `json:"confidence"`
	Probabilities []inference.ClassProbability `json:"probabilities"`
	Image         images.Image                 `json:"image"`
	Preview       string                       `json:"preview,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
}

func (s *Server) index(c *gin.Context) {
	page, err := assets.ReadFile("web/index.html")
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) health(c *gin.Context) {
	if err := s.service.Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "unavailable",
			"model_loaded": false,
			"error":        err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model_loaded": s.service.Ready()})
}

// stats reports uptime and recent per-stage latencies of the service.
func (s *Server) stats(c *gin.Context) {
	timings := s.service.Timings()
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": timings.Uptime().Seconds(),
		"model_loaded":   s.service.Ready(),
		"operations":     timings.Snapshot(),
	})
}

func (s *Server) predict(c *gin.Context) {
	requestID := c.GetString(logging.RequestIDKey)
	limit := s.params.MaxUploadBytes

	if limit > 0 {
		if c.Request.ContentLength > limit {
			s.fail(c, http.StatusRequestEntityTooLarge, "upload exceeds size limit", nil)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, http.StatusRequestEntityTooLarge, "upload exceeds size limit", nil)
			return
		}
		s.fail(c, http.StatusBadRequest, "image file is required", nil)
		return
	}

	src, err := file.Open()
	if err != nil {
		s.fail(c, http.StatusBadRequest, "unable to open image", err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read image", err)
		return
	}

	pred, err := s.service.Predict(c.Request.Context(), data)
	if err != nil {
		s.predictFailed(c, logging.NewStageError("server.predict", predictStage(err), requestID, err))
		return
	}

	preview, err := images.Preview(pred.Raster, PreviewEdge)
	if err != nil {
		s.logger.Warn("preview failed", zap.String(logging.RequestIDKey, requestID), zap.Error(err))
	}

	c.JSON(http.StatusOK, PredictResponse{
		RequestID:     pred.RequestID,
		Class:         pred.Label.Raw,
		PlantType:     pred.Label.Plant,
		DiseaseStatus: pred.Label.Status,
		Headline:      pred.Label.Headline(),
		Confidence:    pred.Confidence,
		Probabilities: pred.Probabilities,
		Image:         pred.Image,
		Preview:       preview,
	})
}

// predictStage names the step of Service.Predict that err came from.
func predictStage(err error) string {
	var (
		decodeErr    *images.DecodeError
		inferenceErr *inference.InferenceError
	)
	switch {
	case errors.Is(err, inference.ErrModelNotLoaded):
		return "load"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &inferenceErr):
		return inferenceErr.Stage
	default:
		return ""
	}
}

// predictFailed maps service errors onto status codes.
func (s *Server) predictFailed(c *gin.Context, err error) {
	var (
		decodeErr    *images.DecodeError
		inferenceErr *inference.InferenceError
	)
	switch {
	case errors.Is(err, inference.ErrModelNotLoaded):
		s.fail(c, http.StatusServiceUnavailable, "model not loaded", err)
	case errors.As(err, &decodeErr):
		s.fail(c, http.StatusBadRequest, "failed to decode image", err)
	case errors.As(err, &inferenceErr):
		s.fail(c, http.StatusInternalServerError, "error during prediction", err)
	default:
		s.fail(c, http.StatusInternalServerError, "error during prediction", err)
	}
}

func (s *Server) fail(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{RequestID: c.GetString(logging.RequestIDKey), Error: message}
	if err != nil {
		resp.Detail = err.Error()
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}
