package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/pancreas-api/internal/cache"
	"github.com/Brownie44l1/pancreas-api/internal/metrics"
	"github.com/Brownie44l1/pancreas-api/internal/model"
	"github.com/Brownie44l1/pancreas-api/internal/storage"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

type Options struct {
	MaxUploadSize  int64
	AllowedTypes   []string
	RequestTimeout time.Duration
}

type Handler struct {
	pipeline *model.Pipeline
	store    *storage.Store
	cache    *cache.ResultCache
	opts     Options
}

func NewHandler(pipeline *model.Pipeline, store *storage.Store, resultCache *cache.ResultCache, opts Options) *Handler {
	return &Handler{
		pipeline: pipeline,
		store:    store,
		cache:    resultCache,
		opts:     opts,
	}
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type UploadResponse struct {
	AnalysisID string `json:"analysisId"`
	ImageURL   string `json:"imageUrl"`
	*model.PredictionResult
}

type LabelsResponse struct {
	Classes    []string `json:"classes"`
	InputShape []int64  `json:"input_shape"`
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ResNet50 Inference API is running."})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) Labels(c *gin.Context) {
	c.JSON(http.StatusOK, LabelsResponse{
		Classes:    h.pipeline.Labels(),
		InputShape: model.InputShape(),
	})
}

// Predict scores a tensor that the caller already preprocessed.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	expected := model.InputShape().FlattenedSize()
	if int64(len(req.Image)) != expected {
		abort(c, http.StatusBadRequest, fmt.Sprintf("Expected %d values, got %d", expected, len(req.Image)), nil)
		return
	}

	result, err := h.classify(c, func() (*model.PredictionResult, error) {
		return h.pipeline.ClassifyTensor(model.NewInputTensor(req.Image))
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PredictFromImage classifies a multipart image upload without storing it.
func (h *Handler) PredictFromImage(c *gin.Context) {
	raw, header, err := h.readUpload(c, "image", "file")
	if err != nil {
		h.fail(c, err)
		return
	}
	log.Debug().Str("filename", header.Filename).Int("bytes", len(raw)).Msg("received image")

	key := cache.Key(raw)
	if cached, ok := h.cache.Get(key); ok {
		metrics.Incr(metrics.CacheHit)
		c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
		return
	}
	metrics.Incr(metrics.CacheMiss)

	result, err := h.classifyImage(c, raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.cache.Set(key, body)
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Upload classifies an image, then stores both the image and its result so
// they can be fetched later by analysis id.
func (h *Handler) Upload(c *gin.Context) {
	raw, _, err := h.readUpload(c, "file", "image")
	if err != nil {
		h.fail(c, err)
		return
	}

	mime := mimetype.Detect(raw)
	if !h.allowed(mime) {
		abort(c, http.StatusUnsupportedMediaType,
			fmt.Sprintf("Unsupported file type %s", mime.String()), nil)
		return
	}

	result, err := h.classifyImage(c, raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	// The stored name follows the sniffed type, never the client's file name.
	id, filename, err := h.store.SaveUpload(raw, mime.Extension())
	if err != nil {
		h.fail(c, err)
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.SaveResult(id, body); err != nil {
		h.fail(c, err)
		return
	}

	log.Info().Str("analysis_id", id).Str("label", result.Label).Msg("upload classified")
	c.JSON(http.StatusOK, UploadResponse{
		AnalysisID:       id,
		ImageURL:         "/api/uploads/" + filename,
		PredictionResult: result,
	})
}

func (h *Handler) GetUpload(c *gin.Context) {
	path, err := h.store.UploadPath(c.Param("filename"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.File(path)
}

func (h *Handler) GetResult(c *gin.Context) {
	data, err := h.store.LoadResult(c.Param("analysis_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *Handler) ListDataset(c *gin.Context) {
	train, test, err := h.store.ListDataset()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"train": train, "test": test})
}

func (h *Handler) ListSamples(c *gin.Context) {
	samples, err := h.store.ListSamples()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples})
}

func (h *Handler) classifyImage(c *gin.Context, raw []byte) (*model.PredictionResult, error) {
	return h.classify(c, func() (*model.PredictionResult, error) {
		return h.pipeline.ClassifyImage(raw)
	})
}

type outcome struct {
	result *model.PredictionResult
	err    error
}

// classify runs fn under the request timeout. On expiry the caller gets
// context.DeadlineExceeded and the eventual result is discarded.
func (h *Handler) classify(c *gin.Context, fn func() (*model.PredictionResult, error)) (*model.PredictionResult, error) {
	ctx := c.Request.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		result, err := fn()
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		metrics.Timing(metrics.PredictionLatency, time.Since(start))
		if o.err == nil {
			metrics.Incr(metrics.PredictionCount, metrics.Tag("label", o.result.Label))
		}
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type uploadError struct {
	status  int
	message string
	err     error
}

func (e *uploadError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *uploadError) Unwrap() error { return e.err }

// readUpload returns the first present form file among fields.
func (h *Handler) readUpload(c *gin.Context, fields ...string) ([]byte, *multipart.FileHeader, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadSize+formOverhead)

	var (
		header *multipart.FileHeader
		err    error
	)
	for _, field := range fields {
		header, err = c.FormFile(field)
		if err == nil {
			break
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: "Request body too large", err: err}
		}
	}
	if header == nil {
		return nil, nil, &uploadError{
			status:  http.StatusBadRequest,
			message: fmt.Sprintf("No image file provided. Use '%s' as the form field name", strings.Join(fields, "' or '")),
			err:     err,
		}
	}
	if header.Size > h.opts.MaxUploadSize {
		return nil, nil, &uploadError{
			status:  http.StatusRequestEntityTooLarge,
			message: fmt.Sprintf("File exceeds the %d MB limit", h.opts.MaxUploadSize/(1024*1024)),
		}
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, &uploadError{status: http.StatusBadRequest, message: "Failed to open uploaded file", err: err}
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, h.opts.MaxUploadSize+1))
	if err != nil {
		return nil, nil, &uploadError{status: http.StatusBadRequest, message: "Failed to read uploaded file", err: err}
	}
	if int64(len(raw)) > h.opts.MaxUploadSize {
		return nil, nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: "File too large"}
	}
	return raw, header, nil
}

func (h *Handler) allowed(mime *mimetype.MIME) bool {
	for _, t := range h.opts.AllowedTypes {
		if mime.Is(t) {
			return true
		}
	}
	return false
}

// fail maps pipeline, storage and request errors to HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		upErr    *uploadError
		decErr   *model.DecodeError
		shapeErr *model.ShapeMismatchError
	)
	switch {
	case errors.As(err, &upErr):
		abort(c, upErr.status, upErr.message, upErr.err)
	case errors.As(err, &decErr):
		metrics.Incr(metrics.PredictionError, metrics.Tag("kind", "decode"))
		abort(c, http.StatusBadRequest, "Invalid image format", err)
	case errors.As(err, &shapeErr):
		metrics.Incr(metrics.PredictionError, metrics.Tag("kind", "shape"))
		log.Error().Err(err).Msg("tensor shape mismatch")
		abort(c, http.StatusInternalServerError, "Prediction failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.Incr(metrics.PredictionError, metrics.Tag("kind", "timeout"))
		abort(c, http.StatusGatewayTimeout, "Prediction timed out", err)
	case errors.Is(err, context.Canceled):
		abort(c, 499, "Request canceled", err)
	case errors.Is(err, storage.ErrNotFound):
		abort(c, http.StatusNotFound, "Not found", nil)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		abort(c, http.StatusInternalServerError, "Internal error", err)
	}
}

func abort(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}
