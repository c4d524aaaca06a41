package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Brownie44l1/pancreas-api/internal/config"
	"github.com/Brownie44l1/pancreas-api/internal/handlers"
	"github.com/Brownie44l1/pancreas-api/internal/middleware"
)

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(cfg *config.Config, h *handlers.Handler, build BuildInfo) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.App.Name),
		middleware.HTTPLogger(),
		middleware.CORS(),
	)
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, build) })

	limit := middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	r.POST("/predict", limit, h.Predict)
	r.POST("/predict/image", limit, h.PredictFromImage)

	api := r.Group("/api")
	{
		api.GET("/labels", h.Labels)
		api.POST("/upload", limit, h.Upload)
		api.GET("/uploads/:filename", h.GetUpload)
		api.GET("/results/:analysis_id", h.GetResult)
		api.GET("/dataset/list", h.ListDataset)
		api.GET("/samples/list", h.ListSamples)
	}
	return r
}

// Run serves handler until ctx is cancelled, then drains in-flight requests
// for at most the configured shutdown timeout.
func Run(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func shutdownTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return cfg.ShutdownTimeout
}
