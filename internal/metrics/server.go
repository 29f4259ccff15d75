package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/spline-sim/internal/logging"
	"github.com/annel0/spline-sim/internal/middleware"
)

// ServerConfig отладочный HTTP-эндпоинт симулятора
type ServerConfig struct {
	Addr    string
	Metrics *Metrics
	Runtime *RuntimeStats
	// State снимок состояния симуляции для /state; должен быть безопасен для вызова из другой горутины
	State func() interface{}
}

// Handler HTTP-обработчик /metrics для реестра
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewRouter собирает gin-роутер: /metrics, /health, /state
func NewRouter(cfg ServerConfig) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("simulator"))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw, err := middleware.NewPrometheusMiddleware("debug_api", cfg.Metrics.Registerer())
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())

	router.GET("/metrics", gin.WrapH(Handler(cfg.Metrics.Gatherer())))

	runtimeStats := cfg.Runtime
	if runtimeStats == nil {
		runtimeStats = NewRuntimeStats()
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    runtimeStats.Uptime(),
			"memory_mb": runtimeStats.MemoryMB(),
		})
	})

	router.GET("/state", func(c *gin.Context) {
		if cfg.State == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state unavailable"})
			return
		}
		c.JSON(http.StatusOK, cfg.State())
	})
	return router, nil
}

// Serve запускает HTTP-эндпоинт и блокируется до отмены ctx
func Serve(ctx context.Context, cfg ServerConfig) error {
	router, err := NewRouter(cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("📈 /metrics, /health, /state доступны по адресу %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.Error("Ошибка HTTP сервера: %v", err)
		return err
	}
}
