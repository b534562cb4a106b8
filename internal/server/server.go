package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tipwave/tipwave/internal/config"
	debitservice "github.com/tipwave/tipwave/internal/debit/service"
	obsmetrics "github.com/tipwave/tipwave/internal/observability/metrics"
	payoutservice "github.com/tipwave/tipwave/internal/payout/service"
	webhookservice "github.com/tipwave/tipwave/internal/webhook/service"
)

type Params struct {
	fx.In

	Config     *config.Config
	Log        *zap.Logger
	Reconciler *webhookservice.Reconciler
	DebitSvc   *debitservice.Service
	PayoutSvc  *payoutservice.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Server struct {
	cfg        *config.Config
	log        *zap.Logger
	reconciler *webhookservice.Reconciler
	debitSvc   *debitservice.Service
	payoutSvc  *payoutservice.Service
	metrics    *obsmetrics.Metrics
}

func New(p Params) *Server {
	return &Server{
		cfg:        p.Config,
		log:        p.Log.Named("server"),
		reconciler: p.Reconciler,
		debitSvc:   p.DebitSvc,
		payoutSvc:  p.PayoutSvc,
		metrics:    p.Metrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	engine.POST("/webhooks/:provider", s.handleWebhook)

	admin := engine.Group("/admin")
	admin.POST("/debit-batches/:restaurant_id/:business_date/retry", s.handleRetryDebitBatch)
	admin.POST("/settlement-rows/:settlement_row_id/retry", s.handleRetrySettlementRow)

	return engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http.request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}

var Module = fx.Module("http.server",
	fx.Provide(New),
	fx.Invoke(Run),
)

func Run(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, server *Server) {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
