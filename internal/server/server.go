// Package server assembles the HTTP API, its storage and background jobs.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/config"
	v1 "github.com/prempal04/AyurSutra/internal/handler/v1"
	"github.com/prempal04/AyurSutra/internal/middleware"
	"github.com/prempal04/AyurSutra/internal/scheduler"
	"github.com/prempal04/AyurSutra/internal/service"
	"github.com/prempal04/AyurSutra/pkg/auth"
	"github.com/prempal04/AyurSutra/pkg/cache"
	"github.com/prempal04/AyurSutra/pkg/metrics"
	"github.com/prempal04/AyurSutra/pkg/tracer"
)

type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	http     *http.Server
	stores   *Stores
	redis    *redis.Client
	auditSvc *service.AuditService
	sched    *scheduler.Scheduler
	tp       *sdktrace.TracerProvider
}

// Deps are the pieces the router needs; New builds them from config and tests
// build them by hand.
type Deps struct {
	Config       *config.Config
	Log          *zap.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Collector
	Stores       *Stores
	Tokens       middleware.TokenValidator
	Limiter      *middleware.RateLimiter
	Availability *service.AvailabilityService
	Appointments *service.AppointmentService
}

// openStores is swapped in tests.
var openStores = OpenStores

// New builds the server. On failure everything opened so far is released.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *Server, err error) {
	var closers []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		return nil, fmt.Errorf("initialising tracing: %w", err)
	}
	closers = append(closers, func() { _ = tp.Shutdown(context.Background()) })

	schedule, err := config.LoadSchedule(cfg.Schedule.File)
	if err != nil {
		return nil, err
	}

	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() { _ = stores.Close(context.Background()) })

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector("ayursutra", reg)

	var (
		slotCache cache.SlotCache = cache.NopSlotCache{}
		rdb       *redis.Client
	)
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		slotCache = cache.NewRedisSlotCache(rdb, cfg.Redis.SlotTTL, log, m)
	}

	auditSvc := service.NewAuditService(stores.Audit, m, log)
	closers = append(closers, auditSvc.Shutdown)
	avail := service.NewAvailabilityService(stores.Appointments, schedule, slotCache, m, log)
	appts := service.NewAppointmentService(stores.Appointments, avail, auditSvc, m, log)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, log)

	sched, err := scheduler.New(log.Named("scheduler"), schedule.Location())
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	closers = append(closers, func() { _ = sched.Stop() })
	if cfg.Sweeper.Enabled {
		sweeper := service.NewNoShowSweeper(stores.Appointments, avail, auditSvc, m, log, cfg.Sweeper.Grace)
		if _, err := sched.AddJob("no-show-sweep", cfg.Sweeper.Cron, func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		}); err != nil {
			return nil, fmt.Errorf("registering no-show sweep: %w", err)
		}
	}
	if _, err := sched.AddJob("rate-limiter-cleanup", "*/10 * * * *", func(context.Context) error {
		if n := limiter.Cleanup(); n > 0 {
			log.Debug("dropped idle rate limiters", zap.Int("count", n))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("registering rate limiter cleanup: %w", err)
	}

	router := NewRouter(Deps{
		Config:       cfg,
		Log:          log,
		Registry:     reg,
		Metrics:      m,
		Stores:       stores,
		Tokens:       auth.NewJWTManager(cfg.JWT),
		Limiter:      limiter,
		Availability: avail,
		Appointments: appts,
	})

	return &Server{
		cfg: cfg,
		log: log,
		http: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		stores:   stores,
		redis:    rdb,
		auditSvc: auditSvc,
		sched:    sched,
		tp:       tp,
	}, nil
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(d.Log),
		middleware.Logger(d.Log),
		middleware.Metrics(d.Metrics),
		middleware.Tracing(d.Config.Tracing.ServiceName),
		middleware.CORS(d.Config.CORS),
	)

	r.GET("/healthz", healthHandler(d.Stores))
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler(d.Registry)))

	api := r.Group("/api/v1", d.Limiter.Middleware())
	v1.RegisterRoutes(api, d.Tokens,
		v1.NewAvailabilityHandler(d.Availability, d.Log),
		v1.NewAppointmentHandler(d.Appointments, d.Log),
	)
	return r
}

func healthHandler(stores *Stores) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := stores.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "driver": stores.Driver, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "driver": stores.Driver})
	}
}

// Run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.http.Addr), zap.String("driver", s.stores.Driver))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.sched.Start()

	select {
	case err := <-errCh:
		if err != nil {
			s.shutdown()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.sched.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	s.auditSvc.Shutdown()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if err := s.stores.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if err := s.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	s.log.Info("shutdown complete")
	return errors.Join(errs...)
}
