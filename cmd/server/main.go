package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-stepflow/internal/api/handler"
	"go-stepflow/internal/config"
	"go-stepflow/internal/coordinator"
	"go-stepflow/internal/core/memory"
	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/core/postgres/repository"
	infraredis "go-stepflow/internal/infrastructure/redis"
	"go-stepflow/internal/observability"
	"go-stepflow/internal/service"
	"go-stepflow/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

type stores struct {
	definitions ports.DefinitionRepository
	progress    ports.ProgressRepository
	submissions ports.SubmissionProvider
	responses   ports.ResponseStore
	templates   ports.TemplateProvider
	identity    ports.IdentityProvider
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.InitMetrics(registry)

	// 2. Stores
	st, err := openStores(ctx, cfg.Store, log)
	if err != nil {
		log.Error("opening store", zap.Error(err))
		return 1
	}

	// 3. Redis: event bus and re-evaluation queue
	var (
		notifier ports.Notifier = observability.NewLogNotifier(log)
		bus      *infraredis.RedisEventBus
		queue    *infraredis.RedisQueue
	)
	if cfg.Redis.Enabled {
		client, err := infraredis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Error("connecting to redis", zap.Error(err))
			return 1
		}
		defer client.Close()
		bus = infraredis.NewRedisEventBus(client, log)
		queue = infraredis.NewRedisQueue(client, 5*time.Second)
		notifier = bus
	} else {
		log.Info("redis disabled; events are logged and only the scheduled sweeps run")
	}

	// 4. Services
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithMaxConflictRetries(cfg.Workflow.MaxConflictRetries),
	}
	engine := service.NewWorkflowEngine(service.EngineDeps{
		Definitions: st.definitions,
		Progress:    st.progress,
		Submissions: st.submissions,
		Responses:   st.responses,
		Templates:   st.templates,
		Identity:    st.identity,
		Notifier:    notifier,
	}, opts...)
	defs := service.NewDefinitionService(st.definitions, st.progress, st.templates, opts...)

	// 5. Background processing
	scheduler := worker.NewScheduler(worker.InitRegistry(engine), metrics, log)
	if err := scheduler.Schedule(worker.JobEscalation, cfg.Workflow.EscalationSchedule); err != nil {
		log.Error("scheduling sweeps", zap.Error(err))
		return 1
	}
	if err := scheduler.Schedule(worker.JobAutoApproval, cfg.Workflow.AutoApprovalSchedule); err != nil {
		log.Error("scheduling sweeps", zap.Error(err))
		return 1
	}
	scheduler.Start(ctx)

	var pool *worker.Pool
	if bus != nil {
		pool = worker.NewPool(queue, engine, log)
		pool.StartPool(ctx, cfg.Workflow.ReevaluationWorkers)

		coord := coordinator.NewCoordinator(engine, queue, bus, log)
		go func() {
			if err := coord.Start(ctx); err != nil {
				log.Error("coordinator stopped", zap.Error(err))
			}
		}()
	}

	// 6. HTTP
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET(cfg.Server.MetricsPath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	handler.NewWorkflowHandler(engine, defs, st.identity, log).Register(router.Group("/api/v1"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver))
		serveErr <- srv.ListenAndServe()
	}()

	code := 0
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			code = 1
		}
		stop()
	}

	// 7. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	if pool != nil {
		pool.Wait()
	}
	log.Info("stopped")
	return code
}

func openStores(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*stores, error) {
	if cfg.Driver == "memory" {
		mem := memory.NewStore()
		return &stores{mem, mem, mem, mem, mem, mem}, nil
	}

	db, err := repository.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	subs := repository.NewSubmissionRepository(db)
	return &stores{
		definitions: repository.NewWorkflowRepository(db),
		progress:    repository.NewProgressRepository(db),
		submissions: subs,
		responses:   subs,
		templates:   repository.NewTemplateRepository(db),
		identity:    repository.NewIdentityRepository(db),
	}, nil
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("user_id", c.GetHeader(handler.HeaderUserID)),
		)
	}
}
