package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizlens/internal/analytics"
	"github.com/victornm/quizlens/internal/api"
	"github.com/victornm/quizlens/internal/auth"
	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/editor"
	"github.com/victornm/quizlens/internal/event"
	"github.com/victornm/quizlens/internal/notify"
	"github.com/victornm/quizlens/internal/score"
	"github.com/victornm/quizlens/internal/store"
	"github.com/victornm/quizlens/internal/submission"
	"github.com/victornm/quizlens/internal/telemetry"
)

const serviceName = "quizlens"

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level string
	}

	Database struct {
		// Driver is "postgres" or "sqlite".
		Driver string
		Addr   string
		User   string
		Pass   string
		Name   string
		DSN    string
	}

	// Redis carries change notifications. Without addresses notifications are off.
	Redis struct {
		Addrs    []string
		Pass     string
		Prefix   string
		Interval time.Duration
	}

	Auth struct {
		// Secret signs bearer tokens. Empty disables authentication.
		Secret string
	}

	EventBus struct {
		PoolSize int
		Timeout  time.Duration
	}

	Analytics struct {
		TextLimit    int
		MaxTextLimit int
	}

	Structures []domain.Structure
}

// DefaultConfig is a single-node setup on a local sqlite file.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Database.Driver = string(store.DriverSQLite)
	c.Database.DSN = store.SQLiteDSN("quizlens.db")
	c.Redis.Prefix = serviceName
	c.Redis.Interval = notify.DefaultInterval
	c.EventBus.PoolSize = event.DefaultPoolSize
	c.EventBus.Timeout = event.DefaultTimeout
	c.Analytics.TextLimit = analytics.DefaultTextLimit
	c.Analytics.MaxTextLimit = analytics.DefaultMaxTextLimit
	c.Structures = DefaultStructures()
	return c
}

func DefaultStructures() []domain.Structure {
	return []domain.Structure{
		{Code: domain.StructureAll, Label: "All structures"},
		{Code: "central", Label: "Central"},
		{Code: "srcf_bucuresti", Label: "SRCF Bucuresti"},
		{Code: "srcf_craiova", Label: "SRCF Craiova"},
		{Code: "srcf_timisoara", Label: "SRCF Timisoara"},
		{Code: "srcf_cluj", Label: "SRCF Cluj"},
		{Code: "srcf_brasov", Label: "SRCF Brasov"},
		{Code: "srcf_iasi", Label: "SRCF Iasi"},
		{Code: "srcf_galati", Label: "SRCF Galati"},
		{Code: "srcf_constanta", Label: "SRCF Constanta"},
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		db    *store.DB
		redis redis.UniversalClient
	}

	service struct {
		editor     *editor.Service
		submission *submission.Service
		score      *score.Service
		analytics  *analytics.Service
	}

	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus(
		event.WithPoolSize(c.EventBus.PoolSize),
		event.WithTimeout(c.EventBus.Timeout),
	)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initDatabase(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	return nil
}

func (s *Server) initDatabase() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d := s.c.Database
	s.infra.db, err = store.Open(ctx, store.Options{
		Driver: store.Driver(d.Driver),
		Addr:   d.Addr,
		User:   d.User,
		Pass:   d.Pass,
		Name:   d.Name,
		DSN:    d.DSN,
	})
	return err
}

func (s *Server) initRedis() error {
	if len(s.c.Redis.Addrs) == 0 {
		slog.Info("server: redis not configured, change notifications are off")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initService() {
	db := s.infra.db

	s.service.editor = editor.NewService(editor.Config{
		Store:    db,
		EventBus: s.eb,
	})

	s.service.submission = submission.NewService(submission.Config{
		Store:    db,
		EventBus: s.eb,
	})

	s.service.score = score.NewService(score.Config{
		Store: db,
	})

	s.service.analytics = analytics.NewService(analytics.Config{
		Store:        db,
		Score:        s.service.score,
		Structures:   s.c.Structures,
		TextLimit:    s.c.Analytics.TextLimit,
		MaxTextLimit: s.c.Analytics.MaxTextLimit,
	})

	if s.infra.redis != nil {
		notify.New(notify.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis,
			Prefix:   s.c.Redis.Prefix,
			Interval: s.c.Redis.Interval,
		})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPLogger())

	verifier := auth.NewVerifier(s.c.Auth.Secret)
	if !verifier.Enabled() {
		slog.Warn("server: auth secret not set, the API is unauthenticated")
	}

	api.New(api.Config{
		Router:     e,
		Auth:       verifier,
		Editor:     s.service.editor,
		Submission: s.service.submission,
		Analytics:  s.service.analytics,
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)

	s.health = health.NewServer()
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Handler returns the HTTP handler, for serving the API without Start.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Handlers still running may publish notifications and write to the store.
	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	if err := s.infra.db.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close database failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
