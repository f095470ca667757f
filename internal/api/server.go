// Package api implements the HTTP surface of the facility location engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"cflp/internal/config"
	"cflp/internal/engine"
	"cflp/internal/metrics"
	"cflp/internal/store"
)

type Server struct {
	Engine  *engine.Engine
	Store   store.Store
	Config  config.Config
	Broker  EventBroker
	Limiter *RateLimiter

	closers []func() error
}

// NewServer builds a Server from cfg: the store named by CFLP_STORE, the scenario lock
// named by CFLP_LOCK and a Redis broker when REDIS_URL is set, in-memory otherwise.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	s := &Server{Config: cfg}
	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		s.closers = append(s.closers, rdb.Close)
	}

	st, err := s.openStore(ctx, rdb)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Store = st

	var locker store.Locker
	switch cfg.Lock {
	case "none":
		locker = store.NopLocker{}
	case "redis":
		if rdb == nil {
			_ = s.Close()
			return nil, errors.New("CFLP_LOCK=redis requires REDIS_URL")
		}
		locker = store.NewRedisLocker(rdb)
	default:
		locker = store.NewLocalLocker()
	}

	if rdb != nil {
		s.Broker = NewRedisBroker(rdb)
	} else {
		s.Broker = NewBroker()
	}
	s.Engine = engine.New(cfg, st, locker)
	s.Engine.Notifier = BrokerNotifier{Broker: s.Broker}
	s.Limiter = NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	s.closers = append(s.closers, func() error { s.Limiter.Stop(); return nil })
	return s, nil
}

func (s *Server) openStore(ctx context.Context, rdb *redis.Client) (store.Store, error) {
	switch s.Config.Store {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		pg, err := store.NewPostgres(s.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		if s.Config.DBMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return pg, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("CFLP_STORE=redis requires REDIS_URL")
		}
		return store.NewRedisFromClient(rdb), nil
	default:
		return store.NewFile(s.Config.DataDir)
	}
}

// Close releases connections in reverse order of acquisition.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Routes returns the complete handler including logging and request metrics.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	mux.Handle("POST /v1/solve", s.Limiter.Middleware(http.HandlerFunc(s.SolveHandler)))
	mux.HandleFunc("GET /v1/solver/config", s.SolverConfigHandler)

	mux.HandleFunc("GET /v1/scenarios/{key}/assignments", s.AssignmentHandler)
	mux.HandleFunc("GET /v1/scenarios/{key}/cost-matrix", s.CostMatrixHandler)
	mux.HandleFunc("DELETE /v1/scenarios/{key}/cost-matrix", s.InvalidateHandler)
	mux.HandleFunc("GET /v1/scenarios/{key}/runs", s.RunsHandler)
	mux.HandleFunc("GET /v1/scenarios/{key}/metrics", s.SolveMetricsHandler)
	mux.HandleFunc("GET /v1/scenarios/{key}/events/ws", s.EventsWSHandler)

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/info", s.DebugJSON)

	return logMiddleware(metricsMiddleware(mux))
}
