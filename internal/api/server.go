// Package api implements the HTTP surface of the solver service.
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"vrpsolve/internal/auth"
	"vrpsolve/internal/config"
	"vrpsolve/internal/store"
	"vrpsolve/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Cfg    *config.Config
	Log    zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // run id -> cancel
	slots   chan struct{}                 // bounds concurrent solves
}

// NewServer wires the store and broker from config. Without a
// DATABASE_URL it uses the in-memory store; without a REDIS_URL events
// stay process local.
func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Warn().Err(err).Msg("migrations failed")
			}
		}
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis broker unavailable, falling back to in-memory")
			broker = NewBroker()
		} else {
			broker = rb
		}
	} else {
		broker = NewBroker()
	}
	slots := cfg.Solver.MaxConcurrentRuns
	if slots <= 0 {
		slots = 8
	}
	return &Server{
		Store:   s,
		Pub:     webhooks.NewPublisher(s),
		Auth:    auth.New(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.TenantClaim, cfg.Auth.RoleClaim),
		Broker:  broker,
		Cfg:     cfg,
		Log:     log,
		cancels: map[string]context.CancelFunc{},
		slots:   make(chan struct{}, slots),
	}, nil
}

func (s *Server) registerRun(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
}

func (s *Server) unregisterRun(id string) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// cancelRun stops a running solve. Returns false when the run is not
// active in this process.
func (s *Server) cancelRun(id string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.Webhooks.MaxAttempts, s.Log)
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := s.getPrincipal(r).Tenant
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}
