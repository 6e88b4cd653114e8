package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rush-contest/apiserver/config"
	"github.com/rush-contest/apiserver/internal/db"
	"github.com/rush-contest/apiserver/internal/handlers"
	"github.com/rush-contest/apiserver/internal/mq"
	"github.com/rush-contest/apiserver/internal/services"
	"github.com/rush-contest/apiserver/internal/storage"
	"github.com/rush-contest/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}
	credentialSecret := strings.TrimSpace(os.Getenv("CREDENTIAL_SECRET"))
	if credentialSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("CREDENTIAL_SECRET is required")
	}

	// Both the queue and the object store are optional: without a broker
	// mail is dropped with a warning, without a store uploads are rejected.
	var queue *mq.MQ
	if cfg.MQ.Backend != "" {
		backend, err := mq.FromConfig(ctx, cfg.MQ)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("mq: %w", err)
		}
		queue = mq.New(backend)
	}

	var files *storage.Storage
	if cfg.Storage.Backend != "" {
		backend, err := storage.FromConfig(ctx, cfg.Storage)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		files = storage.NewStorage(backend)
		if err := files.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	accountRepo := store.NewAccountRepository(dbConn)
	unitRepo := store.NewUnitRepository(dbConn)
	contestRepo := store.NewContestRepository(dbConn)
	contestantRepo := store.NewContestantRepository(dbConn)

	resolver := services.NewOrganizerResolver(unitRepo)
	logins := services.NewLoginAllocator(accountRepo)
	tokens := services.NewCredentialTokenService(accountRepo, credentialSecret)

	var mailQueue services.MailQueue
	if queue != nil {
		mailQueue = queue
	}
	mailer := services.NewMailer(mailQueue, cfg.BaseURL, logger)

	accountService := services.NewAccountService(accountRepo, resolver, logins, tokens, mailer, logger)
	eligibilityService := services.NewEligibilityService(contestantRepo)
	contestService := services.NewContestService(contestRepo, resolver, accountRepo, mailer, files, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/accounts", func(r chi.Router) {
		handlers.AccountsRouter(r, accountService, jwtSecret)
	})
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, accountService, tokens, jwtSecret)
	})
	router.Route("/units", func(r chi.Router) {
		handlers.UnitsRouter(r, resolver)
	})
	router.Route("/contests", func(r chi.Router) {
		handlers.ContestsRouter(r, contestService, eligibilityService, accountService, resolver, jwtSecret)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
