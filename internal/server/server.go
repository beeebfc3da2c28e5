package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sahana-project/ewaste-api/config"
	"github.com/sahana-project/ewaste-api/internal/auth"
	"github.com/sahana-project/ewaste-api/internal/db"
	"github.com/sahana-project/ewaste-api/internal/handlers"
	"github.com/sahana-project/ewaste-api/internal/logger"
	"github.com/sahana-project/ewaste-api/internal/mq"
	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/internal/storage"
	"github.com/sahana-project/ewaste-api/internal/store"
)

// Server wraps the HTTP server and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	blobs      storage.ObjectStorage
	log        *slog.Logger
}

// Deps are the services the router exposes.
type Deps struct {
	Accounts      *services.AccountService
	Items         *services.ItemService
	Bulk          *services.BulkService
	Guard         *services.Guard
	Images        *storage.Storage
	RatePerMinute int
	Log           *slog.Logger
}

// New connects every backend named by cfg and assembles the router.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewBackend(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		closeBackend(blobs)
		return nil, fmt.Errorf("ensure bucket %s: %w", blobs.Bucket(), err)
	}
	images := storage.NewStorage(blobs, cfg.Storage.PublicBaseURL)

	queue, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		closeBackend(blobs)
		return nil, fmt.Errorf("init mq: %w", err)
	}
	events := mq.NewEventPublisher(queue, cfg.MQ.Channel)

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		_ = dbConn.Close()
		closeBackend(blobs)
		_ = queue.Close()
		return nil, err
	}

	accountRepo := store.NewAccountRepository(dbConn)
	itemRepo := store.NewItemRepository(dbConn)
	bulkRepo := store.NewBulkRepository(dbConn)

	router := NewRouter(Deps{
		Accounts:      services.NewAccountService(accountRepo, tokens, images, log),
		Items:         services.NewItemService(itemRepo, images, events, log),
		Bulk:          services.NewBulkService(bulkRepo, images, events, log),
		Guard:         services.NewGuard(accountRepo, tokens),
		Images:        images,
		RatePerMinute: cfg.Auth.RatePerMinute,
		Log:           log,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 5000
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server configured",
		"port", port,
		"storage", cfg.Storage.Backend,
		"bucket", blobs.Bucket(),
		"mq", cfg.MQ.Backend,
	)
	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         queue,
		blobs:      blobs,
		log:        log,
	}, nil
}

// NewRouter builds the HTTP surface on top of d.
func NewRouter(d Deps) *chi.Mux {
	authMiddleware := handlers.RequireAuth(d.Guard, d.Log)
	limiter := handlers.NewRateLimiter(d.RatePerMinute)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logger.RequestLogger(d.Log),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, d.Accounts, authMiddleware, limiter, d.Log)
		})
		r.Route("/ewaste", func(r chi.Router) {
			handlers.ItemRouter(r, d.Items, authMiddleware, d.Log)
		})
		r.Route("/bulk-ewaste", func(r chi.Router) {
			handlers.BulkRouter(r, d.Bulk, authMiddleware, d.Log)
		})
		r.Route("/images", func(r chi.Router) {
			handlers.ImageRouter(r, d.Images, d.Log)
		})
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		err = errors.Join(err, s.mq.Close())
	}
	closeBackend(s.blobs)
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

func closeBackend(blobs storage.ObjectStorage) {
	if c, ok := blobs.(io.Closer); ok {
		_ = c.Close()
	}
}
