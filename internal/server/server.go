// Package server wires configuration, storage, services and handlers into
// one chi router and runs it with graceful shutdown.
//
// Dependency flow:
//
//	config → sqlite.DB → repositories → services → handlers → routes
//
// Everything is assembled in New; nothing below this package knows about
// the others' concrete types.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/starblog/internal/auth"
	"github.com/sakif/starblog/internal/config"
	"github.com/sakif/starblog/internal/handler"
	"github.com/sakif/starblog/internal/metrics"
	"github.com/sakif/starblog/internal/middleware"
	"github.com/sakif/starblog/internal/realtime"
	"github.com/sakif/starblog/internal/render"
	sqliteRepo "github.com/sakif/starblog/internal/repository/sqlite"
	"github.com/sakif/starblog/internal/service"
	"github.com/sakif/starblog/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database, the notification hub and, when configured, the
// Redis client. Start closes all of them on the way out.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db      *sqliteRepo.DB
	hub     *realtime.Hub
	redis   *redis.Client
	stopBus context.CancelFunc
	avatars storage.Store
}

// New opens the database, picks the avatar store and notification
// transport, and registers every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		hub:    realtime.NewHub(logger),
	}

	if err := s.setup(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup(ctx context.Context) error {
	avatars, err := s.openAvatarStore(ctx)
	if err != nil {
		return err
	}
	s.avatars = avatars

	publisher, err := s.openPublisher(ctx)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	google := auth.NewGoogleProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.GoogleCallbackURL)

	users := s.db.Users()
	identities := service.NewIdentityReconciler(users, s.logger)

	authService := service.NewAuthService(users, identities, tokens, passwords, avatars, s.logger)
	userService := service.NewUserService(users, passwords, avatars, s.logger)
	postService := service.NewPostService(s.db.Posts(), s.db.Likes(), render.NewMarkdown(), s.logger)
	commentService := service.NewCommentService(s.db.Comments(), s.db.Posts(),
		service.NewCommentNotifier(publisher, s.logger), s.logger)

	s.routes(routeDeps{
		gate:     auth.NewGate(tokens, s.logger),
		socket:   realtime.NewSocketGate(s.hub, tokens, s.config.ClientURL, s.logger),
		auth:     handler.NewAuthHandler(authService, google, s.config.ClientURL, s.config.IsProduction(), s.logger),
		users:    handler.NewUserHandler(userService, s.logger),
		posts:    handler.NewPostHandler(postService, s.logger),
		comments: handler.NewCommentHandler(commentService, s.logger),
	})
	return nil
}

// openAvatarStore uses the S3 bucket when one is configured and the local
// upload directory otherwise.
func (s *Server) openAvatarStore(ctx context.Context) (storage.Store, error) {
	if !s.config.S3.Enabled() {
		local, err := storage.NewLocal(s.config.UploadDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	}

	c := s.config.S3
	store, err := storage.NewS3(ctx, storage.S3Config{
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PublicURL:       c.PublicURL,
		UsePathStyle:    c.UsePathStyle,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx, c.Region); err != nil {
		return nil, err
	}
	s.logger.Info("storing avatars in S3", slog.String("bucket", c.Bucket))
	return store, nil
}

// openPublisher returns the hub itself for a single process. With Redis,
// notifications go through pub/sub so every replica's hub receives them.
func (s *Server) openPublisher(ctx context.Context) (realtime.Publisher, error) {
	if s.config.RedisURL == "" {
		return s.hub, nil
	}

	rdb, err := realtime.OpenRedis(ctx, s.config.RedisURL)
	if err != nil {
		return nil, err
	}
	s.redis = rdb

	bus := realtime.NewRedisBus(rdb, s.logger)
	busCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopBus = cancel
	go func() {
		if err := bus.Forward(busCtx, s.hub); err != nil {
			s.logger.Error("notification bus stopped", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("notifications fan out through redis")
	return bus, nil
}

type routeDeps struct {
	gate     *auth.Gate
	socket   *realtime.SocketGate
	auth     *handler.AuthHandler
	users    *handler.UserHandler
	posts    *handler.PostHandler
	comments *handler.CommentHandler
}

// routes registers:
//
//	GET    /                              greeting
//	GET    /healthz                       database ping
//	GET    /metrics                       prometheus
//	GET    /socket?token=                 notification websocket
//	GET    /uploads/*                     local avatars
//	       /api/auth/...                  register, login, me, google
//	       /api/posts/...                 posts, likes, comments under a post
//	       /api/comments/{id}             edit and delete a comment
//	       /api/users/...                 profile and password
func (s *Server) routes(d routeDeps) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.config.ClientURL))

	r.Get("/", handler.HandleRoot)
	r.Get("/healthz", handler.HandleHealth(s.db))
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/socket", d.socket)

	if local, ok := s.avatars.(*storage.Local); ok {
		files := http.FileServer(http.Dir(local.Root()))
		r.Handle(storage.PublicPrefix+"*", http.StripPrefix(storage.PublicPrefix, files))
	}

	reporter := sentryhttp.New(sentryhttp.Options{Repanic: true})

	r.Route("/api", func(r chi.Router) {
		r.Use(reporter.Handle)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.auth.HandleRegister)
			r.Post("/login", d.auth.HandleLogin)
			r.Get("/google", d.auth.HandleGoogleLogin)
			r.Get("/google/callback", d.auth.HandleGoogleCallback)
			r.With(d.gate.Require).Get("/me", d.auth.HandleMe)
		})

		r.Route("/posts", func(r chi.Router) {
			r.With(d.gate.Optional).Get("/", d.posts.HandleList)
			r.With(d.gate.Optional).Get("/{id}", d.posts.HandleGet)
			r.Get("/{id}/comments", d.comments.HandleList)

			r.Group(func(r chi.Router) {
				r.Use(d.gate.Require)
				r.Post("/", d.posts.HandleCreate)
				r.Put("/{id}", d.posts.HandleUpdate)
				r.Delete("/{id}", d.posts.HandleDelete)
				r.Post("/{id}/like", d.posts.HandleLike)
				r.Delete("/{id}/like", d.posts.HandleUnlike)
				r.Post("/{id}/comments", d.comments.HandleCreate)
			})
		})

		r.Route("/comments", func(r chi.Router) {
			r.Use(d.gate.Require)
			r.Put("/{id}", d.comments.HandleUpdate)
			r.Delete("/{id}", d.comments.HandleDelete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(d.gate.Require)
			r.Put("/profile", d.users.HandleUpdateProfile)
			r.Put("/password", d.users.HandleChangePassword)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests,
// says goodbye to socket clients and closes the database.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("environment", s.config.Environment),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		_ = s.hub.Shutdown(ctx)
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// close releases everything New acquired. Safe to call after a partial
// setup.
func (s *Server) close() {
	_ = s.hub.Shutdown(context.Background())
	if s.stopBus != nil {
		s.stopBus()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
