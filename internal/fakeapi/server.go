// Package fakeapi is an in-memory REST backend speaking the same wire
// contract as the production API. The simulator and the client tests run
// against it.
package fakeapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Config configures the fake backend.
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	// RateLimit caps requests per minute per client. Zero disables it.
	RateLimit int
	// Latency is added to every API response.
	Latency time.Duration
	Metrics bool
}

func (c Config) withDefaults() Config {
	if c.Secret == "" {
		c.Secret = "fakeapi-dev-secret"
	}
	if c.Issuer == "" {
		c.Issuer = "feedsync-fakeapi"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = time.Hour
	}
	return c
}

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// metrics returns the process-wide fiber collector. Prometheus refuses a
// second registration of the same collectors.
func metrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("feedsync-fakeapi")
	})
	return prom
}

// Server is the fake backend.
type Server struct {
	cfg    Config
	store  *Store
	app    *fiber.App
	faults *faults
}

// New builds a server over store.
func New(cfg Config, store *Store) *Server {
	s := &Server{
		cfg:    cfg.withDefaults(),
		store:  store,
		faults: newFaults(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "feedsync-fakeapi",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, errors.New(fe.Message))
			}
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Store returns the backing store.
func (s *Server) Store() *Store { return s.store }

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

// Handler adapts the app to net/http.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// FailNext makes the next count requests matching method and path answer
// with status instead of reaching the handler.
func (s *Server) FailNext(method, path string, status, count int) {
	s.faults.add(method, path, status, count)
}

// Listen serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		observability.GlobalLogger.Info("fake api listening", slog.String("addr", addr))
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	if s.cfg.Metrics {
		s.app.Use(metrics().Middleware)
	}
	s.app.Use(helmet.New())
	s.app.Use(requestLogger())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if s.cfg.RateLimit > 0 {
		s.app.Use(limiter.New(limiter.Config{
			Max:        s.cfg.RateLimit,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
				})
			},
		}))
	}
}

// requestLogger logs each request through the global logger.
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Duration("latency", time.Since(start)),
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			fields = append(fields, slog.String("request_id", rid))
		}
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			observability.GlobalLogger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.GlobalLogger.DebugContext(c.UserContext(), "request processed", fields...)
		}
		return err
	}
}

func (s *Server) latency(c *fiber.Ctx) error {
	if s.cfg.Latency > 0 {
		select {
		case <-time.After(s.cfg.Latency):
		case <-c.Context().Done():
		}
	}
	return c.Next()
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.health)
	s.app.Get("/ping", s.ping)
	if s.cfg.Metrics {
		metrics().RegisterAt(s.app, "/metrics")
	}

	api := s.app.Group("/api", s.faults.middleware, s.latency)
	api.Post("/auth/login", s.login)

	protected := api.Group("", s.authRequired)

	users := protected.Group("/users")
	users.Get("/:id/posts", s.userPosts)
	users.Get("/:id/follow", s.followState)
	users.Post("/:id/follow", s.follow(true))
	users.Delete("/:id/follow", s.follow(false))
	users.Get("/:id", s.profile)

	posts := protected.Group("/posts")
	posts.Post("/:id/like", s.likePost(true))
	posts.Delete("/:id/like", s.likePost(false))
	posts.Post("/:id/repost", s.repost(true))
	posts.Delete("/:id/repost", s.repost(false))
	posts.Put("/:id/status", s.jobStatus)
	posts.Get("/:id/comments", s.listComments)
	posts.Post("/:id/comments", s.createComment)
	posts.Get("/:id", s.getPost)
	posts.Delete("/:id", s.deletePost)

	comments := protected.Group("/comments")
	comments.Post("/:parent/replies/:id/like", s.likeReply(true))
	comments.Delete("/:parent/replies/:id/like", s.likeReply(false))
	comments.Post("/:parent/replies", s.createReply)
	comments.Delete("/:parent/replies/:id", s.deleteReply)
	comments.Post("/:id/like", s.likeComment(true))
	comments.Delete("/:id/like", s.likeComment(false))
	comments.Delete("/:id", s.deleteComment)
}
