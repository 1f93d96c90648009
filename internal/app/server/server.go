package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/hoplink/hoplink/internal/app/service"
	inthttp "github.com/hoplink/hoplink/internal/http/handler"
	"github.com/hoplink/hoplink/internal/http/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs.
type Dependencies struct {
	Logger        *zap.Logger
	Redis         *redis.Client
	Resolver      *service.RedirectService
	Links         service.LinkService
	Synchronizer  *service.Synchronizer
	CanonicalHost string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:       s.deps.Logger,
		LinkService:  s.deps.Links,
		Synchronizer: s.deps.Synchronizer,
	})
	apiHandler.Register(s.app)

	// The wildcard resolution routes go last so /api keeps priority.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:        s.deps.Logger,
		Resolver:      s.deps.Resolver,
		CanonicalHost: s.deps.CanonicalHost,
	})
	redirectHandler.Register(s.app)
}
