package app

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"pasteapi/docs"
	"pasteapi/internal/config"
	handlers "pasteapi/internal/http/handler"
	"pasteapi/internal/http/middleware"
	"pasteapi/internal/service"
	"pasteapi/internal/storage"
)

// Deps are the collaborators the HTTP surface is built around.
type Deps struct {
	Backend  storage.Backend
	Service  service.PasteService
	Log      logrus.FieldLogger
	Registry *prometheus.Registry
}

// New builds the Fiber app: middleware, paste routes, metrics and swagger.
func New(cfg *config.AppConfig, d Deps) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             cfg.BodyLimit,
		StreamRequestBody:     true,
		DisableStartupMessage: true,
	})

	prom, err := middleware.NewPrometheusMiddleware(d.Registry, "/healthz")
	if err != nil {
		return nil, err
	}

	app.Use(recover.New())
	// Tracing first so the request id lands on the server span.
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(prom.Handler())
	app.Use(middleware.Logger(d.Log))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, d.Backend, d.Service, cfg.Paste.IDLength)

	return app, nil
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, app *fiber.App, addr string) error {
	errch := make(chan error, 1)

	go func() {
		errch <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		return app.Shutdown()
	case err := <-errch:
		return err
	}
}
