package app

import (
	"fmt"
	"strings"
	"time"

	"guild-ranker/internal/config"
	"guild-ranker/internal/delivery/http/handler"
	"guild-ranker/internal/delivery/http/middleware"
	"guild-ranker/internal/delivery/http/routes"
	"guild-ranker/internal/ws"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

// New builds the fiber app around an already wired container.
func New(c *Container) *App {
	f := fiber.New(fiber.Config{
		AppName:         c.Config.App.AppName,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		StructValidator: middleware.NewStructValidator(),
	})

	registerGlobalMiddleware(f, c.Log)
	NewRegistry(c).Register(f)

	return &App{Fiber: f, Container: c}
}

// NewRegistry maps container components onto HTTP handlers.
func NewRegistry(c *Container) *routes.Registry {
	reg := &routes.Registry{
		Health:         handler.NewHealthHandler(c.Config.App.AppName, c.DB),
		Ranking:        handler.NewRankingHandler(c.RankingUC),
		PipelineStatus: handler.NewPipelineStatusHandler(c.PipelineStatusUC),
		Admin:          handler.NewAdminHandler(c.PipelineUC, c.Config.Snapshot.FallbackPages),
	}
	if c.JWT.Enabled() {
		reg.AdminAuth = middleware.NewAdminMiddleware(c.JWT)
	} else {
		c.Log.Warn("[HTTP] ADMIN_JWT_SECRET not set, admin endpoints disabled")
	}
	if c.Hub != nil {
		reg.WS = ws.NewHandler(c.Hub, c.Log)
	}
	return reg
}

func Bootstrap(cfg config.Config) (*App, func() error, error) {
	c, err := NewContainer(cfg, ContainerOptions{Hub: true, Render: true})
	if err != nil {
		return nil, nil, err
	}
	return New(c), c.Close, nil
}

func registerGlobalMiddleware(app *fiber.App, log logrus.FieldLogger) {
	if app == nil {
		return
	}

	app.Use(middleware.NewErrorMiddleware(log).Middleware())
	app.Use(middleware.NewAccessLogMiddleware(log).Middleware())
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
