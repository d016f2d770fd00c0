package routes

import (
	"guild-ranker/internal/delivery/http/handler"
	"guild-ranker/internal/delivery/http/middleware"
	"guild-ranker/internal/ws"

	"github.com/gofiber/fiber/v3"
)

// Registry holds every HTTP handler. Nil handlers are skipped so partial
// wiring in tests stays possible.
type Registry struct {
	Health         *handler.HealthHandler
	Ranking        *handler.RankingHandler
	Admin          *handler.AdminHandler
	PipelineStatus *handler.PipelineStatusHandler
	WS             *ws.Handler
	AdminAuth      *middleware.AdminMiddleware
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil || r == nil {
		return
	}

	if r.Health != nil {
		r.Health.RegisterRoutes(app)
	}
	if r.WS != nil {
		r.WS.RegisterRoutes(app)
	}
	r.registerAPI(app)
}

func (r *Registry) registerAPI(app *fiber.App) {
	v1 := app.Group("/api").Group("/v1")

	if r.Ranking != nil {
		r.Ranking.RegisterRoutes(v1)
	}
	if r.PipelineStatus != nil {
		r.PipelineStatus.RegisterRoutes(v1)
	}
	if r.Admin != nil {
		admin := v1.Group("/admin", r.AdminAuth.Middleware())
		r.Admin.RegisterRoutes(admin)
	}
}
