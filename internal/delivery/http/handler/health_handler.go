package handler

import (
	"context"
	"time"

	"guild-ranker/internal/delivery/http/dto"
	"guild-ranker/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	app string
	db  pinger
}

func NewHealthHandler(appName string, db pinger) *HealthHandler {
	return &HealthHandler{app: appName, db: db}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Health)
}

func (h *HealthHandler) Health(c fiber.Ctx) error {
	data := dto.HealthResponseData{App: h.app, Database: "unknown"}
	if h.db == nil {
		return response.Success(c, fiber.StatusOK, response.MessageOK, data)
	}

	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		data.Database = "down"
		return response.Error(c, fiber.StatusServiceUnavailable, response.MessageServiceUnavailable, data)
	}
	data.Database = "up"
	return response.Success(c, fiber.StatusOK, response.MessageOK, data)
}
