package handler

import (
	"guild-ranker/internal/delivery/http/dto"
	"guild-ranker/internal/pkg/response"
	"guild-ranker/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

// AdminHandler exposes the write-side batches. Summaries are returned with
// 200 even when some items failed.
type AdminHandler struct {
	uc              usecase.PipelineUsecase
	defaultFallback int
}

func NewAdminHandler(uc usecase.PipelineUsecase, defaultFallback int) *AdminHandler {
	return &AdminHandler{uc: uc, defaultFallback: defaultFallback}
}

func (h *AdminHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/index/poll", h.Poll)
	r.Post("/index/scan", h.Scan)
	r.Post("/stats/daily", h.StatsDaily)
}

func bindBody(c fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		if v := c.App().Config().StructValidator; v != nil {
			return v.Validate(out)
		}
		return nil
	}
	return c.Bind().JSON(out)
}

func (h *AdminHandler) Poll(c fiber.Ctx) error {
	var req dto.PollRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	fallback := h.defaultFallback
	if req.FallbackPages != nil {
		fallback = *req.FallbackPages
	}
	out, err := h.uc.Poll(c.Context(), usecase.PollInput{
		Pages:         req.Pages,
		FallbackPages: fallback,
		StartPage:     req.StartPage,
		Guild:         req.Guild,
	})
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}

func (h *AdminHandler) Scan(c fiber.Ctx) error {
	var req dto.ScanRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	out, err := h.uc.Scan(c.Context(), usecase.ScanInput{
		StartID: req.StartID,
		Count:   req.Count,
		Guild:   req.Guild,
		Debug:   req.Debug,
	})
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}

func (h *AdminHandler) StatsDaily(c fiber.Ctx) error {
	var req dto.StatsDailyRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	out, err := h.uc.Refresh(c.Context(), req.Guild)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}
