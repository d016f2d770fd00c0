package handler

import (
	"time"

	"guild-ranker/internal/pkg/response"
	"guild-ranker/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type RankingHandler struct {
	uc usecase.RankingUsecase
}

func NewRankingHandler(uc usecase.RankingUsecase) *RankingHandler {
	return &RankingHandler{uc: uc}
}

func (h *RankingHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/guilds/:guild/ranking", h.GetRanking)
	r.Get("/guilds/:guild/snapshot", h.GetSnapshot)
}

func (h *RankingHandler) parseQuery(c fiber.Ctx) (usecase.RankingQuery, error) {
	top, err := parseQueryIntStrict(c, "top", 0)
	if err != nil {
		return usecase.RankingQuery{}, err
	}
	pages, err := parseQueryIntStrict(c, "pages", 0)
	if err != nil {
		return usecase.RankingQuery{}, err
	}
	budgetMs, err := parseQueryIntStrict(c, "budgetMs", 0)
	if err != nil {
		return usecase.RankingQuery{}, err
	}
	fallback, err := parseQueryIntStrict(c, "fallbackPages", -1)
	if err != nil {
		return usecase.RankingQuery{}, err
	}
	return usecase.RankingQuery{
		Guild:         guildParam(c),
		Top:           top,
		Pages:         pages,
		Debug:         parseQueryBool(c, "debug"),
		Budget:        time.Duration(budgetMs) * time.Millisecond,
		FallbackPages: fallback,
	}, nil
}

// GetRanking serves GET /guilds/:guild/ranking.
func (h *RankingHandler) GetRanking(c fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return badRequest(err)
	}
	out, err := h.uc.GetRanking(c.Context(), q)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}

// GetSnapshot serves GET /guilds/:guild/snapshot.
func (h *RankingHandler) GetSnapshot(c fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return badRequest(err)
	}
	out, err := h.uc.GetSnapshot(c.Context(), q)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}
