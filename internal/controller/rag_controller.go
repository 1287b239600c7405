package controller

import (
	"ai-docs-helper/internal/dto"
	"ai-docs-helper/internal/pkg/serverutils"
	"ai-docs-helper/pkg/rag/cache"
	"ai-docs-helper/pkg/rag/pipeline"

	"github.com/gofiber/fiber/v2"
)

type IRagController interface {
	RegisterRoutes(r fiber.Router)
	Query(ctx *fiber.Ctx) error
	CacheStats(ctx *fiber.Ctx) error
	InvalidateCache(ctx *fiber.Ctx) error
}

type ragController struct {
	pipeline   *pipeline.Pipeline
	queryCache *cache.QueryCache
}

func NewRagController(p *pipeline.Pipeline, queryCache *cache.QueryCache) IRagController {
	return &ragController{
		pipeline:   p,
		queryCache: queryCache,
	}
}

func (c *ragController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/rag/v1")
	h.Post("query", c.Query)
	h.Get("cache/stats", c.CacheStats)
	h.Post("cache/invalidate", c.InvalidateCache)
}

func (c *ragController) Query(ctx *fiber.Ctx) error {
	var req dto.QueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	answer := c.pipeline.Ask(ctx.Context(), req.Question, req.Strategy)

	return ctx.JSON(serverutils.SuccessResponse("Success answer query", dto.QueryResponse{Answer: answer}))
}

func (c *ragController) CacheStats(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get cache stats", c.queryCache.Stats()))
}

func (c *ragController) InvalidateCache(ctx *fiber.Ctx) error {
	var req dto.InvalidateCacheRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	removed := c.queryCache.InvalidatePattern(ctx.Context(), req.Pattern)

	return ctx.JSON(serverutils.SuccessResponse("Success invalidate cache", dto.InvalidateCacheResponse{Invalidated: removed}))
}
