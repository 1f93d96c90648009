package handler

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/hoplink/hoplink/internal/app/repository"
	"github.com/hoplink/hoplink/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger       *zap.Logger
	LinkService  service.LinkService
	Synchronizer *service.Synchronizer
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger       *zap.Logger
	linkService  service.LinkService
	synchronizer *service.Synchronizer
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:       logger,
		linkService:  deps.LinkService,
		synchronizer: deps.Synchronizer,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/:code", h.GetLink)
			links.Patch("/:code", h.UpdateLink)
			links.Delete("/:code", h.DeleteLink)
			links.Get("/:code/stats", h.LinkStats)
			links.Post("/:code/reconcile", h.ReconcileLink)
		}
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	Code        string  `json:"code,omitempty"`
	Alias       *string `json:"alias,omitempty"`
	Destination string  `json:"destination"`

	OwnerUserID *string `json:"owner_user_id,omitempty"`
	OwnerTeamID *string `json:"owner_team_id,omitempty"`
	DomainID    *string `json:"domain_id,omitempty"`
	FolderID    *string `json:"folder_id,omitempty"`

	Active     *bool              `json:"active,omitempty"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	ClickLimit *int64             `json:"click_limit,omitempty"`
	Password   string             `json:"password,omitempty"`
	Devices    []model.Device     `json:"devices,omitempty"`
	Schedule   []model.TimeWindow `json:"schedule,omitempty"`
	GeoMode    model.GeoMode      `json:"geo_mode,omitempty"`
	Countries  []string           `json:"geo_countries,omitempty"`

	TrackingParams map[string]string `json:"tracking_params,omitempty"`
}

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	Code        string  `json:"code"`
	Alias       *string `json:"alias,omitempty"`
	Destination string  `json:"destination"`

	OwnerUserID *string `json:"owner_user_id,omitempty"`
	OwnerTeamID *string `json:"owner_team_id,omitempty"`
	DomainID    *string `json:"domain_id,omitempty"`
	FolderID    *string `json:"folder_id,omitempty"`

	Active     bool               `json:"active"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	ClickLimit *int64             `json:"click_limit,omitempty"`
	Protected  bool               `json:"password_protected"`
	Devices    []model.Device     `json:"devices,omitempty"`
	Schedule   []model.TimeWindow `json:"schedule,omitempty"`
	GeoMode    model.GeoMode      `json:"geo_mode,omitempty"`
	Countries  []string           `json:"geo_countries,omitempty"`

	TrackingParams map[string]string    `json:"tracking_params,omitempty"`
	Rollup         model.RollupCounters `json:"rollup"`

	LastResolvedAt *time.Time `json:"last_resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toLinkResponse(link *model.Link) LinkResponse {
	return LinkResponse{
		Code:           link.Code,
		Alias:          link.Alias,
		Destination:    link.Destination,
		OwnerUserID:    link.OwnerUserID,
		OwnerTeamID:    link.OwnerTeamID,
		DomainID:       link.DomainID,
		FolderID:       link.FolderID,
		Active:         link.Active,
		ExpiresAt:      link.ExpiresAt,
		ClickLimit:     link.ClickLimit,
		Protected:      link.PasswordProtected(),
		Devices:        link.Devices,
		Schedule:       link.Schedule,
		GeoMode:        link.GeoMode,
		Countries:      link.GeoCountries,
		TrackingParams: link.TrackingParams,
		Rollup:         link.Rollup,
		LastResolvedAt: link.LastResolvedAt,
		CreatedAt:      link.CreatedAt,
	}
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if msg := validateCreate(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
		})
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	link, err := h.linkService.CreateLink(h.requestCtx(c), service.CreateLinkInput{
		Code:           req.Code,
		Alias:          req.Alias,
		Destination:    req.Destination,
		OwnerUserID:    req.OwnerUserID,
		OwnerTeamID:    req.OwnerTeamID,
		DomainID:       req.DomainID,
		FolderID:       req.FolderID,
		Active:         active,
		ExpiresAt:      req.ExpiresAt,
		ClickLimit:     req.ClickLimit,
		Password:       req.Password,
		Devices:        req.Devices,
		Schedule:       req.Schedule,
		GeoMode:        req.GeoMode,
		Countries:      req.Countries,
		TrackingParams: req.TrackingParams,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrIdentifierTaken):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "code or alias already taken",
			})
		case errors.Is(err, service.ErrOwnershipConflict):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("failed to create link", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create link",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(toLinkResponse(link))
}

func validateCreate(req CreateLinkRequest) string {
	if req.Destination == "" {
		return "destination is required"
	}
	u, err := url.Parse(req.Destination)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "destination must be an absolute URL"
	}
	if req.GeoMode != model.GeoModeNone &&
		req.GeoMode != model.GeoModeAllow && req.GeoMode != model.GeoModeBlock {
		return "geo_mode must be one of: allow, block"
	}
	if req.ClickLimit != nil && *req.ClickLimit <= 0 {
		return "click_limit must be positive"
	}
	return ""
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	limit := 20
	offset := 0

	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}

	links, err := h.linkService.ListLinks(h.requestCtx(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	response := make([]LinkResponse, len(links))
	for i := range links {
		response[i] = toLinkResponse(&links[i])
	}

	return c.JSON(fiber.Map{
		"links":  response,
		"limit":  limit,
		"offset": offset,
		"count":  len(response),
	})
}

// GetLink handles GET /api/links/:code
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	code := c.Params("code")
	link, err := h.linkService.GetLink(h.requestCtx(c), code)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	}
	return c.JSON(toLinkResponse(link))
}

// UpdateLinkRequest represents the request body for updating a link.
type UpdateLinkRequest struct {
	Alias       *string            `json:"alias,omitempty"`
	Destination *string            `json:"destination,omitempty"`
	Active      *bool              `json:"active,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	ClickLimit  *int64             `json:"click_limit,omitempty"`
	Password    *string            `json:"password,omitempty"`
	Devices     []model.Device     `json:"devices,omitempty"`
	Schedule    []model.TimeWindow `json:"schedule,omitempty"`
	GeoMode     *model.GeoMode     `json:"geo_mode,omitempty"`
	Countries   []string           `json:"geo_countries,omitempty"`
	Tracking    map[string]string  `json:"tracking_params,omitempty"`
	FolderID    *string            `json:"folder_id,omitempty"`
}

// UpdateLink handles PATCH /api/links/:code
func (h *APIHandler) UpdateLink(c *fiber.Ctx) error {
	code := c.Params("code")

	var req UpdateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Destination != nil {
		u, err := url.Parse(*req.Destination)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "destination must be an absolute URL",
			})
		}
	}

	link, err := h.linkService.UpdateLink(h.requestCtx(c), code, service.UpdateLinkInput{
		Alias:       req.Alias,
		Destination: req.Destination,
		Active:      req.Active,
		ExpiresAt:   req.ExpiresAt,
		ClickLimit:  req.ClickLimit,
		Password:    req.Password,
		Devices:     req.Devices,
		Schedule:    req.Schedule,
		GeoMode:     req.GeoMode,
		Countries:   req.Countries,
		Tracking:    req.Tracking,
		FolderID:    req.FolderID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrIdentifierTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "alias already taken",
			})
		}
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "link not found",
			})
		}
		h.logger.Error("failed to update link", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update link",
		})
	}

	return c.JSON(toLinkResponse(link))
}

// DeleteLink handles DELETE /api/links/:code. Soft by default; ?hard=true
// erases the row and its event log.
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	code := c.Params("code")
	hard := c.QueryBool("hard")

	if err := h.linkService.DeleteLink(h.requestCtx(c), code, hard); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "link not found",
			})
		}
		h.logger.Error("failed to delete link", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete link",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// LinkStats handles GET /api/links/:code/stats; it returns the last
// reconciled snapshot without forcing a recompute.
func (h *APIHandler) LinkStats(c *fiber.Ctx) error {
	code := c.Params("code")
	link, err := h.linkService.GetLink(h.requestCtx(c), code)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	}
	return c.JSON(fiber.Map{
		"code":   link.Code,
		"rollup": link.Rollup,
	})
}

// ReconcileLink handles POST /api/links/:code/reconcile: an on-demand
// recompute, run on the link's worker shard so it cannot race a
// stream-driven reconcile of the same link.
func (h *APIHandler) ReconcileLink(c *fiber.Ctx) error {
	code := c.Params("code")
	ctx := h.requestCtx(c)

	link, err := h.linkService.GetLink(ctx, code)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	}

	counters, err := h.synchronizer.ReconcileOnDemand(ctx, link.ID)
	if err != nil {
		h.logger.Error("on-demand reconcile failed", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to reconcile link",
		})
	}

	return c.JSON(fiber.Map{
		"code":   link.Code,
		"rollup": counters,
	})
}

func (h *APIHandler) requestCtx(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
