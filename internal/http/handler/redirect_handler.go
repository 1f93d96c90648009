package handler

import (
	"context"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/hoplink/hoplink/internal/app/service"
	"github.com/hoplink/hoplink/internal/http/view"
	"go.uber.org/zap"
)

// noCache stops browsers from replaying a redirect on back-navigation
// without re-evaluating the policy chain.
const noCache = "no-cache, no-store, must-revalidate"

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger        *zap.Logger
	Resolver      *service.RedirectService
	CanonicalHost string
}

// RedirectHandler serves the resolution surface: the GET redirect and the
// password POST.
type RedirectHandler struct {
	logger        *zap.Logger
	resolver      *service.RedirectService
	canonicalHost string
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:        logger,
		resolver:      deps.Resolver,
		canonicalHost: deps.CanonicalHost,
	}
}

// Register wires resolution routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:identifier", h.Resolve)
	router.Post("/:identifier", h.SubmitPassword)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "hoplink",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:identifier and turns the outcome into an HTTP
// redirect or a rendered page.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	if !identifierPattern.MatchString(identifier) {
		return h.renderMessage(c, fiber.StatusNotFound, view.NotFoundPage())
	}

	rctx := h.requestContext(c)
	outcome := h.resolver.Resolve(h.userContext(c), identifier, rctx)

	switch outcome.Kind {
	case model.OutcomeRedirect:
		c.Set(fiber.HeaderCacheControl, noCache)
		status := fiber.StatusFound
		if h.canonicalHost != "" && c.Hostname() == h.canonicalHost {
			status = fiber.StatusMovedPermanently
		}
		return c.Redirect(outcome.DestinationURL, status)

	case model.OutcomeRequiresPassword:
		return h.renderPasswordPrompt(c, identifier, rctx.Password != "")

	case model.OutcomeDenied:
		return h.renderMessage(c, denialStatus(outcome.Reason), view.DenialPage(outcome.Reason))

	default:
		return h.renderMessage(c, fiber.StatusNotFound, view.NotFoundPage())
	}
}

// passwordBody is the POST /:identifier payload.
type passwordBody struct {
	Password string `json:"password" form:"password"`
}

// SubmitPassword handles POST /:identifier: the password form and the
// JSON API variant share this endpoint.
func (h *RedirectHandler) SubmitPassword(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	if !identifierPattern.MatchString(identifier) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "link not found",
		})
	}

	var body passwordBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	rctx := h.requestContext(c)
	rctx.Password = body.Password
	outcome := h.resolver.Resolve(h.userContext(c), identifier, rctx)

	switch outcome.Kind {
	case model.OutcomeRedirect:
		c.Set(fiber.HeaderCacheControl, noCache)
		return c.JSON(fiber.Map{
			"success":     true,
			"redirectUrl": outcome.DestinationURL,
		})
	case model.OutcomeRequiresPassword:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "wrong password",
		})
	case model.OutcomeDenied:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   string(outcome.Reason),
		})
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "link not found",
		})
	}
}

// requestContext captures everything the pipeline may read about this
// request. The clock is sampled exactly once here.
func (h *RedirectHandler) requestContext(c *fiber.Ctx) model.RequestContext {
	userAgent := c.Get(fiber.HeaderUserAgent)
	device, bot := service.ClassifyDevice(userAgent)

	source := model.SourceLink
	if c.Query("qr") != "" {
		source = model.SourceQR
	}

	country := c.Get("CF-IPCountry")
	if country == "" {
		country = c.Get("X-Country-Code")
	}

	return model.RequestContext{
		Now:          time.Now(),
		Password:     c.Query("pwd"),
		Device:       device,
		Bot:          bot,
		Country:      country,
		SkipTracking: c.Query("_t") == "skip",
		Source:       source,
		IP:           c.IP(),
		UserAgent:    userAgent,
		Referrer:     c.Get(fiber.HeaderReferer),
	}
}

func (h *RedirectHandler) userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func (h *RedirectHandler) renderPasswordPrompt(c *fiber.Ctx, identifier string, failed bool) error {
	html, err := view.RenderPasswordPage(view.PasswordPageData{
		Code:      identifier,
		SubmitURL: "/" + identifier,
		Failed:    failed,
	})
	if err != nil {
		h.logger.Error("failed to render password page", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.Status(fiber.StatusUnauthorized).Type("html", "utf-8").SendString(html)
}

func (h *RedirectHandler) renderMessage(c *fiber.Ctx, status int, data view.MessagePageData) error {
	html, err := view.RenderMessagePage(data)
	if err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.Status(status).Type("html", "utf-8").SendString(html)
}

func denialStatus(reason model.DenyReason) int {
	switch reason {
	case model.ReasonDisabled, model.ReasonExpired, model.ReasonLimitReached:
		return fiber.StatusGone
	case model.ReasonInternalError:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusForbidden
	}
}
