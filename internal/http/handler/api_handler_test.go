package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/hoplink/hoplink/internal/app/repository"
	"github.com/hoplink/hoplink/internal/app/service"
)

// stubLinkService is a function-field LinkService; unset fields are
// not-found no-ops.
type stubLinkService struct {
	createFn func(ctx context.Context, input service.CreateLinkInput) (*model.Link, error)
}

func (s *stubLinkService) CreateLink(ctx context.Context, input service.CreateLinkInput) (*model.Link, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, repository.ErrLinkNotFound
}

func (s *stubLinkService) GetLink(context.Context, string) (*model.Link, error) {
	return nil, repository.ErrLinkNotFound
}

func (s *stubLinkService) ListLinks(context.Context, int, int) ([]model.Link, error) {
	return nil, nil
}

func (s *stubLinkService) UpdateLink(context.Context, string, service.UpdateLinkInput) (*model.Link, error) {
	return nil, repository.ErrLinkNotFound
}

func (s *stubLinkService) DeleteLink(context.Context, string, bool) error {
	return repository.ErrLinkNotFound
}

func apiTestApp(svc service.LinkService) *fiber.App {
	h := NewAPIHandler(APIDeps{LinkService: svc})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.Register(app)
	return app
}

// A lost race for a code or alias surfaces from the repository as
// ErrIdentifierTaken no matter which writer hit it; the API answers 409,
// never a 500.
func TestCreateLink_IdentifierTakenMapsToConflict(t *testing.T) {
	svc := &stubLinkService{
		createFn: func(context.Context, service.CreateLinkInput) (*model.Link, error) {
			return nil, fmt.Errorf("create link: %w", repository.ErrIdentifierTaken)
		},
	}
	app := apiTestApp(svc)

	body := strings.NewReader(`{"destination":"https://example.com/landing","alias":"taken"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/links/", body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(payload.Error, "taken") {
		t.Errorf("expected a collision message, got %q", payload.Error)
	}
}

func TestCreateLink_MissingDestinationIsBadRequest(t *testing.T) {
	app := apiTestApp(&stubLinkService{})

	body := strings.NewReader(`{"alias":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/links/", body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
