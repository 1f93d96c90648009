package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hoplink/hoplink/internal/app/model"
	"github.com/hoplink/hoplink/internal/app/repository"
	"golang.org/x/crypto/bcrypt"
)

// ErrOwnershipConflict signals a link assigned to both a user and a team.
var ErrOwnershipConflict = errors.New("link must belong to exactly one of user or team")

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	GetLink(ctx context.Context, code string) (*model.Link, error)
	ListLinks(ctx context.Context, limit, offset int) ([]model.Link, error)
	UpdateLink(ctx context.Context, code string, input UpdateLinkInput) (*model.Link, error)
	DeleteLink(ctx context.Context, code string, hard bool) error
}

type linkService struct {
	repo   repository.LinkRepository
	events repository.ClickEventRepository
	filter *IdentifierFilter
}

// NewLinkService returns a service implementation backed by the given
// repositories. The identifier filter may be nil (tests).
func NewLinkService(repo repository.LinkRepository, events repository.ClickEventRepository, filter *IdentifierFilter) LinkService {
	return &linkService{repo: repo, events: events, filter: filter}
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	Code        string
	Alias       *string
	Destination string

	OwnerUserID *string
	OwnerTeamID *string
	DomainID    *string
	FolderID    *string

	Active     bool
	ExpiresAt  *time.Time
	ClickLimit *int64
	Password   string
	Devices    []model.Device
	Schedule   []model.TimeWindow
	GeoMode    model.GeoMode
	Countries  []string

	TrackingParams map[string]string
}

// UpdateLinkInput captures fields that can be changed on an existing link.
type UpdateLinkInput struct {
	Alias       *string
	Destination *string
	Active      *bool
	ExpiresAt   *time.Time
	ClickLimit  *int64
	Password    *string
	Devices     []model.Device
	Schedule    []model.TimeWindow
	GeoMode     *model.GeoMode
	Countries   []string
	Tracking    map[string]string
	FolderID    *string
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	if input.OwnerUserID != nil && input.OwnerTeamID != nil {
		return nil, ErrOwnershipConflict
	}

	code := input.Code
	if code == "" {
		code = generateCode(7)
	}

	link := &model.Link{
		ID:             uuid.New().String(),
		Code:           code,
		Alias:          input.Alias,
		Destination:    input.Destination,
		OwnerUserID:    input.OwnerUserID,
		OwnerTeamID:    input.OwnerTeamID,
		DomainID:       input.DomainID,
		FolderID:       input.FolderID,
		Active:         input.Active,
		ExpiresAt:      input.ExpiresAt,
		ClickLimit:     input.ClickLimit,
		Devices:        input.Devices,
		Schedule:       input.Schedule,
		GeoMode:        input.GeoMode,
		GeoCountries:   input.Countries,
		TrackingParams: input.TrackingParams,
	}

	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hashed := string(hash)
		link.PasswordHash = &hashed
	}

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	if s.filter != nil {
		s.filter.Add(link.Code)
		if link.Alias != nil && *link.Alias != "" {
			s.filter.Add(*link.Alias)
		}
	}
	return link, nil
}

func (s *linkService) GetLink(ctx context.Context, code string) (*model.Link, error) {
	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, limit, offset int) ([]model.Link, error) {
	links, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (s *linkService) UpdateLink(ctx context.Context, code string, input UpdateLinkInput) (*model.Link, error) {
	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}

	if input.Alias != nil {
		link.Alias = input.Alias
	}
	if input.Destination != nil {
		link.Destination = *input.Destination
	}
	if input.Active != nil {
		link.Active = *input.Active
	}
	if input.ExpiresAt != nil {
		link.ExpiresAt = input.ExpiresAt
	}
	if input.ClickLimit != nil {
		link.ClickLimit = input.ClickLimit
	}
	if input.Password != nil {
		if *input.Password == "" {
			link.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			hashed := string(hash)
			link.PasswordHash = &hashed
		}
	}
	if input.Devices != nil {
		link.Devices = input.Devices
	}
	if input.Schedule != nil {
		link.Schedule = input.Schedule
	}
	if input.GeoMode != nil {
		link.GeoMode = *input.GeoMode
	}
	if input.Countries != nil {
		link.GeoCountries = input.Countries
	}
	if input.Tracking != nil {
		link.TrackingParams = input.Tracking
	}
	if input.FolderID != nil {
		link.FolderID = input.FolderID
	}

	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}

	if s.filter != nil && link.Alias != nil && *link.Alias != "" {
		s.filter.Add(*link.Alias)
	}
	return link, nil
}

// DeleteLink soft-deletes by default. The hard path erases the row and
// its raw event log.
func (s *linkService) DeleteLink(ctx context.Context, code string, hard bool) error {
	if !hard {
		if err := s.repo.SoftDelete(ctx, code); err != nil {
			return fmt.Errorf("soft delete link: %w", err)
		}
		return nil
	}

	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("load link: %w", err)
	}
	if err := s.repo.HardDelete(ctx, code); err != nil {
		return fmt.Errorf("hard delete link: %w", err)
	}
	if s.events != nil {
		if _, err := s.events.DeleteByLink(ctx, link.ID); err != nil {
			return fmt.Errorf("delete click events: %w", err)
		}
	}
	return nil
}

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func generateCode(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; fall back to a UUID slug.
		return uuid.New().String()[:length]
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
