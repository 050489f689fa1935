package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/shortener"
	"go.uber.org/zap"
)

const (
	DefaultExpirationDays = 30
	MaxExpirationDays     = 365
	MaxTimelineDays       = 365
)

// LinkService creates, resolves and manages short links.
type LinkService interface {
	Create(ctx context.Context, req shortener.CreateRequest, visitor shortener.Visitor) (*shortener.ShortLink, error)
	Resolve(ctx context.Context, code shortener.Code, visitor shortener.Visitor) (string, error)
	Get(ctx context.Context, code shortener.Code) (*shortener.ShortLink, error)
	Update(ctx context.Context, code shortener.Code, req shortener.UpdateRequest) (*shortener.ShortLink, error)
	Delete(ctx context.Context, code shortener.Code) error
}

// ReportService builds click analytics.
type ReportService interface {
	Report(ctx context.Context, code string) (*analytics.Report, error)
	Timeline(ctx context.Context, code string, days int) (*analytics.Timeline, error)
}

// URLHandler handles URL shortening operations.
type URLHandler struct {
	links   LinkService
	reports ReportService
	baseURL string
	logger  *zap.Logger
}

// NewURLHandler creates a new URL handler.
func NewURLHandler(links LinkService, reports ReportService, baseURL string, logger *zap.Logger) *URLHandler {
	return &URLHandler{
		links:   links,
		reports: reports,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Root reports that the API is serving.
func (h *URLHandler) Root(_ context.Context, _ *struct{}) (*MessageResponse, error) {
	resp := &MessageResponse{}
	resp.Body.Message = "URL shortener API is up and running"

	return resp, nil
}

func (h *URLHandler) CreateShortURL(ctx context.Context, req *CreateLinkRequest) (*CreateLinkResponse, error) {
	days := DefaultExpirationDays
	if req.Body.ExpirationDays != nil {
		days = *req.Body.ExpirationDays
	}

	if days < 1 || days > MaxExpirationDays {
		return nil, huma.Error400BadRequest("expiration_days must be between 1 and 365")
	}

	link, err := h.links.Create(ctx, shortener.CreateRequest{
		OriginalURL:    strings.TrimSpace(req.Body.OriginalURL),
		CustomAlias:    req.Body.CustomAlias,
		ExpirationDays: days,
	}, visitorFromContext(ctx))
	if err != nil {
		return nil, h.toHTTPError(err, "failed to create short url")
	}

	resp := &CreateLinkResponse{Body: h.linkBody(link)}
	resp.Location = resp.Body.ShortURL

	return resp, nil
}

func (h *URLHandler) RedirectToURL(ctx context.Context, req *CodeRequest) (*RedirectResponse, error) {
	target, err := h.links.Resolve(ctx, shortener.Code(req.Code), visitorFromContext(ctx))
	if err != nil {
		return nil, h.toHTTPError(err, "failed to resolve short url")
	}

	return &RedirectResponse{
		Status:       http.StatusTemporaryRedirect,
		Location:     target,
		CacheControl: "no-store",
	}, nil
}

func (h *URLHandler) GetURLInfo(ctx context.Context, req *CodeRequest) (*LinkResponse, error) {
	link, err := h.links.Get(ctx, shortener.Code(req.Code))
	if err != nil {
		return nil, h.toHTTPError(err, "failed to get short url")
	}

	return &LinkResponse{Body: h.linkBody(link)}, nil
}

func (h *URLHandler) UpdateShortURL(ctx context.Context, req *UpdateLinkRequest) (*LinkResponse, error) {
	if d := req.Body.ExpirationDays; d != nil && (*d < 1 || *d > MaxExpirationDays) {
		return nil, huma.Error400BadRequest("expiration_days must be between 1 and 365")
	}

	link, err := h.links.Update(ctx, shortener.Code(req.Code), shortener.UpdateRequest{
		CustomAlias:    req.Body.CustomAlias,
		ExpirationDays: req.Body.ExpirationDays,
		IsActive:       req.Body.IsActive,
	})
	if err != nil {
		return nil, h.toHTTPError(err, "failed to update short url")
	}

	return &LinkResponse{Body: h.linkBody(link)}, nil
}

func (h *URLHandler) DeleteShortURL(ctx context.Context, req *CodeRequest) (*MessageResponse, error) {
	if err := h.links.Delete(ctx, shortener.Code(req.Code)); err != nil {
		return nil, h.toHTTPError(err, "failed to delete short url")
	}

	resp := &MessageResponse{}
	resp.Body.Message = "URL deleted successfully"

	return resp, nil
}

func (h *URLHandler) GetAnalytics(ctx context.Context, req *CodeRequest) (*AnalyticsResponse, error) {
	report, err := h.reports.Report(ctx, req.Code)
	if err != nil {
		return nil, h.toHTTPError(err, "failed to build analytics")
	}

	return &AnalyticsResponse{Body: report}, nil
}

func (h *URLHandler) GetTimeline(ctx context.Context, req *TimelineRequest) (*TimelineResponse, error) {
	if req.Days < 1 || req.Days > MaxTimelineDays {
		return nil, huma.Error400BadRequest("days must be between 1 and 365")
	}

	timeline, err := h.reports.Timeline(ctx, req.Code, req.Days)
	if err != nil {
		return nil, h.toHTTPError(err, "failed to build timeline")
	}

	return &TimelineResponse{Body: timeline}, nil
}

func (h *URLHandler) linkBody(link *shortener.ShortLink) LinkBody {
	return LinkBody{
		ShortURL:    h.baseURL + "/r/" + string(link.Code),
		ShortCode:   string(link.Code),
		OriginalURL: link.OriginalURL,
		CustomAlias: link.CustomAlias,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
		Clicks:      link.Clicks,
		IsActive:    link.IsActive,
	}
}

// toHTTPError maps service errors to HTTP errors. Unknown errors are logged
// and hidden behind msg.
func (h *URLHandler) toHTTPError(err error, msg string) error {
	switch {
	case errors.Is(err, shortener.ErrInvalidURL), errors.Is(err, shortener.ErrInvalidAlias):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, shortener.ErrNotFound):
		return huma.Error404NotFound("short url not found")
	case errors.Is(err, shortener.ErrConflict):
		return huma.Error409Conflict("custom alias already in use")
	case errors.Is(err, shortener.ErrExpired):
		return huma.Error410Gone("short url has expired")
	case errors.Is(err, shortener.ErrGone):
		return huma.Error410Gone("short url is deactivated")
	case errors.Is(err, shortener.ErrRateLimited):
		return huma.Error429TooManyRequests("rate limit exceeded")
	default:
		h.logger.Error(msg, zap.Error(err))

		return huma.Error500InternalServerError(msg)
	}
}
