package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers all URL shortener routes.
func RegisterRoutes(api huma.API, urlHandler *URLHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Service status message",
		Tags:        []string{"Status"},
	}, urlHandler.Root)

	huma.Register(api, huma.Operation{
		OperationID:   "create-short-url",
		Method:        http.MethodPost,
		Path:          "/urls",
		Summary:       "Create short URL",
		Description:   "Creates a short URL with a generated code or a custom alias. Limited per client IP.",
		Tags:          []string{"URLs"},
		DefaultStatus: http.StatusCreated,
	}, urlHandler.CreateShortURL)

	huma.Register(api, huma.Operation{
		OperationID: "redirect",
		Method:      http.MethodGet,
		Path:        "/urls/{code}",
		Summary:     "Redirect to original URL",
		Description: "Redirects to the original URL and records the click.",
		Tags:        []string{"URLs"},
	}, urlHandler.RedirectToURL)

	huma.Register(api, huma.Operation{
		OperationID: "redirect-short",
		Method:      http.MethodGet,
		Path:        "/r/{code}",
		Summary:     "Redirect to original URL",
		Description: "Short form of GET /urls/{code}.",
		Tags:        []string{"URLs"},
	}, urlHandler.RedirectToURL)

	huma.Register(api, huma.Operation{
		OperationID: "get-short-url",
		Method:      http.MethodGet,
		Path:        "/urls/{code}/info",
		Summary:     "Get short URL",
		Tags:        []string{"URLs"},
	}, urlHandler.GetURLInfo)

	huma.Register(api, huma.Operation{
		OperationID: "update-short-url",
		Method:      http.MethodPut,
		Path:        "/urls/{code}",
		Summary:     "Update short URL",
		Description: "Changes alias, expiration or active flag. Setting an alias renames the short code.",
		Tags:        []string{"URLs"},
	}, urlHandler.UpdateShortURL)

	huma.Register(api, huma.Operation{
		OperationID: "delete-short-url",
		Method:      http.MethodDelete,
		Path:        "/urls/{code}",
		Summary:     "Delete short URL",
		Description: "Deletes the short URL and its click history.",
		Tags:        []string{"URLs"},
	}, urlHandler.DeleteShortURL)

	huma.Register(api, huma.Operation{
		OperationID: "get-analytics",
		Method:      http.MethodGet,
		Path:        "/urls/{code}/analytics",
		Summary:     "Click analytics",
		Tags:        []string{"Analytics"},
	}, urlHandler.GetAnalytics)

	huma.Register(api, huma.Operation{
		OperationID: "get-timeline",
		Method:      http.MethodGet,
		Path:        "/urls/{code}/timeline",
		Summary:     "Clicks per day",
		Tags:        []string{"Analytics"},
	}, urlHandler.GetTimeline)
}
