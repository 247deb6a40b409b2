// ABOUTME: Handlers for article listing and read/star mutations
// ABOUTME: Parses scope, filter and cursor parameters and maps service errors to HTTP

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"reader-sync/models"
	"reader-sync/repository"
	"reader-sync/service"
)

// mutationRequest is the body for read/unread/star mutations.
type mutationRequest struct {
	ArticleIDs []uuid.UUID `json:"article_ids"`
	MarkType   string      `json:"mark_type,omitempty"`
	FeedID     *uuid.UUID  `json:"feed_id,omitempty"`
	FolderID   *uuid.UUID  `json:"folder_id,omitempty"`
	Filter     string      `json:"filter,omitempty"`
}

func listArticlesHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := service.ListRequest{
			SessionID: c.Request().Header.Get(sessionHeader),
			Filter:    models.ReadStatusFilter(c.QueryParam("filter")),
		}
		if req.Filter == "" {
			req.Filter = models.FilterUnread
		}
		if !req.Filter.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown filter value")
		}

		scope, err := parseScope(c.QueryParam("feed_id"), c.QueryParam("folder_id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Scope = scope

		if raw := c.QueryParam("cursor"); raw != "" {
			cursor, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "cursor must be an RFC3339 timestamp")
			}
			req.Cursor = &cursor
		}

		page, err := deps.Engine.ListArticles(c.Request().Context(), req)
		if err != nil {
			if errors.Is(err, service.ErrStaleQuery) {
				// A newer request owns the view now; nothing to render.
				return c.NoContent(http.StatusNoContent)
			}
			deps.Logger.Error("Article listing failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to list articles")
		}

		return c.JSON(http.StatusOK, page)
	}
}

func markReadHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req mutationRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if len(req.ArticleIDs) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "article_ids is required")
		}

		markType := models.MarkType(req.MarkType)
		switch markType {
		case models.MarkManual, models.MarkAuto, models.MarkBulk:
		case "":
			markType = models.MarkManual
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unknown mark_type")
		}

		mc := markContext(c, req)
		if err := deps.ReadState.MarkRead(c.Request().Context(), mc, req.ArticleIDs, markType); err != nil {
			deps.Logger.Error("Mark read failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark articles read")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func markUnreadHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req mutationRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if len(req.ArticleIDs) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "article_ids is required")
		}

		mc := markContext(c, req)
		if err := deps.ReadState.MarkUnread(c.Request().Context(), mc, req.ArticleIDs); err != nil {
			deps.Logger.Error("Mark unread failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark articles unread")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleStarHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req mutationRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if len(req.ArticleIDs) != 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "exactly one article id is required")
		}

		mutated, err := deps.ReadState.ToggleStar(c.Request().Context(), req.ArticleIDs[0])
		if err != nil {
			if errors.Is(err, repository.ErrArticleNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "article not found")
			}
			deps.Logger.Error("Star toggle failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to toggle star")
		}
		return c.JSON(http.StatusOK, mutated)
	}
}

func markAllReadHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req mutationRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}

		mc := markContext(c, req)
		marked, err := deps.ReadState.MarkAllRead(c.Request().Context(), mc)
		if err != nil {
			deps.Logger.Error("Mark all read failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark all read")
		}
		return c.JSON(http.StatusOK, map[string]int{"marked": marked})
	}
}

func markContext(c echo.Context, req mutationRequest) service.MarkContext {
	filter := models.ReadStatusFilter(req.Filter)
	if !filter.Valid() {
		filter = models.FilterUnread
	}
	return service.MarkContext{
		SessionID: c.Request().Header.Get(sessionHeader),
		Scope:     models.ArticleScope{FeedID: req.FeedID, FolderID: req.FolderID},
		Filter:    filter,
	}
}

func parseScope(feedRaw, folderRaw string) (models.ArticleScope, error) {
	var scope models.ArticleScope
	if feedRaw != "" {
		id, err := uuid.Parse(feedRaw)
		if err != nil {
			return scope, errors.New("feed_id must be a UUID")
		}
		scope.FeedID = &id
	}
	if folderRaw != "" {
		id, err := uuid.Parse(folderRaw)
		if err != nil {
			return scope, errors.New("folder_id must be a UUID")
		}
		scope.FolderID = &id
	}
	return scope, nil
}
