// ABOUTME: HTTP route registration for the sync engine's REST surface
// ABOUTME: Handlers stay thin; all reconciliation logic lives in the service layer

package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"reader-sync/service"
)

// sessionHeader carries the browsing session id used for view-state tracking.
const sessionHeader = "X-Session-ID"

// Dependencies bundles the services the HTTP surface exposes.
type Dependencies struct {
	Engine    *service.ArticleQueryEngine
	ReadState *service.ReadStateService
	FullSync  *service.FullSyncService
	Queue     *service.OutboundQueueService
	Steward   *service.StorageStewardService
	Logger    *slog.Logger
}

// NewRouter builds the echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	v1 := e.Group("/v1")

	v1.GET("/articles", listArticlesHandler(deps))
	v1.POST("/articles/read", markReadHandler(deps))
	v1.POST("/articles/unread", markUnreadHandler(deps))
	v1.POST("/articles/star", toggleStarHandler(deps))
	v1.POST("/articles/read-all", markAllReadHandler(deps))

	v1.POST("/sync", triggerSyncHandler(deps))
	v1.GET("/sync/status", syncStatusHandler(deps))
	v1.POST("/online", onlineHandler(deps))

	v1.GET("/storage/status", storageStatusHandler(deps))
	v1.POST("/storage/migrate", migrateStorageHandler(deps))
	v1.POST("/storage/recover", recoverStorageHandler(deps))

	v1.GET("/health", healthHandler())

	return e
}

func healthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	}
}
