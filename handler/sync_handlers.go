// ABOUTME: Handlers for full sync triggering, status polling and the online signal
// ABOUTME: Maps budget refusals and remote failures onto distinct HTTP statuses

package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"reader-sync/service"
)

func triggerSyncHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := deps.FullSync.PerformFullSync(c.Request().Context())
		if err != nil {
			var rateErr *service.RateLimitError
			if errors.As(err, &rateErr) {
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":     rateErr.Error(),
					"remaining": rateErr.Remaining,
					"reset_at":  rateErr.ResetAt,
				})
			}

			var syncErr *service.SyncError
			if errors.As(err, &syncErr) {
				return c.JSON(http.StatusBadGateway, map[string]string{"error": syncErr.Message})
			}
			if errors.Is(err, service.ErrSyncTimeout) {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "sync did not complete in time")
			}

			deps.Logger.Error("Full sync failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "sync failed")
		}

		return c.JSON(http.StatusOK, deps.FullSync.Status())
	}
}

func syncStatusHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, deps.FullSync.Status())
	}
}

// onlineHandler is the connectivity-restored signal: it kicks off a background
// queue drain and returns immediately.
func onlineHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		deps.Queue.NotifyOnline()
		return c.NoContent(http.StatusAccepted)
	}
}
