// ABOUTME: Handlers for storage quota status, legacy migration and cache recovery
// ABOUTME: Migration and recovery are operator-triggered, not part of the sync cycle

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func storageStatusHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := deps.Steward.CheckQuota(c.Request().Context())
		if err != nil {
			deps.Logger.Error("Storage status check failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to check storage")
		}
		return c.JSON(http.StatusOK, status)
	}
}

func migrateStorageHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		drop := c.QueryParam("drop") == "true"

		report, err := deps.Steward.MigrateLegacyStores(c.Request().Context(), drop)
		if err != nil {
			deps.Logger.Error("Legacy migration failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "migration failed")
		}
		return c.JSON(http.StatusOK, report)
	}
}

func recoverStorageHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		recovered, err := deps.Steward.RecoverCorruptCache(c.Request().Context())
		if err != nil {
			deps.Logger.Error("Cache recovery failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "recovery failed")
		}
		return c.JSON(http.StatusOK, map[string]bool{"recovered": recovered})
	}
}
