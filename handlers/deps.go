package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"teamdrive/logger"
	"teamdrive/services"
	"teamdrive/utils"

	"github.com/gin-gonic/gin"
)

var appServices *services.Container

func SetServices(container *services.Container) {
	appServices = container
}

func getServices() *services.Container {
	if appServices == nil {
		panic("services container is not initialized")
	}
	return appServices
}

func respondServiceError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	var appErr *services.AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPCode >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.FullPath(), "kind", appErr.Kind, "error", appErr)
		}
		utils.ErrorWithKind(c, appErr.HTTPCode, string(appErr.Kind), appErr.Reason, appErr.Message, appErr.Data)
		return true
	}
	logger.Error("request failed", "path", c.FullPath(), "error", err)
	utils.Error(c, http.StatusInternalServerError, "Internal error")
	return true
}

// pathID parses a numeric path parameter. Anything else names no resource.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Error(c, http.StatusNotFound, "Not found")
		return 0, false
	}
	return uint(id), true
}

// cursorQuery reads the optional pagination cursor.
func cursorQuery(c *gin.Context) (uint, bool) {
	raw := c.Query("cursor")
	if raw == "" {
		return 0, true
	}
	cursor, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid cursor")
		return 0, false
	}
	return uint(cursor), true
}
