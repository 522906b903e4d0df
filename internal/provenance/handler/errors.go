package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/provenance/internal/policy"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"github.com/jmerrifield20/provenance/internal/provenance/service"
	"go.uber.org/zap"
)

// statusFor maps a service error kind to an HTTP status. Authorization
// failures are 401 for guests and 403 for authenticated actors.
func statusFor(kind string, actor *model.Account) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		if actor == nil {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case service.KindTransition, service.KindConflict:
		return http.StatusConflict
	case service.KindImplausible:
		return http.StatusUnprocessableEntity
	case service.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": ..., "kind": ...}. Internal errors are
// logged and their message withheld.
func writeError(c *gin.Context, logger *zap.Logger, actor *model.Account, err error) {
	kind := service.Kind(err)
	status := statusFor(kind, actor)

	body := gin.H{"kind": kind, "error": err.Error()}
	var denial *policy.DenialError
	if errors.As(err, &denial) {
		body["reason"] = denial.Reason
	}
	if kind == service.KindInternal {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}
