package handler

import (
	"errors"
	"net/http"

	"commune-chat/internal/transport/httpdto"
	commune_errors "commune-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, commune_errors.ErrInvalidInput), errors.Is(err, commune_errors.ErrInvalidReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, commune_errors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, commune_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, commune_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, commune_errors.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, commune_errors.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := httpStatus(err)
	c.JSON(status, httpdto.NewErrorResponse(err.Error(), errorCode(status)))
}

func errorCode(status int) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusServiceUnavailable:
		return "BACKEND_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
