package api

import (
	"errors"
	"net/http"

	"farecraft/models"
	"farecraft/storage"

	"github.com/gin-gonic/gin"
)

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrRunInProgress):
		return http.StatusTooManyRequests
	}

	var classified *models.Error
	var pipeline *models.PipelineError
	if !errors.As(err, &classified) && !errors.As(err, &pipeline) {
		return http.StatusInternalServerError
	}
	switch models.KindOf(err) {
	case models.KindFatal:
		return http.StatusBadRequest
	case models.KindPipelineTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests, http.StatusConflict:
		return "run_in_progress"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusBadGateway:
		return "upstream_error"
	default:
		return "server_error"
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	c.JSON(status, gin.H{"error": errorCode(status), "error_description": err.Error()})
}
