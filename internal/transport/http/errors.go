package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

func statusForCode(code string) int {
	switch code {
	case core.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case core.ErrCodeForbidden:
		return http.StatusForbidden
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeValidation, core.ErrCodeBadRequest, core.ErrCodeNotInRoom:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a domain error with its status code.
func writeError(c *gin.Context, err error) {
	ce := core.AsCoreError(err)
	c.JSON(statusForCode(ce.Code), ErrorResponse{Code: ce.Code, Error: ce.Message})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: core.ErrCodeBadRequest, Error: msg})
}
