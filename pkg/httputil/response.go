package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notifier/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response. AppErrors keep their message;
// anything else is reported as an internal error.
func RespondWithError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	message := "Internal server error"
	if appErr, ok := err.(*errors.AppError); ok && code != errors.ErrInternal {
		message = appErr.Message
	}

	c.AbortWithStatusJSON(StatusFor(code), Response{
		Success: false,
		Error: &Error{
			Code:    code.Reason(),
			Message: message,
		},
	})
}

// StatusFor maps an error code to the HTTP status it is reported with.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrBadRequest, errors.ErrDecode:
		return http.StatusBadRequest
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrTransport, errors.ErrHeartbeat:
		return http.StatusBadGateway
	case errors.ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
