package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the uniform JSON envelope returned by management endpoints.
type Body struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a 200 response with the given message and payload.
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Message: message, Data: data})
}

// Fail writes a 400 response. The underlying error, if any, is included
// verbatim; callers must not pass errors carrying secrets.
func Fail(c *gin.Context, message string, err error) {
	FailWithStatus(c, http.StatusBadRequest, message, err)
}

// NotFound writes a 404 response.
func NotFound(c *gin.Context, message string) {
	FailWithStatus(c, http.StatusNotFound, message, nil)
}

// Internal writes a 500 response with a generic message; the detailed error
// belongs in the log, not on the wire.
func Internal(c *gin.Context, message string) {
	FailWithStatus(c, http.StatusInternalServerError, message, nil)
}

// FailWithStatus writes an error response with an explicit status code.
func FailWithStatus(c *gin.Context, status int, message string, err error) {
	body := Body{Success: false, Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	c.JSON(status, body)
}
