package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Detail string      `json:"detail"`
	Kind   string      `json:"kind,omitempty"`
	Reason string      `json:"reason,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Detail writes a bare {"detail": message} body.
func Detail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"detail": message})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorBody{Detail: message, Kind: kindForStatus(status)})
}

func ErrorWithKind(c *gin.Context, status int, kind, reason, message string, data interface{}) {
	c.JSON(status, ErrorBody{Detail: message, Kind: kind, Reason: reason, Data: data})
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "InvalidInput"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusConflict:
		return "Conflict"
	}
	return "Internal"
}
