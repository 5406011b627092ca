package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/careloop/outreach-api/pkg/errors"
)

// OrgIDKey is the gin context key the tenant middleware sets.
const OrgIDKey = "organization_id"

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes err as a JSON response, mapping application error codes to
// HTTP statuses. Unclassified errors are reported as internal without
// leaking their message.
func Error(c *gin.Context, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	case apperrors.ErrBadRequest, apperrors.ErrValidation:
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	case apperrors.ErrConflict:
		c.JSON(http.StatusConflict, NewErrorResponse(err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
	}
}

// OrgID returns the tenant set by the middleware. Routes behind the tenant
// group can rely on it being present.
func OrgID(c *gin.Context) uuid.UUID {
	return c.MustGet(OrgIDKey).(uuid.UUID)
}

// ActorID returns the acting user from the X-Actor-ID header, falling back
// to the nil UUID when absent.
func ActorID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetHeader("X-Actor-ID"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// UUIDParam parses a path parameter as a UUID.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
