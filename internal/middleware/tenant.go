package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careloop/outreach-api/internal/handler"
)

const HeaderXOrganizationID = "X-Organization-ID"

// Tenant requires a valid organization ID header and stashes it for
// handlers. Every API route runs behind this; data access is always scoped
// to the resolved organization.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderXOrganizationID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewErrorResponse("missing "+HeaderXOrganizationID+" header"))
			return
		}
		orgID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewErrorResponse("invalid "+HeaderXOrganizationID+" header"))
			return
		}
		c.Set(handler.OrgIDKey, orgID)
		c.Next()
	}
}
