package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/satgate/satgate/pkg/db/pagination"
)

func (s *Server) ListGatewayLogs(c *gin.Context) {
	gatewayID := strings.TrimSpace(c.Param("id"))

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.requestLogSvc.ListForGateway(c.Request.Context(), gatewayID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
