package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	proxydomain "github.com/satgate/satgate/internal/proxy/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
)

type createSessionRequest struct {
	Name string `json:"name"`
}

// CreateSession mints an empty prepaid session. The raw token appears in
// this response and nowhere else.
func (s *Server) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.sessionSvc.Create(c.Request.Context(), sessiondomain.CreateRequest{
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetSessionBalance(c *gin.Context) {
	token := strings.TrimSpace(c.GetHeader(proxydomain.SessionTokenHeader))
	if token == "" {
		token = strings.TrimSpace(c.Query(proxydomain.SessionTokenParam))
	}
	if token == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.sessionSvc.Balance(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
