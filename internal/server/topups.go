package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	topupdomain "github.com/satgate/satgate/internal/topup/domain"
)

type createTopupRequest struct {
	SessionToken string `json:"session_token"`
	Amount       int64  `json:"amount"`
}

func (s *Server) CreateTopup(c *gin.Context) {
	var req createTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.topupSvc.Create(c.Request.Context(), topupdomain.CreateRequest{
		SessionToken: strings.TrimSpace(req.SessionToken),
		Amount:       req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// GetTopupStatus is the poll target of the payment page. It settles a paid
// invoice on the spot, so the first poll after payment already reports the
// credited balance.
func (s *Server) GetTopupStatus(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp, err := s.topupSvc.Status(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topup_id":    resp.TopupID,
		"status":      resp.Status,
		"new_balance": resp.NewBalance,
	})
}
