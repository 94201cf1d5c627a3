package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/internal/earnerctx"
	"github.com/satgate/satgate/pkg/db/pagination"
)

type registerEarnerRequest struct {
	Name          string `json:"name"`
	PayoutAddress string `json:"payout_address"`
}

// RegisterEarner creates an account and its first API key. The raw key is
// in this response and nowhere else.
func (s *Server) RegisterEarner(c *gin.Context) {
	var req registerEarnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.earnerSvc.Register(c.Request.Context(), earnerdomain.RegisterRequest{
		Name:          strings.TrimSpace(req.Name),
		PayoutAddress: strings.TrimSpace(req.PayoutAddress),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetMe(c *gin.Context) {
	earnerID, ok := earnerctx.EarnerIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.earnerSvc.Get(c.Request.Context(), earnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateMe(c *gin.Context) {
	earnerID, ok := earnerctx.EarnerIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req earnerdomain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.earnerSvc.UpdateProfile(c.Request.Context(), earnerID, earnerdomain.UpdateProfileRequest{
		Name:          trimStringPtr(req.Name),
		PayoutAddress: trimStringPtr(req.PayoutAddress),
		SweepOptIn:    req.SweepOptIn,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetMyBalances re-reads the row so the numbers are current, not the
// snapshot taken at authentication.
func (s *Server) GetMyBalances(c *gin.Context) {
	earnerID, ok := earnerctx.EarnerIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	earner, err := s.earnerSvc.Get(c.Request.Context(), earnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": earnerdomain.Balances{
		Available: earner.Balance,
		Reserved:  earner.Reserved,
		AsOf:      time.Now().UTC(),
	}})
}

func (s *Server) ListEarners(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.earnerSvc.List(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
