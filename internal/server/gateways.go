package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	"github.com/satgate/satgate/internal/pricer"
	"github.com/satgate/satgate/pkg/db/pagination"
)

type createGatewayRequest struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	TargetURL    string        `json:"target_url"`
	DefaultPrice int64         `json:"default_price"`
	Rules        []pricer.Rule `json:"rules"`
}

type updateGatewayRequest struct {
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	TargetURL    *string        `json:"target_url,omitempty"`
	DefaultPrice *int64         `json:"default_price,omitempty"`
	Rules        *[]pricer.Rule `json:"rules,omitempty"`
}

func (s *Server) CreateGateway(c *gin.Context) {
	var req createGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.gatewaySvc.Create(c.Request.Context(), gatewaydomain.CreateRequest{
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		TargetURL:    strings.TrimSpace(req.TargetURL),
		DefaultPrice: req.DefaultPrice,
		Rules:        req.Rules,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListGateways(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.gatewaySvc.List(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetGateway(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.gatewaySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateGateway(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req updateGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.gatewaySvc.Update(c.Request.Context(), id, gatewaydomain.UpdateRequest{
		Name:         trimStringPtr(req.Name),
		Description:  trimStringPtr(req.Description),
		TargetURL:    trimStringPtr(req.TargetURL),
		DefaultPrice: req.DefaultPrice,
		Rules:        req.Rules,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateGateway(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.gatewaySvc.Activate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateGateway(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.gatewaySvc.Deactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
