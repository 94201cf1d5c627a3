package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunSweep triggers one payout sweep on demand, the same pass the
// scheduler runs on its interval.
func (s *Server) RunSweep(c *gin.Context) {
	result, err := s.payoutSvc.Sweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) Ready(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
