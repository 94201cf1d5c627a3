package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/satgate/satgate/internal/earnerctx"
	"github.com/satgate/satgate/internal/statement"
)

func (s *Server) GetStatement(c *gin.Context) {
	from, to, err := statementRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.requestLogSvc.Statement(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStatementPDF(c *gin.Context) {
	from, to, err := statementRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	st, err := s.requestLogSvc.Statement(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	name := ""
	if earner, ok := earnerctx.EarnerFromContext(c.Request.Context()); ok {
		name = earner.Name
	}

	doc, err := statement.RenderPDF(st, name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("statement-%s-%s.pdf",
		from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// statementRange parses ?from and ?to, defaulting to the last 30 days. The
// upper bound is exclusive.
func statementRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("from", "invalid_from", "invalid from")
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("to", "invalid_to", "invalid to")
	}

	end := now
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -30)
	if from != nil {
		start = *from
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, newValidationError("from", "invalid_range", "from must be before to")
	}
	return start, end, nil
}
