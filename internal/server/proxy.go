package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	challengedomain "github.com/satgate/satgate/internal/challenge/domain"
	proxydomain "github.com/satgate/satgate/internal/proxy/domain"
)

// HandleProxy runs one metered round-trip. Payment failures never reach the
// generic error middleware: a 402 is negotiated here, as an HTML payment
// page for browsers or an L402 challenge for machine callers.
func (s *Server) HandleProxy(c *gin.Context) {
	req := proxydomain.Request{
		GatewayID:     strings.TrimSpace(c.Param("gateway_id")),
		SubPath:       strings.TrimPrefix(c.Param("path"), "/"),
		Method:        c.Request.Method,
		Query:         c.Request.URL.Query(),
		Header:        c.Request.Header,
		Body:          c.Request.Body,
		SessionToken:  sessionTokenFromRequest(c),
		Authorization: c.GetHeader("Authorization"),
	}

	resp, err := s.proxySvc.Execute(c.Request.Context(), req)
	if err != nil {
		var payErr *proxydomain.PaymentRequiredError
		if errors.As(err, &payErr) {
			s.issueChallenge(c, payErr)
			return
		}
		AbortWithError(c, err)
		return
	}
	defer resp.Body.Close()

	header := c.Writer.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	header.Set(proxydomain.CostHeader, strconv.FormatInt(resp.Cost, 10))
	if resp.BalanceRemaining != nil {
		header.Set(proxydomain.BalanceHeader, strconv.FormatInt(*resp.BalanceRemaining, 10))
	}

	c.Status(resp.Status)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// Headers are gone; all we can do is stop streaming.
		c.Abort()
	}
}

func (s *Server) issueChallenge(c *gin.Context, payErr *proxydomain.PaymentRequiredError) {
	if !s.allowChallenge(c) {
		return
	}

	chReq := challengedomain.Request{
		Gateway: payErr.Gateway,
		Path:    payErr.Path,
		Price:   payErr.Price,
		Session: payErr.Session,
	}

	if wantsHTML(c) {
		out, err := s.challengeSvc.Interactive(c.Request.Context(), chReq)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Data(http.StatusPaymentRequired, "text/html; charset=utf-8", []byte(out.HTML))
		return
	}

	out, err := s.challengeSvc.Programmatic(c.Request.Context(), chReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if header := out.ChallengeHeader(); header != "" {
		c.Header("WWW-Authenticate", header)
	}
	c.JSON(http.StatusPaymentRequired, gin.H{
		"error": gin.H{
			"type":    "payment_required",
			"message": "payment required",
		},
		"gateway_id":      out.GatewayID,
		"path":            out.Path,
		"price_sats":      out.Price,
		"voucher":         out.Voucher,
		"payment_hash":    out.PaymentHash,
		"payment_request": out.PaymentRequest,
		"expires_at":      out.ExpiresAt,
		"rail_down":       out.RailDown,
	})
}

// allowChallenge applies the per-IP issuance limit. Every challenge can
// mint a session row and a rail invoice, so unpaid traffic is throttled
// before it reaches either.
func (s *Server) allowChallenge(c *gin.Context) bool {
	result, err := s.challengeLimiter.Allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		// Redis trouble must not take the paywall down with it.
		return true
	}
	if result.Allowed {
		return true
	}

	if result.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
	}
	AbortWithError(c, ErrTooManyRequests)
	return false
}

func sessionTokenFromRequest(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(proxydomain.SessionTokenHeader)); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query(proxydomain.SessionTokenParam))
}

// wantsHTML sniffs browser traffic by the Accept header. API clients send
// application/json or nothing and get the machine challenge.
func wantsHTML(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
			return true
		}
	}
	return false
}
