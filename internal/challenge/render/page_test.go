package render_test

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/satgate/satgate/internal/challenge/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLWithInvoice(t *testing.T) {
	r := render.NewPageRenderer()

	qr, err := render.InvoiceQR("lnbc10n1exampleinvoice")
	require.NoError(t, err)

	html, err := r.RenderHTML(render.PageInput{
		GatewayName:    "Weather API",
		Path:           "/premium/report",
		PriceSats:      25,
		SessionToken:   "st_abc123",
		PaymentRequest: "lnbc10n1exampleinvoice",
		QRDataURI:      qr,
		StatusURL:      "/v1/topups/42",
		TokenParam:     "session_token",
		PollIntervalMS: 1000,
		PollLimit:      120,
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Weather API")
	assert.Contains(t, html, "25 sats")
	assert.Contains(t, html, "lnbc10n1exampleinvoice")
	assert.Contains(t, html, "data:image/png;base64,")
	assert.Contains(t, html, "/v1/topups/42")
	assert.Contains(t, html, "st_abc123")
	assert.NotContains(t, html, "temporarily unavailable")
}

func TestRenderHTMLRailDown(t *testing.T) {
	r := render.NewPageRenderer()

	html, err := r.RenderHTML(render.PageInput{
		GatewayName: "Weather API",
		Path:        "/premium/report",
		PriceSats:   25,
		TokenParam:  "session_token",
		RailDown:    true,
	})
	require.NoError(t, err)

	assert.Contains(t, html, "temporarily unavailable")
	assert.NotContains(t, html, `id="bolt11"`)
	assert.NotContains(t, html, "Copy invoice")
	assert.Contains(t, html, "manual-token")
}

func TestRenderHTMLEscapesUntrustedValues(t *testing.T) {
	r := render.NewPageRenderer()

	html, err := r.RenderHTML(render.PageInput{
		GatewayName:    `Weather</h1><script>alert(1)</script>`,
		Path:           "/a",
		PriceSats:      1,
		SessionToken:   `st_x"</script><script>alert(2)</script>`,
		PaymentRequest: "lnbc1",
		TokenParam:     "session_token",
	})
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.NotContains(t, html, "</script><script>alert(2)")
}

func TestInvoiceQR(t *testing.T) {
	uri, err := render.InvoiceQR("lnbc250n1pexampleinvoicepayload")
	require.NoError(t, err)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(string(uri), prefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(string(uri), prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 240, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}
