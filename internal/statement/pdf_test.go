package statement

import (
	"bytes"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	requestlogdomain "github.com/satgate/satgate/internal/requestlog/domain"
)

func TestRenderPDF(t *testing.T) {
	st := &requestlogdomain.Statement{
		EarnerID: snowflake.ID(42),
		From:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Rows: []requestlogdomain.StatementRow{
			{GatewayID: "demo-api", GatewayName: "Demo API", Requests: 120, GrossSats: 600, FeeSats: 60, NetSats: 540},
			{GatewayID: "weather", GatewayName: "", Requests: 10, GrossSats: 50, FeeSats: 5, NetSats: 45},
		},
		TotalRequests: 130,
		TotalGross:    650,
		TotalFees:     65,
		TotalNet:      585,
	}

	doc, err := RenderPDF(st, "alice")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(doc) == 0 {
		t.Fatal("expected non-empty document")
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Fatalf("expected PDF magic, got %q", doc[:4])
	}
}

func TestRenderPDFEmptyPeriod(t *testing.T) {
	st := &requestlogdomain.Statement{
		From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	doc, err := RenderPDF(st, "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Fatal("expected PDF magic")
	}
}

func TestRenderPDFNilStatement(t *testing.T) {
	if _, err := RenderPDF(nil, "alice"); err == nil {
		t.Fatal("expected error for nil statement")
	}
}
