// Package statement renders earning statements as PDF documents for
// download from the management API.
package statement

import (
	"fmt"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	requestlogdomain "github.com/satgate/satgate/internal/requestlog/domain"
)

const dateLayout = "2006-01-02"

// RenderPDF builds the statement document: one line per gateway plus the
// period totals, all amounts in sats.
func RenderPDF(st *requestlogdomain.Statement, earnerName string) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("nil statement")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(12, "Earnings statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	period := fmt.Sprintf("%s to %s", st.From.UTC().Format(dateLayout), st.To.UTC().Format(dateLayout))
	m.AddRow(18,
		col.New(6).Add(
			text.New("Account: "+earnerName, props.Text{Top: 0}),
			text.New("Period: "+period, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New(fmt.Sprintf("Net earnings: %s sats", formatSats(st.TotalNet)), props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
	)

	m.AddRow(8,
		text.NewCol(4, "Gateway", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Requests", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Gross", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Fees", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Net", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	m.AddRow(2, line.NewCol(12))

	for _, row := range st.Rows {
		name := row.GatewayName
		if name == "" {
			name = row.GatewayID
		}
		m.AddRow(8,
			text.NewCol(4, name, props.Text{Size: 9}),
			text.NewCol(2, formatSats(row.Requests), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatSats(row.GrossSats), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatSats(row.FeeSats), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatSats(row.NetSats), props.Text{Size: 9, Align: align.Right}),
		)
	}

	if len(st.Rows) == 0 {
		m.AddRow(10,
			text.NewCol(12, "No settled traffic in this period.", props.Text{Size: 9}),
		)
	}

	m.AddRow(2, line.NewCol(12))

	m.AddRow(8,
		text.NewCol(4, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, formatSats(st.TotalRequests), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, formatSats(st.TotalGross), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, formatSats(st.TotalFees), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, formatSats(st.TotalNet), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func formatSats(v int64) string {
	return strconv.FormatInt(v, 10)
}
