package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/pkg/db/pagination"
)

type Service interface {
	// ListForGateway pages a gateway's log, newest first, owner-only.
	ListForGateway(ctx context.Context, gatewayID string, page pagination.Pagination) (*ListResponse, error)
	// Statement summarizes the authenticated earner's settled traffic over
	// [from, to).
	Statement(ctx context.Context, from, to time.Time) (*Statement, error)
}

type ListResponse struct {
	Entries  []*Entry            `json:"entries"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Statement struct {
	EarnerID      snowflake.ID   `json:"earner_id"`
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	Rows          []StatementRow `json:"rows"`
	TotalRequests int64          `json:"total_requests"`
	TotalGross    int64          `json:"total_gross"`
	TotalFees     int64          `json:"total_fees"`
	TotalNet      int64          `json:"total_net"`
}
