package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/requestlog/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO request_logs (id, gateway_id, session_id, cost, earner_share, platform_share, method, path, upstream_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.GatewayID,
		entry.SessionID,
		entry.Cost,
		entry.EarnerShare,
		entry.PlatformShare,
		entry.Method,
		entry.Path,
		entry.UpstreamStatus,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListByGateway(ctx context.Context, db *gorm.DB, gatewayID string, page pagination.Pagination) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	stmt := db.WithContext(ctx).Model(&domain.Entry{}).Where("gateway_id = ?", gatewayID)
	stmt = pagination.Apply(stmt, page)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) AggregateByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, from, to time.Time) ([]domain.StatementRow, error) {
	var rows []domain.StatementRow
	err := db.WithContext(ctx).Raw(
		`SELECT l.gateway_id AS gateway_id,
		        g.name AS gateway_name,
		        COUNT(*) AS requests,
		        COALESCE(SUM(l.cost), 0) AS gross_sats,
		        COALESCE(SUM(l.platform_share), 0) AS fee_sats,
		        COALESCE(SUM(l.earner_share), 0) AS net_sats
		 FROM request_logs l
		 JOIN gateways g ON g.id = l.gateway_id
		 WHERE g.owner_id = ? AND l.created_at >= ? AND l.created_at < ?
		 GROUP BY l.gateway_id, g.name
		 ORDER BY gross_sats DESC, l.gateway_id`,
		ownerID,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
