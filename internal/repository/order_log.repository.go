package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/tradekit/pair-engine/internal/entity"
)

type OrderLogRepository struct {
	db *sqlx.DB
}

func NewOrderLogRepository(db *sqlx.DB) *OrderLogRepository {
	return &OrderLogRepository{db: db}
}

func (r *OrderLogRepository) Create(ctx context.Context, orderLog *entity.OrderLog) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(orderLog.TableName()).
		Columns(
			"exchange",
			"symbol",
			"order_id",
			"our_id",
			"side",
			"type",
			"price",
			"amount",
			"status",
			"retry",
			"error_message",
			"created_at",
			"updated_at",
		).
		Values(
			orderLog.Exchange,
			orderLog.Symbol,
			orderLog.OrderID,
			orderLog.OurID,
			orderLog.Side,
			orderLog.Type,
			orderLog.Price,
			orderLog.Amount,
			orderLog.Status,
			orderLog.Retry,
			orderLog.ErrorMessage,
			orderLog.CreatedAt,
			orderLog.UpdatedAt,
		).
		Suffix("RETURNING id")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	var id string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return err
	}

	orderLog.ID = id

	return nil
}

func (r *OrderLogRepository) GetByOrderID(ctx context.Context, exchange, orderID string) ([]entity.OrderLog, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From("order_logs").
		Where(sq.Eq{"exchange": exchange, "order_id": orderID}).
		OrderBy("created_at desc")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var orderLogs []entity.OrderLog
	err = r.db.SelectContext(ctx, &orderLogs, query, args...)
	if err != nil {
		return nil, err
	}

	return orderLogs, nil
}

func (r *OrderLogRepository) ListBySymbol(ctx context.Context, exchange, symbol string, limit uint64) ([]entity.OrderLog, error) {
	if limit == 0 {
		limit = 100
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From("order_logs").
		Where(sq.Eq{"exchange": exchange, "symbol": symbol}).
		OrderBy("created_at desc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var orderLogs []entity.OrderLog
	err = r.db.SelectContext(ctx, &orderLogs, query, args...)
	if err != nil {
		return nil, err
	}

	return orderLogs, nil
}
