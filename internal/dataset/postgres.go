package dataset

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresSource reads sessions and products from PostgreSQL tables.
type PostgresSource struct {
	db DatabaseQuerier
}

func NewPostgresSource(db DatabaseQuerier) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Sessions(ctx context.Context) ([]Session, error) {
	query := `
		SELECT
			s.session_id,
			s.timestamp::text,
			s.user_id,
			s.product_id,
			s.event_type,
			COALESCE(s.category_path, '')
		FROM sessions s
		WHERE s.user_id IS NOT NULL
			AND s.product_id IS NOT NULL
		ORDER BY s.session_id, s.timestamp`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sessions query failed: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(
			&session.SessionID,
			&session.Timestamp,
			&session.UserID,
			&session.ProductID,
			&session.EventType,
			&session.CategoryPath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessions rows iteration failed: %w", err)
	}

	return sessions, nil
}

func (s *PostgresSource) Products(ctx context.Context) ([]Product, error) {
	query := `
		SELECT
			p.product_id,
			p.product_name,
			p.category_path,
			p.price,
			COALESCE(p.user_rating, 0)
		FROM products p
		ORDER BY p.product_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("products query failed: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var product Product
		if err := rows.Scan(
			&product.ProductID,
			&product.ProductName,
			&product.CategoryPath,
			&product.Price,
			&product.UserRating,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("products rows iteration failed: %w", err)
	}

	return products, nil
}
