package postgres

import (
	"context"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS restaurants (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        slug_name TEXT NOT NULL UNIQUE,
        owed_commission_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
        cancellations_today INT NOT NULL DEFAULT 0,
        cancellations_day DATE NOT NULL DEFAULT CURRENT_DATE,
        loyalty_config JSONB NOT NULL DEFAULT '{}',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS menu_items (
        id TEXT PRIMARY KEY,
        restaurant_id TEXT NOT NULL REFERENCES restaurants(id),
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        price DOUBLE PRECISION NOT NULL,
        category TEXT NOT NULL DEFAULT '',
        available BOOLEAN NOT NULL DEFAULT TRUE
    )`,
	`CREATE TABLE IF NOT EXISTS orders (
        id TEXT PRIMARY KEY,
        restaurant_id TEXT NOT NULL REFERENCES restaurants(id),
        loyalty_id TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'pending',
        total_price DOUBLE PRECISION NOT NULL DEFAULT 0,
        commission_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
        commission_recorded BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_orders_visitor ON orders (restaurant_id, loyalty_id, status)`,
	`CREATE TABLE IF NOT EXISTS visitor_ledgers (
        restaurant_id TEXT NOT NULL REFERENCES restaurants(id),
        visitor_id TEXT NOT NULL,
        visit_count INT NOT NULL DEFAULT 0,
        orders_in_current_session INT NOT NULL DEFAULT 0,
        total_points INT NOT NULL DEFAULT 0,
        last_visit_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (restaurant_id, visitor_id)
    )`,
	`CREATE TABLE IF NOT EXISTS points_transactions (
        id TEXT PRIMARY KEY,
        restaurant_id TEXT NOT NULL REFERENCES restaurants(id),
        visitor_id TEXT NOT NULL,
        order_id TEXT,
        gift_id TEXT,
        type TEXT NOT NULL,
        amount INT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_points_transactions_order ON points_transactions (order_id, type)`,
	`CREATE TABLE IF NOT EXISTS gifts (
        id TEXT PRIMARY KEY,
        restaurant_id TEXT NOT NULL REFERENCES restaurants(id),
        visitor_id TEXT NOT NULL,
        type TEXT NOT NULL,
        percentage_value DOUBLE PRECISION NOT NULL DEFAULT 0,
        euro_value DOUBLE PRECISION NOT NULL DEFAULT 0,
        gift_name TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'unused',
        granted_by_order_id TEXT,
        order_id TEXT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_gifts_visitor ON gifts (restaurant_id, visitor_id, status)`,
	`CREATE TABLE IF NOT EXISTS loyalty_events (
        id TEXT PRIMARY KEY,
        restaurant_id TEXT NOT NULL REFERENCES restaurants(id),
        visitor_id TEXT NOT NULL,
        event_type TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_loyalty_events_visitor ON loyalty_events (restaurant_id, visitor_id, event_type, created_at)`,
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
