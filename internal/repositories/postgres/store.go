package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

type Store struct {
	pool *pgxpool.Pool

	restaurants *RestaurantRepository
	menuItems   *MenuItemRepository
	orders      *OrderRepository
	gifts       *GiftRepository
	ledgers     *LedgerRepository
	events      *EventRepository
	stats       *StatsRepository
}

func NewStore(ctx context.Context, config *models.DatabaseConfig) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return &Store{
		pool:        pool,
		restaurants: NewRestaurantRepository(pool),
		menuItems:   NewMenuItemRepository(pool),
		orders:      NewOrderRepository(pool),
		gifts:       NewGiftRepository(pool),
		ledgers:     NewLedgerRepository(pool),
		events:      NewEventRepository(pool),
		stats:       NewStatsRepository(pool),
	}, nil
}

func (s *Store) Restaurants() repositories.RestaurantRepository { return s.restaurants }
func (s *Store) MenuItems() repositories.MenuItemRepository     { return s.menuItems }
func (s *Store) Orders() repositories.OrderRepository           { return s.orders }
func (s *Store) Gifts() repositories.GiftRepository             { return s.gifts }
func (s *Store) Ledgers() repositories.LedgerRepository         { return s.ledgers }
func (s *Store) Events() repositories.EventRepository           { return s.events }
func (s *Store) Stats() repositories.StatsRepository            { return s.stats }

func (s *Store) Transact(ctx context.Context, fn func(tx repositories.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
