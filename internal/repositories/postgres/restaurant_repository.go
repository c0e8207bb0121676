package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

type RestaurantRepository struct {
	pool *pgxpool.Pool
}

func NewRestaurantRepository(pool *pgxpool.Pool) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

const restaurantColumns = `
    id, name, slug_name, owed_commission_balance, cancellations_today,
    cancellations_day, loyalty_config, created_at, updated_at
`

func scanRestaurant(row pgx.Row) (*models.Restaurant, error) {
	restaurant := &models.Restaurant{}
	var configBlob []byte
	err := row.Scan(
		&restaurant.ID,
		&restaurant.Name,
		&restaurant.SlugName,
		&restaurant.OwedCommissionBalance,
		&restaurant.CancellationsToday,
		&restaurant.CancellationsDay,
		&configBlob,
		&restaurant.CreatedAt,
		&restaurant.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	restaurant.LoyaltyConfig, err = models.ParseLoyaltyConfig(configBlob)
	if err != nil {
		return nil, err
	}
	return restaurant, nil
}

func (r *RestaurantRepository) BulkCreate(ctx context.Context, restaurants []*models.Restaurant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, restaurant := range restaurants {
		configBlob, err := json.Marshal(restaurant.LoyaltyConfig)
		if err != nil {
			return err
		}
		query := `
            INSERT INTO restaurants (
                id, name, slug_name, owed_commission_balance,
                cancellations_today, cancellations_day, loyalty_config,
                created_at, updated_at
            ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        `
		_, err = tx.Exec(ctx, query,
			restaurant.ID,
			restaurant.Name,
			restaurant.SlugName,
			restaurant.OwedCommissionBalance,
			restaurant.CancellationsToday,
			restaurant.CancellationsDay,
			configBlob,
			restaurant.CreatedAt,
			restaurant.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *RestaurantRepository) Create(ctx context.Context, restaurant *models.Restaurant) error {
	configBlob, err := json.Marshal(restaurant.LoyaltyConfig)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO restaurants (
            id, name, slug_name, owed_commission_balance,
            cancellations_today, cancellations_day, loyalty_config,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err = r.pool.Exec(ctx, query,
		restaurant.ID,
		restaurant.Name,
		restaurant.SlugName,
		restaurant.OwedCommissionBalance,
		restaurant.CancellationsToday,
		restaurant.CancellationsDay,
		configBlob,
		restaurant.CreatedAt,
		restaurant.UpdatedAt,
	)
	return err
}

func (r *RestaurantRepository) GetByID(ctx context.Context, id string) (*models.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = $1`
	return scanRestaurant(r.pool.QueryRow(ctx, query, id))
}

func (r *RestaurantRepository) GetBySlug(ctx context.Context, slug string) (*models.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE slug_name = $1`
	return scanRestaurant(r.pool.QueryRow(ctx, query, slug))
}

func (r *RestaurantRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM restaurants`).Scan(&count)
	return count, err
}
