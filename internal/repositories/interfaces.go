package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/plateful/plateful/internal/models"
)

// ErrNotFound is returned by lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

type RestaurantRepository interface {
	BulkCreate(ctx context.Context, restaurants []*models.Restaurant) error
	Create(ctx context.Context, restaurant *models.Restaurant) error
	GetByID(ctx context.Context, id string) (*models.Restaurant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Restaurant, error)
	Count(ctx context.Context) (int, error)
}

type MenuItemRepository interface {
	BulkCreate(ctx context.Context, menuItems []*models.MenuItem) error
	Create(ctx context.Context, menuItem *models.MenuItem) error
	GetByRestaurantID(ctx context.Context, restaurantID string) ([]*models.MenuItem, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
}

type GiftRepository interface {
	GetByID(ctx context.Context, id string) (*models.Gift, error)
	ActiveForVisitor(ctx context.Context, restaurantID, visitorID string) (*models.Gift, error)
}

type LedgerRepository interface {
	Get(ctx context.Context, restaurantID, visitorID string) (*models.VisitorLedger, error)
	CompletedSpend(ctx context.Context, restaurantID, visitorID string) (float64, error)
}

type EventRepository interface {
	Insert(ctx context.Context, event *models.LoyaltyEvent) error
	LastOfType(ctx context.Context, restaurantID, visitorID, eventType string) (time.Time, bool, error)
}

type StatsRepository interface {
	LoyaltyStats(ctx context.Context, restaurantID string, loyalThreshold float64) (*models.LoyaltyStats, error)
	TransactionsCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.PointsTransaction, error)
}

// Tx is the row-operation set available inside a single store transaction.
// ForUpdate reads take an exclusive row lock held until commit or rollback;
// they are the only defense against concurrent completion/conversion requests
// double-crediting the same ledger.
type Tx interface {
	GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string, at time.Time) error
	SetCommissionRecorded(ctx context.Context, orderID string) error

	GetRestaurantForUpdate(ctx context.Context, restaurantID string) (*models.Restaurant, error)
	AddOwedCommission(ctx context.Context, restaurantID string, delta float64) error
	SetCancellationCounter(ctx context.Context, restaurantID string, day time.Time, count int) error

	GetLedgerForUpdate(ctx context.Context, restaurantID, visitorID string) (*models.VisitorLedger, error)
	CreateLedger(ctx context.Context, ledger *models.VisitorLedger) error
	UpdateLedger(ctx context.Context, ledger *models.VisitorLedger) error
	CompletedSpend(ctx context.Context, restaurantID, visitorID string) (float64, error)
	LatestCompletedOrder(ctx context.Context, restaurantID, visitorID, excludeOrderID string) (*models.Order, error)

	EarnTransactionExists(ctx context.Context, orderID string) (bool, error)
	InsertTransaction(ctx context.Context, txn *models.PointsTransaction) error
	DeleteTransaction(ctx context.Context, id string) error
	TransactionsByOrder(ctx context.Context, orderID string) ([]*models.PointsTransaction, error)
	ConversionsBetween(ctx context.Context, restaurantID, visitorID string, from, to time.Time) ([]*models.PointsTransaction, error)

	GetGiftForUpdate(ctx context.Context, giftID string) (*models.Gift, error)
	GiftRedeemedByOrder(ctx context.Context, orderID string) (*models.Gift, error)
	GiftsGrantedByOrder(ctx context.Context, orderID string) ([]*models.Gift, error)
	InsertGift(ctx context.Context, gift *models.Gift) error
	UpdateGift(ctx context.Context, gift *models.Gift) error
	DeleteGift(ctx context.Context, giftID string) error

	MenuItemPrice(ctx context.Context, restaurantID, name string) (float64, error)
}

// Store bundles the repositories with transaction control.
type Store interface {
	Restaurants() RestaurantRepository
	MenuItems() MenuItemRepository
	Orders() OrderRepository
	Gifts() GiftRepository
	Ledgers() LedgerRepository
	Events() EventRepository
	Stats() StatsRepository

	// Transact runs fn inside one transaction, committing on nil and rolling
	// back every write on error.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
