package factories

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jaswdr/faker"
	"github.com/lucsky/cuid"
	"github.com/plateful/plateful/internal/models"
)

var fake = faker.New()

type RestaurantFactory struct {
	slugCache sync.Map // to track used slugs
}

func (rf *RestaurantFactory) CreateRestaurant() *models.Restaurant {
	name := fake.Company().Name()
	now := time.Now()

	cfg := models.DefaultLoyaltyConfig()
	cfg.IsAutoPromoOn = true
	cfg.PointsSystemEnabled = true
	cfg.GiftConversionEnabled = fake.Bool()
	cfg.Welcome.Value = models.FlexFloat(fake.IntBetween(5, 20))
	cfg.Loyal.Threshold = models.FlexFloat(fake.IntBetween(30, 120))
	if fake.Bool() {
		cfg.Loyal.Type = models.RewardTypeItem
		cfg.Loyal.ItemName = "Dessert of the Day"
	} else {
		cfg.Loyal.Value = models.FlexFloat(fake.IntBetween(10, 25))
	}

	return &models.Restaurant{
		ID:               cuid.New(),
		Name:             name,
		SlugName:         rf.createUniqueSlug(name),
		CancellationsDay: now.Truncate(24 * time.Hour),
		LoyaltyConfig:    cfg,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (rf *RestaurantFactory) createUniqueSlug(name string) string {
	base := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, base)

	slug := base
	counter := 1

	for {
		if _, exists := rf.slugCache.LoadOrStore(slug, true); !exists {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
		counter++
	}
}

type MenuItemFactory struct{}

func (mf *MenuItemFactory) CreateMenuItem(restaurant *models.Restaurant) *models.MenuItem {
	return &models.MenuItem{
		ID:           fake.UUID().V4(),
		RestaurantID: restaurant.ID,
		Name:         generateRandomMenuItem(),
		Description:  fake.Lorem().Sentence(10),
		Price:        fake.Float64(2, 5, 50),
		Category:     fake.Lorem().Word(),
		Available:    true,
	}
}

func generateRandomMenuItem() string {
	items := []string{
		"Margherita Pizza", "Pepperoni Pizza", "Spaghetti Carbonara", "Lasagna",
		"Chicken Tikka Masala", "Vegetable Curry", "Naan Bread", "Biryani",
		"Classic Cheeseburger", "Veggie Burger", "BBQ Ribs", "Grilled Salmon",
		"Caesar Salad", "Greek Salad", "Pad Thai", "Green Curry",
		"Sushi Roll", "Ramen", "Tacos", "Burrito",
		"Falafel", "Hummus", "Tiramisu", "Crème Brûlée",
	}
	return items[rand.Intn(len(items))]
}

type VisitorFactory struct{}

// CreateLedger builds a visitor ledger mirroring an established customer.
func (vf *VisitorFactory) CreateLedger(restaurant *models.Restaurant) *models.VisitorLedger {
	return &models.VisitorLedger{
		RestaurantID: restaurant.ID,
		VisitorID:    fake.UUID().V4(),
		VisitCount:   fake.IntBetween(1, 12),
		TotalPoints:  fake.IntBetween(0, 1500),
		LastVisitAt:  time.Now().AddDate(0, 0, -fake.IntBetween(0, 40)),
	}
}
