package cmd

import (
	"context"
	"log"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/plateful/plateful/internal/factories"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with demo restaurants, menus and visitors",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.SeedRestaurants <= 0 {
			cfg.SeedRestaurants = 10
		}
		if cfg.SeedVisitors <= 0 {
			cfg.SeedVisitors = 25
		}

		store := openStore(cfg)
		defer store.Close()

		ctx := context.Background()
		if err := seed(ctx, store, cfg); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
	},
}

func seed(ctx context.Context, store repositories.Store, cfg *models.Config) error {
	restaurantFactory := &factories.RestaurantFactory{}
	menuItemFactory := &factories.MenuItemFactory{}
	visitorFactory := &factories.VisitorFactory{}

	bar := progressbar.Default(int64(cfg.SeedRestaurants), "seeding restaurants")

	for i := 0; i < cfg.SeedRestaurants; i++ {
		restaurant := restaurantFactory.CreateRestaurant()
		if err := store.Restaurants().Create(ctx, restaurant); err != nil {
			return err
		}

		menuItems := make([]*models.MenuItem, 0, 12)
		for j := 0; j < 12; j++ {
			menuItems = append(menuItems, menuItemFactory.CreateMenuItem(restaurant))
		}
		if err := store.MenuItems().BulkCreate(ctx, menuItems); err != nil {
			return err
		}

		err := store.Transact(ctx, func(tx repositories.Tx) error {
			for j := 0; j < cfg.SeedVisitors; j++ {
				if err := tx.CreateLedger(ctx, visitorFactory.CreateLedger(restaurant)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		bar.Add(1)
	}

	log.Printf("Seeded %d restaurants with %d visitors each", cfg.SeedRestaurants, cfg.SeedVisitors)
	return nil
}
