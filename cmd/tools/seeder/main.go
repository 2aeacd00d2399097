package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/repo"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/tax"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// Demo tenant used by local environments and the HTTP examples in the README.
var demoTenant = uuid.MustParse("6f1c2a9e-0b7d-4c1e-9a55-2f3b8d4e7a10")

func main() {
	tenantFlag := flag.String("tenant", demoTenant.String(), "tenant id to seed")
	migrate := flag.Bool("migrate", true, "apply migrations before seeding")
	flag.Parse()

	logger := obs.NewLogger("console", "info")
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	tenantID, err := repo.ParseTenant(*tenantFlag)
	if err != nil {
		logger.Fatal().Err(err).Str("tenant", *tenantFlag).Msg("invalid tenant")
	}

	if *migrate {
		if err := repo.Migrate(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := repo.OpenPool(ctx, dbURL, "toko-checkout-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	store := repo.New(pool)

	if err := store.SaveSettings(ctx, tenantID, demoSettings()); err != nil {
		logger.Fatal().Err(err).Msg("save tenant settings")
	}
	for _, p := range demoProducts() {
		if err := store.UpsertProduct(ctx, tenantID, p); err != nil {
			logger.Fatal().Err(err).Str("product", p.Name).Msg("seed product")
		}
	}
	logger.Info().Str("tenant_id", tenantID.String()).Int("products", len(demoProducts())).Msg("seeding completed")
}

func demoSettings() tenant.Settings {
	ship := shipping.DefaultConfig()
	return tenant.Settings{
		Shipping: &ship,
		Tax: &tax.Config{
			Rate:      money.Ptr(decimal.NewFromInt(18)),
			HomeState: "KA",
		},
		Slabs: discount.DefaultSlabs(),
	}
}

func demoProducts() []pricing.Product {
	items := []struct {
		id    string
		name  string
		price string
		units int
	}{
		{"0b8f6c1e-5a3d-4e21-8f7b-1c2d3e4f5a01", "Cotton Saree", "1450.00", 1},
		{"0b8f6c1e-5a3d-4e21-8f7b-1c2d3e4f5a02", "Silk Dupatta", "780.00", 1},
		{"0b8f6c1e-5a3d-4e21-8f7b-1c2d3e4f5a03", "Kurta Set (pack of 3)", "2100.00", 3},
		{"0b8f6c1e-5a3d-4e21-8f7b-1c2d3e4f5a04", "Handloom Towel", "240.00", 1},
		{"0b8f6c1e-5a3d-4e21-8f7b-1c2d3e4f5a05", "Bedsheet Double", "990.00", 1},
	}
	out := make([]pricing.Product, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Product{
			ID:              uuid.MustParse(it.id),
			Name:            it.name,
			CatalogPrice:    decimal.RequireFromString(it.price),
			UnitsPerPackage: it.units,
		})
	}
	return out
}
