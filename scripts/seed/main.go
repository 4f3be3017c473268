package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bizstore/internal/app"
	"github.com/odyssey-erp/bizstore/internal/catalog"
	"github.com/odyssey-erp/bizstore/internal/clients"
	"github.com/odyssey-erp/bizstore/internal/inventory"
	"github.com/odyssey-erp/bizstore/internal/sales"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := app.Build(ctx, cfg, logger, app.Deps{})
	if err != nil {
		log.Fatalf("build services: %v", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Printf("close services: %v", err)
		}
	}()

	users, _, err := container.Catalog.Users(ctx)
	if err != nil {
		log.Fatalf("list users: %v", err)
	}
	if len(users) > 0 {
		fmt.Println("✓ Users already present, skipping seed")
		return
	}

	fmt.Println("→ Seeding users...")
	admin, err := seedUsers(ctx, container.Catalog)
	if err != nil {
		log.Fatalf("seed users: %v", err)
	}
	ctx = shared.ContextWithActor(ctx, admin)

	fmt.Println("→ Seeding settings and categories...")
	if err := seedCatalog(ctx, container.Catalog); err != nil {
		log.Fatalf("seed catalog: %v", err)
	}

	fmt.Println("→ Seeding inventory...")
	if err := seedInventory(ctx, container.Inventory); err != nil {
		log.Fatalf("seed inventory: %v", err)
	}

	fmt.Println("→ Seeding clients and quotes...")
	if err := seedClients(ctx, container.Clients, container.Sales); err != nil {
		log.Fatalf("seed clients: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// =============================================================================
// USERS
// =============================================================================

func seedUsers(ctx context.Context, svc *catalog.Service) (shared.Actor, error) {
	adminPIN := getenv("SEED_ADMIN_PIN", "1234")
	admin, err := svc.CreateUser(ctx, catalog.UserInput{Name: "Administrador", Role: catalog.RoleAdmin, PIN: adminPIN})
	if err != nil {
		return shared.Actor{}, err
	}
	if _, err := svc.CreateUser(ctx, catalog.UserInput{Name: "Mostrador", Role: catalog.RoleStaff, PIN: getenv("SEED_STAFF_PIN", "0000")}); err != nil {
		return shared.Actor{}, err
	}
	fmt.Printf("  admin user id %s\n", admin.ID)
	return svc.VerifyPIN(ctx, admin.ID, adminPIN)
}

// =============================================================================
// CATALOG
// =============================================================================

func seedCatalog(ctx context.Context, svc *catalog.Service) error {
	_, err := svc.SaveSettings(ctx, catalog.Settings{
		BusinessName: "Imprenta Demo",
		Currency:     "MXN",
		TaxRate:      decimal.RequireFromString("0.16"),
		QuoteFooter:  "Precios sujetos a cambio sin previo aviso.",
	})
	if err != nil {
		return err
	}
	categories := []catalog.CategoryInput{
		{Name: "Papelería", Color: "#1e88e5"},
		{Name: "Impresión", Color: "#43a047"},
		{Name: "Diseño", Color: "#fb8c00"},
	}
	for _, c := range categories {
		if _, err := svc.SaveCategory(ctx, "", c); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// INVENTORY
// =============================================================================

func seedInventory(ctx context.Context, svc *inventory.Service) error {
	items := []inventory.UpsertInput{
		{Name: "Papel bond carta", Kind: inventory.KindProduct, Category: "Papelería", Unit: "paquete", Quantity: 40, MinStock: 10, UnitPrice: decimal.RequireFromString("95.00")},
		{Name: "Tarjetas de presentación", Kind: inventory.KindProduct, Category: "Impresión", Unit: "millar", Quantity: 6, MinStock: 5, UnitPrice: decimal.RequireFromString("450.00")},
		{Name: "Tinta negra", Kind: inventory.KindProduct, Category: "Papelería", Unit: "cartucho", Quantity: 2, MinStock: 3, UnitPrice: decimal.RequireFromString("320.00")},
		{Name: "Diseño de logotipo", Kind: inventory.KindService, Category: "Diseño", UnitPrice: decimal.RequireFromString("1800.00")},
	}
	for _, in := range items {
		if _, err := svc.Upsert(ctx, in); err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
	}
	return nil
}

// =============================================================================
// CLIENTS
// =============================================================================

func seedClients(ctx context.Context, clientSvc *clients.Service, salesSvc *sales.Service) error {
	client, err := clientSvc.Create(ctx, clients.Input{
		Name:    "Cafetería Central",
		Company: "Cafetería Central SA de CV",
		Email:   "compras@cafeteriacentral.mx",
		Phone:   "55 1234 5678",
	})
	if err != nil {
		return err
	}
	if _, err := clientSvc.AppendMessage(ctx, client.ID, clients.MessageInput{Text: "Cliente dado de alta desde la semilla."}); err != nil {
		return err
	}
	_, err = salesSvc.CreateQuote(ctx, sales.QuoteInput{
		ClientID:   client.ID,
		ClientName: client.Name,
		Items: []sales.LineInput{
			{Description: "Tarjetas de presentación", Quantity: 2, UnitPrice: decimal.RequireFromString("450.00")},
			{Description: "Diseño de logotipo", Quantity: 1, UnitPrice: decimal.RequireFromString("1800.00")},
		},
		Tax: decimal.RequireFromString("432.00"),
	})
	return err
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
