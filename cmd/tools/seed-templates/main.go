// cmd/tools/seed-templates/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"storefront-workers/internal/common/config"
	"storefront-workers/internal/common/database"
	"storefront-workers/internal/models"
	"storefront-workers/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	migrate := flag.Bool("migrate", false, "Apply the schema before seeding")
	dryRun := flag.Bool("dry-run", false, "Print the templates without writing them")
	flag.Parse()

	templates := defaultTemplates()
	if *dryRun {
		for _, t := range templates {
			fmt.Printf("%-20s %-6s %s\n", t.NotificationType, t.Channel, t.Name)
		}
		return
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *migrate {
		if err := storage.Migrate(ctx, pg.DB); err != nil {
			fmt.Printf("Error applying schema: %v\n", err)
			os.Exit(1)
		}
	}

	repo := storage.NewTemplateRepository(pg.DB)
	for i := range templates {
		if err := repo.Upsert(ctx, &templates[i]); err != nil {
			fmt.Printf("Error saving %s: %v\n", templates[i].Name, err)
			os.Exit(1)
		}
		fmt.Printf("Saved template: %s\n", templates[i].Name)
	}
}

func tmpl(nt models.NotificationType, ch models.Channel, subject, message string) models.NotificationTemplate {
	return models.NotificationTemplate{
		Name:             fmt.Sprintf("%s_%s", nt, ch),
		NotificationType: nt,
		Channel:          ch,
		Subject:          subject,
		Message:          message,
		IsActive:         true,
	}
}

func defaultTemplates() []models.NotificationTemplate {
	return []models.NotificationTemplate{
		tmpl(models.TypeOrderConfirmation, models.ChannelSMS, "",
			"Hi {customer_name}, your order {order_number} for KES {order_total} has been received."),
		tmpl(models.TypeOrderConfirmation, models.ChannelEmail, "Order {order_number} confirmed",
			"Hi {customer_name},\n\nThank you for your order placed on {order_date}.\n"+
				"Order: {order_number}\nItems: {order_items}\nTotal: KES {order_total}\n"+
				"Shipping to: {shipping_address}\n"),
		tmpl(models.TypeOrderShipped, models.ChannelSMS, "",
			"Hi {customer_name}, order {order_number} is on its way to {shipping_address}."),
		tmpl(models.TypeOrderShipped, models.ChannelEmail, "Order {order_number} shipped",
			"Hi {customer_name},\n\nYour order {order_number} has shipped and is on its way to {shipping_address}.\n"),
		tmpl(models.TypeOrderDelivered, models.ChannelSMS, "",
			"Hi {customer_name}, order {order_number} has been delivered. Enjoy!"),
		tmpl(models.TypeOrderDelivered, models.ChannelEmail, "Order {order_number} delivered",
			"Hi {customer_name},\n\nYour order {order_number} has been delivered.\n"),
		tmpl(models.TypeOrderCancelled, models.ChannelSMS, "",
			"Hi {customer_name}, order {order_number} has been cancelled."),
		tmpl(models.TypeOrderCancelled, models.ChannelEmail, "Order {order_number} cancelled",
			"Hi {customer_name},\n\nYour order {order_number} for KES {order_total} has been cancelled.\n"),
		tmpl(models.TypeWelcome, models.ChannelSMS, "",
			"Welcome {customer_name}! Thanks for joining us."),
		tmpl(models.TypeWelcome, models.ChannelEmail, "Welcome, {customer_name}",
			"Hi {customer_name},\n\nThanks for creating an account. Order updates will be sent to {customer_email}.\n"),
		tmpl(models.TypeLowStockAlert, models.ChannelEmail, "Low stock: {product_name}",
			"{product_name} ({product_sku}) is down to {stock_quantity} units, threshold {low_stock_threshold}.\n"),
	}
}
