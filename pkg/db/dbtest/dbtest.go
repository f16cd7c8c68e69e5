// Package dbtest opens throwaway sqlite databases carrying the service schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// Open returns a fresh in-memory database with every table migrated. The pool
// is pinned to one connection so the shared-cache database lives as long as
// the test and writes never race.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:pp_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Coupon{},
		&models.Order{},
		&models.OrderItem{},
		&models.CouponUsage{},
		&models.LoyaltyPoints{},
		&models.PointTransaction{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	if err := conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_point_transactions_earned_reference
		ON point_transactions (reference) WHERE type = 'EARNED_PURCHASE'`,
	).Error; err != nil {
		t.Fatalf("create partial index: %v", err)
	}
	return conn
}

// Client wraps Open in the production transaction helper.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromGorm(conn), conn
}

// SeedProduct inserts an active, available product.
func SeedProduct(t testing.TB, conn *gorm.DB, name string, price int64, stock int) models.Product {
	t.Helper()
	product := models.Product{Name: name, Price: price, Stock: stock, IsActive: true, IsAvailable: true}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedUser inserts a customer without a phone on file.
func SeedUser(t testing.TB, conn *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, FirstName: "Ana", LastName: "Rojas"}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedCoupon inserts an active coupon with an optional usage limit.
func SeedCoupon(t testing.TB, conn *gorm.DB, code string, limit *int) models.Coupon {
	t.Helper()
	coupon := models.Coupon{Code: code, UsageLimit: limit, IsActive: true}
	if err := conn.Create(&coupon).Error; err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	return coupon
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}

// Line builds an order item for product at its current price.
func Line(product models.Product, qty int) models.OrderItem {
	return models.OrderItem{ProductID: product.ID, ProductName: product.Name, Price: product.Price, Quantity: qty}
}

var orderSeq atomic.Int64

// SeedOrder inserts an order with the given items and status. Totals are
// derived from the items; stock is left untouched.
func SeedOrder(t testing.TB, conn *gorm.DB, userID *uuid.UUID, status enums.OrderStatus, items ...models.OrderItem) models.Order {
	t.Helper()
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	pickup := time.Now().Add(48 * time.Hour).UTC()
	order := models.Order{
		OrderNumber:   fmt.Sprintf("PP%s%03d", pickup.Format("060102"), orderSeq.Add(1)%1000),
		Status:        status,
		Subtotal:      subtotal,
		Total:         subtotal,
		UserID:        userID,
		ContactPhone:  "+56911111111",
		PickupDate:    pickup.Format("2006-01-02"),
		PickupTime:    "10:00",
		PickupAt:      pickup,
		PaymentMethod: enums.PaymentMethodCash,
	}
	if userID == nil {
		email := "guest@example.com"
		order.GuestEmail = &email
	}
	if err := conn.Omit("Items").Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := conn.Create(&items).Error; err != nil {
			t.Fatalf("seed order items: %v", err)
		}
	}
	order.Items = items
	return order
}
