package testutil

import (
	"bytes"
	"time"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// SampleProducts returns a small catalog used across tests.
func SampleProducts() []models.Product {
	return []models.Product{
		{ID: "p-1", Name: "Espresso", Price: "2.50", Category: "drinks", StockQty: 100, Active: true},
		{ID: "p-2", Name: "Croissant", Price: "3.20", Category: "bakery", StockQty: 24, Active: true},
		{ID: "p-3", Name: "Cold Brew", Price: "4.00", Category: "drinks", StockQty: 40, Active: true},
	}
}

// SampleCustomer returns a customer record for write tests.
func SampleCustomer() models.Customer {
	return models.Customer{
		ID:    "c-1",
		Name:  "Dana Reyes",
		Email: "dana@example.com",
		Phone: "555-0142",
	}
}

// SampleOrder returns an order referencing the sample catalog.
func SampleOrder() models.Order {
	return models.Order{
		Items: []models.OrderItem{
			{ProductID: "p-1", Qty: 2, UnitPrice: "2.50"},
			{ProductID: "p-2", Qty: 1, UnitPrice: "3.20"},
		},
		Total:         "8.20",
		PaymentMethod: "card",
		CreatedAt:     time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC),
	}
}
