package orders

import (
	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// orderTotal sums price times quantity over the items, adds tax and shipping,
// and rounds to cents.
func orderTotal(items []models.OrderItem, tax, shipping float64) float64 {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	sum = sum.Add(decimal.NewFromFloat(tax)).Add(decimal.NewFromFloat(shipping))
	total, _ := sum.Round(2).Float64()
	return total
}
